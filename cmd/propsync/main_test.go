package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/propmanage/propsync/internal/aggregate"
	"github.com/propmanage/propsync/internal/dataset"
	"github.com/propmanage/propsync/internal/httpapi"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/syncstore"
	"github.com/propmanage/propsync/internal/tokenfile"
	"github.com/propmanage/propsync/internal/transport"
)

type cliEnv struct {
	server    *httpapi.Server
	ts        *httptest.Server
	tokenFile string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	repo, err := dataset.Open(dataset.Options{Seed: true, PasswordCost: bcrypt.MinCost})
	require.NoError(t, err)
	server := httpapi.NewServer(repo, httpapi.ServerConfig{}, httpapi.Options{})
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Hub().Close()
		ts.Close()
	})
	return &cliEnv{
		server:    server,
		ts:        ts,
		tokenFile: filepath.Join(t.TempDir(), "propsync", "token.json"),
	}
}

// syncBuffer lets a test read output while a command is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (e *cliEnv) runWith(ctx context.Context, out *syncBuffer, args ...string) error {
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{
		"--base-url", e.ts.URL + "/api",
		"--token-file", e.tokenFile,
		"--log-level", "error",
	}, args...))
	return cmd.ExecuteContext(ctx)
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	err := e.runWith(context.Background(), out, args...)
	return out.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	out, err := e.run(t, "login", "--email", dataset.DemoEmail, "--password", dataset.DemoPassword)
	require.NoError(t, err, out)
}

func dataLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" || strings.HasPrefix(line, "ID ") || strings.HasPrefix(line, "page ") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func TestCommandsRequireLogin(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "properties")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrValidation))
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLoginListAndLogout(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "login", "--email", dataset.DemoEmail, "--password", dataset.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, "Logged in as Alex Morgan <"+dataset.DemoEmail+"> (ADMIN)\n", out)
	tokens, err := tokenfile.Load(env.tokenFile)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)

	out, err = env.run(t, "properties")
	require.NoError(t, err)
	assert.Contains(t, out, "Riverside Apartments")
	assert.Contains(t, out, "page 1/1 (3 total)")

	out, err = env.run(t, "-o", "json", "properties", "--limit", "2")
	require.NoError(t, err)
	var page model.Page[model.Property]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	out, err = env.run(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)
	_, err = os.Stat(env.tokenFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = env.run(t, "properties")
	assert.True(t, errors.Is(err, transport.ErrValidation))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "login", "--email", dataset.DemoEmail, "--password", "wrong-password")
	require.Error(t, err)
	msg, code := transport.Describe(err)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, msg)
	_, statErr := os.Stat(env.tokenFile)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestLoginRefreshRenewsSavedSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	before, err := tokenfile.Load(env.tokenFile)
	require.NoError(t, err)

	out, err := env.run(t, "login", "--refresh")
	require.NoError(t, err, out)
	after, err := tokenfile.Load(env.tokenFile)
	require.NoError(t, err)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
}

func TestPropertyUnitsAndCreate(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "-o", "json", "properties", "create",
		"--name", "Harbor Lofts", "--address", "9 Pier Rd", "--city", "Portland",
		"--state", "OR", "--zip", "97201", "--type", "condo", "--units", "2")
	require.NoError(t, err, out)
	var created model.Property
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, model.PropertyCondo, created.Type)
	assert.Equal(t, 2, created.Units)

	out, err = env.run(t, "properties", "units", created.ID)
	require.NoError(t, err)
	assert.Len(t, dataLines(out), 2)

	_, err = env.run(t, "properties", "create", "--address", "1 Main St")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrValidation))

	out, err = env.run(t, "properties", "delete", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted property "+created.ID)
	_, err = env.run(t, "properties", "get", created.ID)
	_, code := transport.Describe(err)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTicketsSortedByPriorityAndAssign(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "tickets")
	require.NoError(t, err)
	lines := dataLines(out)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "tkt_001"), lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "tkt_003"), lines[3])

	out, err = env.run(t, "-o", "json", "tickets", "assign", "tkt_001", "Pat Plumbing")
	require.NoError(t, err, out)
	var ticket model.MaintenanceTicket
	require.NoError(t, json.Unmarshal([]byte(out), &ticket))
	assert.Equal(t, "Pat Plumbing", ticket.AssignedTo)

	out, err = env.run(t, "-o", "json", "tickets", "status", "tkt_001", "resolved")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &ticket))
	assert.Equal(t, model.TicketResolved, ticket.Status)

	out, err = env.run(t, "tickets", "--status", "open")
	require.NoError(t, err)
	assert.Equal(t, "no results\n", out)
}

func TestTenantsAndPayments(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "tenants", "--property", "prop_001")
	require.NoError(t, err)
	assert.NotEmpty(t, dataLines(out))

	out, err = env.run(t, "-o", "json", "payments", "--status", "pending")
	require.NoError(t, err)
	var page model.Page[model.Payment]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	for _, p := range page.Items {
		assert.Equal(t, model.PaymentPending, p.Status)
	}

	_, err = env.run(t, "payments", "--page", "-1")
	assert.True(t, errors.Is(err, transport.ErrValidation))
}

func TestNotificationsReadAll(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Len(t, dataLines(out), 2)

	out, err = env.run(t, "notifications", "read", "ntf_004")
	require.Error(t, err, out)

	out, err = env.run(t, "notifications", "read-all")
	require.NoError(t, err)
	assert.Equal(t, "Marked 2 notifications read\n", out)

	out, err = env.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Equal(t, "no results\n", out)
}

func TestDashboard(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "-o", "json", "dashboard")
	require.NoError(t, err)
	var derived aggregate.DerivedStats
	require.NoError(t, json.Unmarshal([]byte(out), &derived))
	assert.Equal(t, 3, derived.TotalProperties)
	assert.Len(t, derived.RevenueByMonth, 6)
	assert.Len(t, derived.OccupancyByProperty, 3)

	out, err = env.run(t, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Open tickets")
	assert.Contains(t, out, "Riverside Apartments")
}

func TestWatchPrintsDashboard(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "watch", "--count", "1", "--no-live")
	require.NoError(t, err)
	assert.Contains(t, out, "3 properties")
}

func TestWatchRefreshesOnServerEvents(t *testing.T) {
	t.Setenv("PROPSYNC_WATCH_LIVE_FEED", "true")
	env := newCLIEnv(t)
	env.login(t)
	tokens, err := tokenfile.Load(env.tokenFile)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- env.runWith(ctx, out, "watch", "--interval", "1h")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "3 properties") && env.server.Hub().Clients() > 0
	}, 5*time.Second, 20*time.Millisecond)

	body, err := json.Marshal(model.PropertyInput{
		Name: "Harbor Lofts", Address: "9 Pier Rd", City: "Portland", State: "OR",
		ZipCode: "97201", Type: model.PropertyCondo, Units: 1,
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/properties", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "4 properties")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "-o", "yaml", "properties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "yaml"`)
}

func TestClampJitterRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampJitterRatio(-0.1))
	assert.Equal(t, 1.0, clampJitterRatio(1.5))
	assert.Equal(t, 0.4, clampJitterRatio(0.4))
}

func TestJitteredIntervalWithSample(t *testing.T) {
	base := 10 * time.Second
	assert.Equal(t, base, jitteredIntervalWithSample(base, 0, 0.2))
	assert.Equal(t, 8*time.Second, jitteredIntervalWithSample(base, 0.2, 0))
	assert.Equal(t, 10*time.Second, jitteredIntervalWithSample(base, 0.2, 0.5))
	assert.Equal(t, 12*time.Second, jitteredIntervalWithSample(base, 0.2, 1))
	assert.Equal(t, 12*time.Second, jitteredIntervalWithSample(base, 0.2, 7))
	assert.Equal(t, time.Millisecond, jitteredIntervalWithSample(base, 1, 0))
	assert.Equal(t, time.Second, jitteredIntervalWithSample(0, 0.2, 0.5))
}

func TestPageFooter(t *testing.T) {
	assert.Equal(t, "page 2/3 (45 total)", pageFooter(2, 3, 45))
	assert.Equal(t, "page 1/1 (0 total)", pageFooter(1, 0, 0))
}

func TestStateLine(t *testing.T) {
	at := time.Date(2026, 3, 15, 9, 5, 7, 0, time.UTC)

	line, ok := stateLine(at, syncstore.Success(model.DashboardStats{
		TotalProperties: 3,
		TotalUnits:      30,
		OccupancyRate:   13,
		TotalRevenue:    6720,
		PendingPayments: 2,
		OpenTickets:     3,
	}))
	require.True(t, ok)
	assert.Equal(t, "09:05:07  3 properties  30 units  13% occupied  $6,720.00 revenue  2 pending payments  3 open tickets", line)

	line, ok = stateLine(at, syncstore.Failure("service unavailable", 503))
	require.True(t, ok)
	assert.Equal(t, "09:05:07  refresh failed: service unavailable (HTTP 503)", line)

	_, ok = stateLine(at, syncstore.Loading())
	assert.False(t, ok)
}
