package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/propmanage/propsync/internal/dataset"
	"github.com/propmanage/propsync/internal/metrics"
	"github.com/propmanage/propsync/internal/model"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	server *Server
	clock  *testClock
}

func newFixture(t *testing.T, cfg ServerConfig, opts Options) *fixture {
	t.Helper()
	clock := &testClock{now: testNow}
	repo, err := dataset.Open(dataset.Options{
		Seed:         true,
		PasswordCost: bcrypt.MinCost,
		Now:          clock.Now,
	})
	require.NoError(t, err)
	opts.Now = clock.Now
	return &fixture{server: NewServer(repo, cfg, opts), clock: clock}
}

type request struct {
	method  string
	path    string
	headers map[string]string
	body    any
}

type response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

func doRequest(t *testing.T, server http.Handler, r request) *httptest.ResponseRecorder {
	t.Helper()
	var bodyBytes []byte
	switch body := r.body.(type) {
	case nil:
	case []byte:
		bodyBytes = body
	default:
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyBytes = data
	}
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(bodyBytes))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var out response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &out), rec.Body.String())
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func login(t *testing.T, server http.Handler, email, password string) model.AuthResponse {
	t.Helper()
	rec := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   model.LoginCredentials{Email: email, Password: password},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[model.AuthResponse](t, rec)
}

func adminToken(t *testing.T, server http.Handler) string {
	return login(t, server, dataset.DemoEmail, dataset.DemoPassword).Tokens.AccessToken
}

func TestHealth(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{method: http.MethodGet, path: "/api/properties"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "missing or invalid bearer token", resp.Error)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"), "a correlation id is generated when absent")

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/properties",
		headers: bearer("not-a-jwt"),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeResponse(t, rec).Error)
}

func TestLoginIssuesTokensAndListsProperties(t *testing.T) {
	f := newFixture(t, ServerConfig{TokenTTL: 15 * time.Minute}, Options{})
	auth := login(t, f.server, "  ALEX.MORGAN@propmanage.dev ", dataset.DemoPassword)
	assert.Equal(t, "usr_001", auth.User.ID)
	assert.Equal(t, model.RoleAdmin, auth.User.Role)
	assert.EqualValues(t, 900, auth.Tokens.ExpiresIn)
	assert.NotEmpty(t, auth.Tokens.RefreshToken)

	headers := bearer(auth.Tokens.AccessToken)
	headers["X-Correlation-Id"] = "corr-42"
	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/properties?page=1&limit=2",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-Id"))
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 2, resp.TotalPages)
	var items []model.Property
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	assert.Len(t, items, 2)
}

func TestListUsesServerDefaultsForBadPaging(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	token := adminToken(t, f.server)
	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/payments?page=-3&limit=1000",
		headers: bearer(token),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, model.MaxLimit, resp.Limit)
	assert.Equal(t, 8, resp.Total)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/payments?status=PENDING",
		headers: bearer(token),
	})
	resp = decodeResponse(t, rec)
	assert.Equal(t, dataset.DefaultLimit, resp.Limit)
	assert.Equal(t, 2, resp.Total)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   model.LoginCredentials{Email: dataset.DemoEmail, Password: "wrong-password"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeResponse(t, rec).Error)

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   []byte("{broken"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid json body", decodeResponse(t, rec).Error)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body: model.RegisterRequest{
			Name:     "Casey Lin",
			Email:    "casey@example.com",
			Password: "correct-horse",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auth := decodeData[model.AuthResponse](t, rec)
	assert.Equal(t, model.RoleTenant, auth.User.Role)
	assert.NotEmpty(t, auth.Tokens.AccessToken)

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body: model.RegisterRequest{
			Name:     "Casey Again",
			Email:    "CASEY@example.com",
			Password: "correct-horse",
		},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body: model.RegisterRequest{
			Name:     "Mallory",
			Email:    "mallory@example.com",
			Password: "correct-horse",
			Role:     model.RoleAdmin,
		},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   model.RegisterRequest{Name: "Short", Email: "short@example.com", Password: "abc"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	auth := login(t, f.server, dataset.DemoEmail, dataset.DemoPassword)

	rec := doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": auth.Tokens.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decodeData[model.AuthResponse](t, rec)
	assert.Equal(t, "usr_001", refreshed.User.ID)
	assert.NotEqual(t, auth.Tokens.AccessToken, refreshed.Tokens.AccessToken)

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": auth.Tokens.AccessToken},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "wrong token type", decodeResponse(t, rec).Error)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/dashboard/stats",
		headers: bearer(auth.Tokens.RefreshToken),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens do not authorize API calls")

	rec = doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpiredAccessToken(t *testing.T) {
	f := newFixture(t, ServerConfig{TokenTTL: time.Minute}, Options{})
	token := adminToken(t, f.server)
	f.clock.Advance(2 * time.Minute)

	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/tenants",
		headers: bearer(token),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decodeResponse(t, rec).Error)
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	other := newFixture(t, ServerConfig{JWTSecret: "someone-else"}, Options{})
	token := adminToken(t, other.server)

	f := newFixture(t, ServerConfig{JWTSecret: "ours"}, Options{})
	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/tenants",
		headers: bearer(token),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPropertyLifecycle(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	headers := bearer(adminToken(t, f.server))

	rec := doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/properties",
		headers: headers,
		body: model.PropertyInput{
			Name:    "Oak Terrace",
			Address: "5 Oak St",
			City:    "Austintown",
			State:   "OH",
			ZipCode: "44515",
			Type:    model.PropertyApartment,
			Units:   4,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[model.Property](t, rec)
	assert.Equal(t, model.PropertyActive, created.Status)
	assert.Equal(t, "usr_001", created.ManagerID)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/properties/" + created.ID + "/units",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]model.Unit](t, rec), 4)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/properties/" + created.ID,
		headers: headers,
		body:    map[string]any{"name": "Oak Terrace Lofts"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Oak Terrace Lofts", decodeData[model.Property](t, rec).Name)

	rec = doRequest(t, f.server, request{
		method:  http.MethodDelete,
		path:    "/api/properties/prop_001",
		headers: headers,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, f.server, request{
		method:  http.MethodDelete,
		path:    "/api/properties/" + created.ID,
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/properties/" + created.ID,
		headers: headers,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePropertyValidation(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/properties",
		headers: bearer(adminToken(t, f.server)),
		body:    map[string]any{"address": "1 Main"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Missing required field: name", resp.Error)
}

func TestTenantRoleCannotManageProperties(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   model.RegisterRequest{Name: "Tia", Email: "tia@example.com", Password: "long-enough"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decodeData[model.AuthResponse](t, rec).Tokens.AccessToken

	rec = doRequest(t, f.server, request{
		method:  http.MethodDelete,
		path:    "/api/properties/prop_003",
		headers: bearer(token),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/properties/prop_003",
		headers: bearer(token),
	})
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay open to tenants")
}

func TestTenantAndPaymentFlow(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	headers := bearer(adminToken(t, f.server))

	rec := doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/tenants",
		headers: headers,
		body: model.TenantInput{
			Name:       "Rae Quinn",
			Email:      "rae@example.com",
			PropertyID: "prop_003",
			UnitID:     "unit_201",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tenant := decodeData[model.Tenant](t, rec)
	assert.EqualValues(t, 3200, tenant.MonthlyRent)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/tenants/" + tenant.ID,
		headers: headers,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/payments",
		headers: headers,
		body:    model.PaymentInput{TenantID: tenant.ID, Amount: 3200},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeData[model.Payment](t, rec)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.Equal(t, "prop_003", payment.PropertyID)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/payments/create-intent",
		headers: headers,
		body:    model.PaymentIntentRequest{Amount: 3200, TenantID: tenant.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	intent := decodeData[model.PaymentIntent](t, rec)
	assert.Equal(t, "usd", intent.Currency)
	assert.Contains(t, intent.ClientSecret, "_secret_")

	rec = doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/payments",
		headers: headers,
		body:    model.PaymentInput{TenantID: "ten_missing", Amount: 10},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaintenanceFlow(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	headers := bearer(adminToken(t, f.server))

	rec := doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/maintenance",
		headers: headers,
		body: model.TicketInput{
			Title:       "Dishwasher won't drain",
			Description: "Standing water after every cycle.",
			Category:    model.CategoryAppliance,
			TenantID:    "ten_004",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticket := decodeData[model.MaintenanceTicket](t, rec)
	assert.Equal(t, model.TicketOpen, ticket.Status)
	assert.Equal(t, model.PriorityMedium, ticket.Priority)
	assert.Equal(t, "prop_002", ticket.PropertyID)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/maintenance/" + ticket.ID + "/assign",
		headers: headers,
		body:    map[string]string{"assignedTo": " Ace Appliance "},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decodeData[model.MaintenanceTicket](t, rec)
	assert.Equal(t, "Ace Appliance", assigned.AssignedTo)
	assert.Equal(t, model.TicketInProgress, assigned.Status)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/maintenance/" + ticket.ID,
		headers: headers,
		body:    map[string]any{"status": model.TicketResolved},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeData[model.MaintenanceTicket](t, rec).ResolvedDate)

	rec = doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/maintenance?priority=URGENT",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	urgent := decodeData[[]model.MaintenanceTicket](t, rec)
	require.Len(t, urgent, 1)
	assert.Equal(t, "tkt_001", urgent[0].ID)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPost,
		path:    "/api/maintenance/tkt_001/assign",
		headers: headers,
		body:    map[string]string{"assignedTo": "  "},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsAreScopedToCaller(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	headers := bearer(adminToken(t, f.server))

	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/notifications?unread=true",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, 2, resp.Total)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/notifications/ntf_004/read",
		headers: headers,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's notification")

	rec = doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/notifications/ntf_001/read",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[model.Notification](t, rec).Read)

	rec = doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/notifications/read-all",
		headers: headers,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"updated": 1}, decodeData[map[string]int](t, rec))
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{
		method:  http.MethodGet,
		path:    "/api/dashboard/stats",
		headers: bearer(adminToken(t, f.server)),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[model.DashboardStats](t, rec)
	assert.Equal(t, 3, stats.TotalProperties)
	assert.Equal(t, 30, stats.TotalUnits)
	assert.EqualValues(t, 6720, stats.TotalRevenue)
	assert.Len(t, stats.RevenueByMonth, 6)
}

func TestDashboardPage(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	rec := doRequest(t, f.server, request{method: http.MethodGet, path: "/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Riverside Apartments")
	assert.Contains(t, body, "$6,720.00")
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	for _, path := range []string{"/nope", "/api", "/api/properties//units", "/api/widgets"} {
		rec := doRequest(t, f.server, request{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "route not found", decodeResponse(t, rec).Error, path)
	}
}

func TestMatchRoute(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "auth/login", "auth_login"},
		{http.MethodGet, "auth/login", ""},
		{http.MethodGet, "properties", "properties_list"},
		{http.MethodDelete, "properties/prop_1", "property_delete"},
		{http.MethodGet, "properties/prop_1/units", "property_units"},
		{http.MethodPost, "payments/create-intent", "payments_intent"},
		{http.MethodGet, "payments/create-intent", ""},
		{http.MethodPost, "maintenance/tkt_1/assign", "ticket_assign"},
		{http.MethodPut, "notifications/read-all", "notifications_read_all"},
		{http.MethodPut, "notifications/ntf_1/read", "notification_read"},
		{http.MethodGet, "dashboard/stats", "dashboard_stats"},
		{http.MethodGet, "events", "events"},
		{http.MethodGet, "tenants/ten_1/extra", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchRoute(tc.method, strings.Split(tc.path, "/")), tc.method+" "+tc.path)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, ServerConfig{RateLimitMax: 2, RateLimitWindow: time.Minute}, Options{})
	token := adminToken(t, f.server)

	rec := doRequest(t, f.server, request{method: http.MethodGet, path: "/api/tenants", headers: bearer(token)})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, f.server, request{method: http.MethodGet, path: "/api/tenants", headers: bearer(token)})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, f.server, request{method: http.MethodGet, path: "/api/tenants", headers: bearer(token)})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	f.clock.Advance(61 * time.Second)
	rec = doRequest(t, f.server, request{method: http.MethodGet, path: "/api/tenants", headers: bearer(token)})
	assert.Equal(t, http.StatusOK, rec.Code, "a new window opens")
}

func TestPayloadTooLarge(t *testing.T) {
	f := newFixture(t, ServerConfig{MaxBodyBytes: 32}, Options{})
	rec := doRequest(t, f.server, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": strings.Repeat("a", 64) + "@example.com", "password": "x"},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, ServerConfig{}, Options{Metrics: metrics.New(reg), Gatherer: reg})

	doRequest(t, f.server, request{method: http.MethodGet, path: "/api/tenants"})
	rec := doRequest(t, f.server, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `propsync_api_requests_total{route="tenants_list",status="4xx"} 1`)

	bare := newFixture(t, ServerConfig{}, Options{})
	rec = doRequest(t, bare.server, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStreamBroadcastsMutations(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	token := adminToken(t, f.server)
	ts := httptest.NewServer(f.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", &websocket.DialOptions{
		HTTPHeader: header,
	})
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return f.server.Hub().Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	rec := doRequest(t, f.server, request{
		method:  http.MethodPut,
		path:    "/api/properties/prop_003",
		headers: bearer(token),
		body:    map[string]any{"description": "Now with a coffee shop."},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var event model.ChangeEvent
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	assert.Equal(t, model.ResourceProperties, event.Resource)
	assert.Equal(t, model.ActionUpdated, event.Action)
	assert.Equal(t, "prop_003", event.ID)
	assert.True(t, event.At.Equal(testNow))

	f.server.Hub().Close()
	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestEventsRequireAuth(t *testing.T) {
	f := newFixture(t, ServerConfig{}, Options{})
	ts := httptest.NewServer(f.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow := &eventClient{userID: "usr_1", send: make(chan model.ChangeEvent, 1)}
	other := &eventClient{userID: "usr_2", send: make(chan model.ChangeEvent, 4)}
	require.True(t, hub.register(slow))
	require.True(t, hub.register(other))

	hub.Publish(model.ChangeEvent{Resource: model.ResourceTickets}, "")
	hub.Publish(model.ChangeEvent{Resource: model.ResourceTickets}, "")
	assert.Equal(t, 1, hub.Clients(), "the full client was dropped")
	_, open := <-slow.send
	assert.True(t, open, "buffered event is still delivered")
	_, open = <-slow.send
	assert.False(t, open)

	hub.Publish(model.ChangeEvent{Resource: model.ResourceNotifications}, "usr_1")
	assert.Len(t, other.send, 2, "user-targeted events skip other users")

	hub.unregister(slow)
	hub.Close()
	assert.False(t, hub.register(&eventClient{send: make(chan model.ChangeEvent, 1)}))
}
