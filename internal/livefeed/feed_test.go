package livefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

type recordingInvalidator struct {
	mu        sync.Mutex
	resources []string
}

func (r *recordingInvalidator) InvalidateResource(resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = append(r.resources, resource)
}

func (r *recordingInvalidator) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.resources...)
}

func TestEventsURL(t *testing.T) {
	got, err := EventsURL("http://127.0.0.1:8080/api/")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/api/events", got)

	got, err = EventsURL("https://pm.example.com/api")
	require.NoError(t, err)
	assert.Equal(t, "wss://pm.example.com/api/events", got)

	_, err = EventsURL("ftp://pm.example.com")
	assert.Error(t, err)
}

func TestRunInvalidatesAndReconnects(t *testing.T) {
	var connections atomic.Int32
	auth := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		if connections.Add(1) == 1 {
			_ = wsjson.Write(ctx, conn, model.ChangeEvent{Resource: "tickets", Action: model.ActionUpdated, ID: "tkt_1"})
			_ = wsjson.Write(ctx, conn, model.ChangeEvent{Action: model.ActionUpdated})
			// Dropping the first connection forces a reconnect.
			_ = conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		_ = wsjson.Write(ctx, conn, model.ChangeEvent{Resource: "payments", Action: model.ActionCreated, ID: "pay_9"})
		// Block until the client goes away.
		_, _, _ = conn.Read(context.Background())
	}))
	defer server.Close()

	session := transport.NewSession()
	session.SetToken("token-1")
	events := make(chan model.ChangeEvent, 4)
	feed := New(Options{
		URL:       "ws" + strings.TrimPrefix(server.URL, "http"),
		Session:   session,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		OnEvent:   func(e model.ChangeEvent) { events <- e },
	})
	target := &recordingInvalidator{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, target) }()

	require.Eventually(t, func() bool { return len(target.seen()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tickets", "payments"}, target.seen(), "events without a resource are ignored")
	assert.Equal(t, "Bearer token-1", <-auth)
	first := <-events
	assert.Equal(t, "tkt_1", first.ID)
	assert.GreaterOrEqual(t, connections.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestRunRequiresURL(t *testing.T) {
	assert.Error(t, New(Options{}).Run(context.Background(), &recordingInvalidator{}))
}

func TestJitteredStaysWithinBounds(t *testing.T) {
	for range 100 {
		d := jittered(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
	assert.Zero(t, jittered(0))
}
