// Package livefeed keeps a store's cache honest by listening for server-side
// change events over a websocket.
package livefeed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/metrics"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 30 * time.Second
	readLimit        = 64 << 10
)

// Invalidator is the part of the store a feed drives.
type Invalidator interface {
	InvalidateResource(resource string)
}

type Options struct {
	// URL is the ws:// or wss:// events endpoint; see EventsURL.
	URL        string
	Session    *transport.Session
	HTTPClient *http.Client
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// OnEvent, when set, observes every event after invalidation.
	OnEvent func(model.ChangeEvent)
}

type Feed struct {
	url        string
	session    *transport.Session
	httpClient *http.Client
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	onEvent    func(model.ChangeEvent)
}

func New(opts Options) *Feed {
	f := &Feed{
		url:        opts.URL,
		session:    opts.Session,
		httpClient: opts.HTTPClient,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		logger:     logging.OrNop(opts.Logger).Named("livefeed"),
		metrics:    opts.Metrics,
		onEvent:    opts.OnEvent,
	}
	if f.baseDelay <= 0 {
		f.baseDelay = defaultBaseDelay
	}
	if f.maxDelay <= 0 {
		f.maxDelay = defaultMaxDelay
	}
	if f.session == nil {
		f.session = transport.NewSession()
	}
	return f
}

// EventsURL derives the websocket endpoint from an API base URL.
func EventsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path += "/events"
	return u.String(), nil
}

// Run listens until ctx ends, invalidating target for every event and
// reconnecting with exponential backoff after a dropped connection.
func (f *Feed) Run(ctx context.Context, target Invalidator) error {
	if f.url == "" {
		return errors.New("livefeed: no events url")
	}
	attempt := 0
	for {
		received, err := f.listen(ctx, target)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			attempt = 0
		}
		attempt++
		delay := jittered(transport.Backoff(attempt, f.baseDelay, f.maxDelay))
		f.logger.Warn("event stream interrupted",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// listen holds one connection open. It reports whether any event arrived so
// a healthy connection resets the backoff.
func (f *Feed) listen(ctx context.Context, target Invalidator) (bool, error) {
	header := http.Header{}
	if token := f.session.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{
		HTTPClient: f.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)
	f.logger.Info("event stream connected", zap.String("url", f.url))

	received := false
	for {
		var event model.ChangeEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return received, errors.New("server closed the event stream")
			}
			return received, err
		}
		received = true
		if event.Resource == "" {
			continue
		}
		target.InvalidateResource(event.Resource)
		f.metrics.LiveEvent(event.Resource)
		f.logger.Debug("change event",
			zap.String("resource", event.Resource),
			zap.String("action", string(event.Action)),
			zap.String("id", event.ID),
		)
		if f.onEvent != nil {
			f.onEvent(event)
		}
	}
}

func jittered(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return delay/2 + rand.N(delay/2+1)
}
