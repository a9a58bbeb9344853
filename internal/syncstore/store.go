// Package syncstore caches remote query results per key, coalesces duplicate
// requests, discards stale responses and applies optimistic mutations.
package syncstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/metrics"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

var ErrClosed = errors.New("store closed")

// DashboardResource is invalidated along with every resource list, since its
// figures are derived from all of them.
const DashboardResource = model.ResourceDashboard

type Loader interface {
	Load(ctx context.Context, key QueryKey) (any, error)
}

type LoaderFunc func(ctx context.Context, key QueryKey) (any, error)

func (f LoaderFunc) Load(ctx context.Context, key QueryKey) (any, error) {
	return f(ctx, key)
}

type Options struct {
	// MaxAge expires cached successes; zero keeps them until invalidated.
	MaxAge time.Duration
	// RefetchObserved makes invalidation of an observed key start a refetch
	// immediately instead of waiting for the next Request.
	RefetchObserved bool
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

type Store struct {
	loader          Loader
	maxAge          time.Duration
	refetchObserved bool
	logger          *zap.Logger
	metrics         *metrics.Metrics
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	key       QueryKey
	state     State
	seq       uint64
	inflight  *Call
	invalid   bool
	fetchedAt time.Time
	// version changes on every publish; mutations use it to detect that a
	// key moved on after they patched it.
	version uint64
	subs    map[*Subscription]struct{}
}

// Call is one initiated fetch, shared by every coalesced requester.
type Call struct {
	key   QueryKey
	seq   uint64
	done  chan struct{}
	value any
	err   error
}

func (c *Call) Key() QueryKey { return c.key }

func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call completes or ctx ends. It returns the call's own
// outcome even when a newer call has since replaced it in the store.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func completedCall(key QueryKey, value any, err error) *Call {
	call := &Call{key: key, done: make(chan struct{}), value: value, err: err}
	close(call.done)
	return call
}

func New(loader Loader, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		loader:          loader,
		maxAge:          opts.MaxAge,
		refetchObserved: opts.RefetchObserved,
		logger:          logging.OrNop(opts.Logger).Named("syncstore"),
		metrics:         opts.Metrics,
		now:             now,
		ctx:             ctx,
		cancel:          cancel,
		entries:         map[string]*entry{},
	}
}

// Request returns the in-flight call for key if there is one, a completed
// call holding the cached value if it is still fresh, or a new call.
func (s *Store) Request(ctx context.Context, key QueryKey) *Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return completedCall(key, nil, ErrClosed)
	}
	e := s.entryLocked(key)
	if e.inflight != nil && !e.invalid {
		s.metrics.StoreRequest(key.Resource, "coalesced")
		s.logger.Debug("request coalesced", zap.String("key", key.String()))
		return e.inflight
	}
	if s.freshLocked(e) {
		s.metrics.StoreRequest(key.Resource, "hit")
		return completedCall(key, e.state.Value, nil)
	}
	s.metrics.StoreRequest(key.Resource, "fetch")
	return s.startLocked(ctx, e)
}

// Refresh invalidates key and requests it again.
func (s *Store) Refresh(ctx context.Context, key QueryKey) *Call {
	s.mu.Lock()
	if e, ok := s.entries[key.String()]; ok {
		e.invalid = true
	}
	s.mu.Unlock()
	return s.Request(ctx, key)
}

// Fetch requests key and waits for the outcome.
func (s *Store) Fetch(ctx context.Context, key QueryKey) (any, error) {
	return s.Request(ctx, key).Wait(ctx)
}

// Invalidate marks key stale so the next Request bypasses coalescing and the
// cache and starts a new call.
func (s *Store) Invalidate(key QueryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key.String()]; ok {
		s.invalidateLocked(e)
	}
}

// InvalidateResource invalidates every cached list of resource, plus the
// dashboard figures derived from it.
func (s *Store) InvalidateResource(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateResourceLocked(resource)
}

func (s *Store) invalidateResourceLocked(resource string) {
	for _, e := range s.entries {
		if e.key.Kind == KindMutation {
			continue
		}
		if (e.key.Resource == resource && e.key.Kind == KindList) || e.key.Resource == DashboardResource {
			s.invalidateLocked(e)
		}
	}
}

func (s *Store) invalidateLocked(e *entry) {
	e.invalid = true
	s.metrics.Invalidation(e.key.Resource)
	if s.refetchObserved && len(e.subs) > 0 && !s.closed {
		s.startLocked(context.Background(), e)
	}
}

// Snapshot returns the current state of key without touching the network.
func (s *Store) Snapshot(key QueryKey) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key.String()]; ok {
		return e.state
	}
	return Idle()
}

// Cached returns the values of every list of resource currently in Success,
// ordered by key.
func (s *Store) Cached(resource string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.entries {
		if e.key.Resource == resource && e.key.Kind == KindList && e.state.Phase == PhaseSuccess {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, s.entries[k].state.Value)
	}
	return values
}

// Close cancels outstanding fetches and ends every subscription.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var subs []*Subscription
	for _, e := range s.entries {
		for sub := range e.subs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	s.cancel()
	for _, sub := range subs {
		sub.Close()
	}
}

func (s *Store) entryLocked(key QueryKey) *entry {
	k := key.String()
	e, ok := s.entries[k]
	if !ok {
		e = &entry{key: key, state: Idle(), subs: map[*Subscription]struct{}{}}
		s.entries[k] = e
	}
	return e
}

func (s *Store) freshLocked(e *entry) bool {
	if e.invalid || e.state.Phase != PhaseSuccess {
		return false
	}
	if s.maxAge > 0 && s.now().Sub(e.fetchedAt) > s.maxAge {
		return false
	}
	return true
}

// startLocked begins a new call for e. The fetch keeps ctx's values but not
// its cancellation; it ends when the store closes or the loader returns.
func (s *Store) startLocked(ctx context.Context, e *entry) *Call {
	e.seq++
	e.invalid = false
	call := &Call{key: e.key, seq: e.seq, done: make(chan struct{})}
	e.inflight = call
	s.publishLocked(e, Loading())

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	go func() {
		defer cancel()
		defer stop()
		value, err := s.loader.Load(fetchCtx, call.key)
		s.complete(call, value, err)
	}()
	return call
}

func (s *Store) complete(call *Call, value any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call.value, call.err = value, err
	defer close(call.done)

	e, ok := s.entries[call.key.String()]
	if !ok {
		return
	}
	if e.inflight == call {
		e.inflight = nil
	}
	if call.seq != e.seq {
		s.metrics.StaleDiscard(call.key.Resource)
		s.logger.Debug("stale response discarded",
			zap.String("key", call.key.String()),
			zap.Uint64("seq", call.seq),
			zap.Uint64("latest", e.seq),
		)
		return
	}
	if err != nil {
		msg, code := transport.Describe(err)
		s.publishLocked(e, Failure(msg, code))
		return
	}
	e.fetchedAt = s.now()
	s.publishLocked(e, Success(value))
}

func (s *Store) publishLocked(e *entry, state State) {
	e.state = state
	e.version++
	for sub := range e.subs {
		sub.push(state)
	}
}
