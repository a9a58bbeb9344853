package syncstore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/transport"
)

// Mutation describes one write and how it affects cached values.
type Mutation struct {
	// Name and Target form the mutation's observable key.
	Name   string
	Target string
	// Invalidates lists the resources whose cached lists go stale once the
	// server confirms the write.
	Invalidates []string
	// Predict, when set, returns the locally predicted value for a cached
	// key and whether the key is affected. It must not modify current.
	// Leave it nil for writes that must never be applied optimistically.
	Predict func(key QueryKey, current any) (any, bool)
	// Reconcile merges the server's result into a predicted value. The
	// server's fields win. Without it the predicted value is kept.
	Reconcile func(key QueryKey, predicted any, result any) (any, bool)
	Do        func(ctx context.Context) (any, error)
}

func (m Mutation) Key() QueryKey {
	return MutationKey(m.Name, m.Target)
}

type Coordinator struct {
	store *Store
}

func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{store: store}
}

type patch struct {
	entry   *entry
	before  State
	version uint64
}

// Mutate applies m. Predicted values are published as optimistic successes
// before the server is called; a confirmed write reconciles them and a
// failed one restores the previous values and publishes a rolled-back
// failure on each affected key.
func (c *Coordinator) Mutate(ctx context.Context, m Mutation) (any, error) {
	if m.Do == nil {
		return nil, errors.New("mutation has no remote call")
	}
	s := c.store
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	me := s.entryLocked(m.Key())
	me.seq++
	seq := me.seq
	s.publishLocked(me, Loading())

	var patches []patch
	if m.Predict != nil {
		for _, e := range s.entries {
			if e.key.Kind == KindMutation || e.state.Phase != PhaseSuccess {
				continue
			}
			next, ok := m.Predict(e.key, e.state.Value)
			if !ok {
				continue
			}
			before := e.state
			s.publishLocked(e, State{Phase: PhaseSuccess, Value: next, Optimistic: true})
			patches = append(patches, patch{entry: e, before: before, version: e.version})
		}
	}
	s.mu.Unlock()

	result, err := m.Do(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		msg, code := transport.Describe(err)
		for _, p := range patches {
			if p.entry.version != p.version {
				// Someone published a newer state since the prediction.
				s.invalidateLocked(p.entry)
				continue
			}
			s.publishLocked(p.entry, State{
				Phase:      PhaseFailure,
				Value:      p.before.Value,
				Message:    msg,
				Code:       code,
				RolledBack: true,
			})
		}
		if me.seq == seq {
			s.publishLocked(me, State{Phase: PhaseFailure, Message: msg, Code: code, RolledBack: len(patches) > 0})
		}
		s.metrics.Mutation(m.Name, mutationOutcome(len(patches) > 0))
		s.logger.Info("mutation failed",
			zap.String("mutation", m.Name),
			zap.String("target", m.Target),
			zap.Int("rolled_back", len(patches)),
			zap.Error(err),
		)
		return nil, err
	}

	for _, p := range patches {
		if p.entry.version != p.version {
			s.invalidateLocked(p.entry)
			continue
		}
		value := p.entry.state.Value
		if m.Reconcile != nil {
			if merged, ok := m.Reconcile(p.entry.key, value, result); ok {
				value = merged
			}
		}
		s.publishLocked(p.entry, Success(value))
	}
	if me.seq == seq {
		s.publishLocked(me, Success(result))
	}
	s.metrics.Mutation(m.Name, "confirmed")
	reconciled := make(map[*entry]bool, len(patches))
	for _, p := range patches {
		reconciled[p.entry] = true
	}
	for _, resource := range m.Invalidates {
		s.invalidateResourceLocked(resource)
		if m.Target == "" {
			continue
		}
		// The target's own cached record was not reconciled, so it may
		// describe a record that changed or no longer exists.
		if e, ok := s.entries[EntityKey(resource, m.Target).String()]; ok && !reconciled[e] {
			s.invalidateLocked(e)
		}
	}
	return result, nil
}

func mutationOutcome(rolledBack bool) string {
	if rolledBack {
		return "rolled_back"
	}
	return "failed"
}
