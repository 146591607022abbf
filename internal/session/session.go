package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hookrelay/internal/relay"
	"hookrelay/internal/types"
)

// Session is one client's capture context: its stream relay, hook log and
// response policy.
type Session struct {
	ID        string
	CreatedAt time.Time

	relay *relay.Relay
	store HookStore
	log   *zap.Logger

	// mu guards policy and closed only. It is never held across I/O.
	mu     sync.Mutex
	policy ResponsePolicy
	closed bool

	nextHookID atomic.Int64
	// pending counts RecordHook calls that passed the closed check and may
	// still write to the store.
	pending sync.WaitGroup
}

func newSession(id string, createdAt time.Time, buffer int, store HookStore, log *zap.Logger) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		relay:     relay.New(buffer),
		store:     store,
		log:       log.With(zap.String("session_id", id)),
		policy:    DefaultPolicy(),
	}
}

// Relay returns the session's event relay.
func (s *Session) Relay() *relay.Relay {
	return s.relay
}

// Publish sends an event to the bound stream, if any.
func (s *Session) Publish(kind relay.Kind, payload any) bool {
	return s.relay.Publish(kind, payload)
}

// Policy returns a snapshot of the current response policy.
func (s *Session) Policy() ResponsePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ResponsePolicy{StatusCode: s.policy.StatusCode, Body: cloneRaw(s.policy.Body)}
}

// UpdatePolicy applies req to the current policy and returns the result.
// On error the policy is left unchanged.
func (s *Session) UpdatePolicy(req *types.ControlRequest) (ResponsePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.policy.Apply(req)
	if err != nil {
		return s.policy, err
	}
	s.policy = next
	return next, nil
}

// RecordHook assigns the next hook id to rec, appends it to the hook log and
// publishes it as a hook event. Ids start at 1 and have no gaps. A closed
// session yields ErrSessionNotFound and records nothing. A hook log backend
// failure is logged; the record is still published.
func (s *Session) RecordHook(ctx context.Context, rec types.HookRecord) (types.HookRecord, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return rec, ErrSessionNotFound
	}
	rec.HookID = s.nextHookID.Add(1)
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()

	if err := s.store.Append(ctx, s.ID, rec); err != nil {
		s.log.Error("Failed to append hook record", zap.Int64("hook_id", rec.HookID), zap.Error(err))
	}

	s.relay.Publish(relay.KindHook, rec)
	return rec, nil
}

// HookCount is the number of hook calls captured so far.
func (s *Session) HookCount() int64 {
	return s.nextHookID.Load()
}

// Hooks returns the captured records in arrival (hook id) order.
func (s *Session) Hooks(ctx context.Context) ([]types.HookRecord, error) {
	hooks, err := s.store.List(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(hooks, func(a, b types.HookRecord) int {
		return cmp.Compare(a.HookID, b.HookID)
	})
	return hooks, nil
}

// close marks the session closed, releases its stream and clears its hook
// log once every in-flight RecordHook has finished writing.
func (s *Session) close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Releasing the relay first unblocks publishers waiting on a full buffer.
	s.relay.Close()
	s.pending.Wait()

	if err := s.store.Delete(ctx, s.ID); err != nil {
		s.log.Warn("Failed to clear hook log", zap.Error(err))
	}
}
