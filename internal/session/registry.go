package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry is the set of live sessions, keyed by session id. It is safe for
// concurrent use.
type Registry struct {
	sessions sync.Map
	store    HookStore
	clock    clock.Clock
	buffer   int
	newID    func() string
	log      *zap.Logger
}

type RegistryOptions struct {
	Store        HookStore
	Clock        clock.Clock
	StreamBuffer int
	Logger       *zap.Logger
	// NewID overrides the identifier generator. Defaults to random UUIDs.
	NewID func() string
}

func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{
		store:  opts.Store,
		clock:  opts.Clock,
		buffer: opts.StreamBuffer,
		newID:  opts.NewID,
		log:    opts.Logger,
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.newID == nil {
		r.newID = func() string { return uuid.New().String() }
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Create allocates a session with a fresh identifier and registers it.
func (r *Registry) Create() *Session {
	for {
		sess := newSession(r.newID(), r.clock.Now(), r.buffer, r.store, r.log)
		if _, loaded := r.sessions.LoadOrStore(sess.ID, sess); !loaded {
			r.log.Debug("💾 Session registered", zap.String("session_id", sess.ID))
			return sess
		}
		// Identifier collision: draw another.
	}
}

// Find returns the live session with the given id.
func (r *Registry) Find(id string) (*Session, bool) {
	val, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Session), true
}

// Get is Find with an error result.
func (r *Registry) Get(id string) (*Session, error) {
	sess, ok := r.Find(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove unregisters a session, releases its stream and clears its hook
// log. Removing an unknown id does nothing.
func (r *Registry) Remove(id string) {
	val, loaded := r.sessions.LoadAndDelete(id)
	if !loaded {
		return
	}
	val.(*Session).close(context.Background())
	r.log.Debug("🗑 Session removed", zap.String("session_id", id))
}

// Len counts live sessions.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// IDs lists live session ids in sorted order.
func (r *Registry) IDs() []string {
	var ids []string
	r.sessions.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	slices.Sort(ids)
	return ids
}

// Close removes every session and closes the hook store.
func (r *Registry) Close() error {
	for _, id := range r.IDs() {
		r.Remove(id)
	}
	return r.store.Close()
}
