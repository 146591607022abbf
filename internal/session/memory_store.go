package session

import (
	"context"
	"sync"

	"hookrelay/internal/types"
)

// MemoryStore keeps hook logs in process memory. Logs grow without bound
// for as long as their session lives.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]types.HookRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]types.HookRecord)}
}

func (st *MemoryStore) Append(_ context.Context, sessionID string, rec types.HookRecord) error {
	st.mu.Lock()
	st.logs[sessionID] = append(st.logs[sessionID], rec)
	st.mu.Unlock()
	return nil
}

func (st *MemoryStore) List(_ context.Context, sessionID string) ([]types.HookRecord, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	log := st.logs[sessionID]
	out := make([]types.HookRecord, len(log))
	copy(out, log)
	return out, nil
}

func (st *MemoryStore) Delete(_ context.Context, sessionID string) error {
	st.mu.Lock()
	delete(st.logs, sessionID)
	st.mu.Unlock()
	return nil
}

func (st *MemoryStore) Close() error {
	st.mu.Lock()
	st.logs = make(map[string][]types.HookRecord)
	st.mu.Unlock()
	return nil
}
