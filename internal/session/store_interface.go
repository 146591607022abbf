package session

import (
	"context"

	"hookrelay/internal/types"
)

// HookStore holds the captured-request log of every live session.
// Records for a session are kept in append order.
type HookStore interface {
	Append(ctx context.Context, sessionID string, rec types.HookRecord) error
	List(ctx context.Context, sessionID string) ([]types.HookRecord, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
