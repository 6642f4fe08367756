// Package idempotency defines how repeated order placements with the same
// Idempotency-Key are detected.
package idempotency

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrInProgress is returned when another request with the same key has not
// finished yet.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// Store records which order a key produced. Keys are scoped per user.
type Store interface {
	// Begin claims key. It returns "" when the caller owns the key and must
	// run the request, the stored order ID when the key already completed, or
	// ErrInProgress.
	Begin(ctx context.Context, userID, key string) (string, error)
	// Complete records the order created for key.
	Complete(ctx context.Context, userID, key, orderID string) error
	// Release drops a claim so the request can be retried with the same key.
	Release(ctx context.Context, userID, key string) error
}
