// Package ledger records which alerts have already been notified so a
// restart or a repeated evaluation does not announce the same week twice.
package ledger

import (
	"context"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// Ledger stores sent notifications.
type Ledger interface {
	// Claim records n unless a notification with the same Key exists.
	// It reports whether n was recorded.
	Claim(ctx context.Context, n *types.Notification) (bool, error)

	// Recent returns up to limit notifications, newest first. limit <= 0
	// means no limit.
	Recent(ctx context.Context, limit int) ([]*types.Notification, error)

	Close() error
}
