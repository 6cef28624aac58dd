package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// Memory implements Ledger with in-memory storage
type Memory struct {
	mu    sync.RWMutex
	byKey map[string]*types.Notification
	order []*types.Notification
}

// NewMemory creates a new memory ledger
func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]*types.Notification)}
}

// Claim implements Ledger.
func (m *Memory) Claim(_ context.Context, n *types.Notification) (bool, error) {
	if n == nil {
		return false, goerr.New("notification is nil")
	}
	if n.ID == "" {
		return false, goerr.New("notification ID is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := n.Key()
	if _, ok := m.byKey[key]; ok {
		return false, nil
	}
	cp := *n
	m.byKey[key] = &cp
	m.order = append(m.order, &cp)
	return true, nil
}

// Recent implements Ledger.
func (m *Memory) Recent(_ context.Context, limit int) ([]*types.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Notification, 0, len(m.order))
	// Latest claim first among equal timestamps, matching rowid DESC.
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := *m.order[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Ledger.
func (m *Memory) Close() error { return nil }
