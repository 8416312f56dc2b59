package journal

import (
	"context"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// NoopStore is a no-op implementation used when persistence is not
// configured (dry runs, tests).
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) Append(_ context.Context, _ types.TradeRecord) error { return nil }
func (n *NoopStore) List(_ context.Context, _ string) ([]types.TradeRecord, error) {
	return nil, nil
}
func (n *NoopStore) Close() error { return nil }
