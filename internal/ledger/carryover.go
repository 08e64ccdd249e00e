package ledger

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// ResolveOpening returns the closing quantity of the previous day's row in
// precedence order: overridden actual, declared actual, estimate, zero.
func ResolveOpening(prev *Entry) int64 {
	switch {
	case prev == nil:
		return 0
	case prev.Override.ActualEndQty != nil:
		return *prev.Override.ActualEndQty
	case prev.DeclaredActualEndQty != nil:
		return *prev.DeclaredActualEndQty
	default:
		return prev.EstimatedEndQty
	}
}

// EntryReader loads one ledger row.
type EntryReader interface {
	GetLedger(ctx context.Context, c Commodity, date shift.Date) (*Entry, error)
}

// CarryoverResolver resolves startQty from the previous business date.
type CarryoverResolver struct {
	store EntryReader
}

// NewCarryoverResolver constructs the resolver.
func NewCarryoverResolver(store EntryReader) *CarryoverResolver {
	return &CarryoverResolver{store: store}
}

// Opening returns startQty for date.
func (r *CarryoverResolver) Opening(ctx context.Context, c Commodity, date shift.Date) (int64, error) {
	prev, err := r.store.GetLedger(ctx, c, date.AddDays(-1))
	if err != nil {
		return 0, fmt.Errorf("ledger: prior day %s %s: %w", c, date, err)
	}
	return ResolveOpening(prev), nil
}
