package ledger

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
)

// ActualCountResolver reads the staff-declared closing count.
type ActualCountResolver struct {
	forms shiftform.Store
}

// NewActualCountResolver constructs the resolver.
func NewActualCountResolver(forms shiftform.Store) *ActualCountResolver {
	return &ActualCountResolver{forms: forms}
}

// Actual returns the declared ending count, or nil when none was declared.
func (r *ActualCountResolver) Actual(ctx context.Context, c Commodity, date shift.Date) (*int64, error) {
	counts, err := shiftform.LoadDeclaredCounts(ctx, r.forms, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: declared counts %s: %w", date, err)
	}
	switch c {
	case CommodityRolls:
		return counts.Rolls, nil
	case CommodityMeat:
		return counts.MeatGrams, nil
	case CommodityDrinks:
		return counts.Drinks, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCommodity, c)
}
