package ledger

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/shiftledger/internal/analytics"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// SoldItemsSource yields the items sold per business date. The analytics
// service builds its cache entry on a miss, so calling it may write.
type SoldItemsSource interface {
	SoldItems(ctx context.Context, date shift.Date) (analytics.SoldItems, error)
}

// UsageFromLines converts sold lines into commodity consumption. The per-item
// factor is authoritative; category keywords are only consulted when the
// factors sum to zero. Meat is returned in grams.
func UsageFromLines(c Commodity, lines []analytics.SoldLine, keywords []string, pattyGrams int64) int64 {
	var primary int64
	for _, line := range lines {
		primary += line.Quantity * factor(c, line)
	}
	if primary == 0 {
		primary = keywordQuantity(lines, keywords)
	}
	if c == CommodityMeat {
		return primary * pattyGrams
	}
	return primary
}

func factor(c Commodity, line analytics.SoldLine) int64 {
	switch c {
	case CommodityRolls:
		return line.RollsPerItem
	case CommodityMeat:
		return line.PattiesPerItem
	case CommodityDrinks:
		return line.DrinksPerItem
	}
	return 0
}

func keywordQuantity(lines []analytics.SoldLine, keywords []string) int64 {
	if len(keywords) == 0 {
		return 0
	}
	// A Caser is stateful and must not be shared across goroutines.
	folder := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			folded = append(folded, folder.String(kw))
		}
	}
	var total int64
	for _, line := range lines {
		category := folder.String(line.Category)
		for _, kw := range folded {
			if strings.Contains(category, kw) {
				total += line.Quantity
				break
			}
		}
	}
	return total
}

// UsageAggregator resolves usedQty for a commodity and business date.
type UsageAggregator struct {
	source   SoldItemsSource
	settings Settings
}

// NewUsageAggregator constructs the aggregator.
func NewUsageAggregator(source SoldItemsSource, settings Settings) *UsageAggregator {
	return &UsageAggregator{source: source, settings: settings}
}

// Used returns the quantity consumed. No sales is zero usage, not an error.
func (a *UsageAggregator) Used(ctx context.Context, c Commodity, date shift.Date) (int64, error) {
	items, err := a.source.SoldItems(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("ledger: sold items %s: %w", date, err)
	}
	policy := a.settings.Policy(c)
	return UsageFromLines(c, items.Lines, policy.Keywords, a.settings.PattyGrams), nil
}
