package ledger

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// ReceiptLog is the stock-received log. Rows are attributed to a business
// date when they are written, so summing never has to re-derive windows.
type ReceiptLog interface {
	RecordReceipts(ctx context.Context, receipts []StockReceipt) error
	SumReceived(ctx context.Context, c Commodity, date shift.Date) (int64, error)
}

// PurchaseAggregator sums received quantities from the stock-received log.
// Purchasing lines and expense rows are deliberately not read: the log is the
// single source for every commodity.
type PurchaseAggregator struct {
	log ReceiptLog
}

// NewPurchaseAggregator constructs the aggregator.
func NewPurchaseAggregator(log ReceiptLog) *PurchaseAggregator {
	return &PurchaseAggregator{log: log}
}

// Purchased returns the computed purchase total for the date.
func (a *PurchaseAggregator) Purchased(ctx context.Context, c Commodity, date shift.Date) (int64, error) {
	total, err := a.log.SumReceived(ctx, c, date)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum receipts %s %s: %w", c, date, err)
	}
	return total, nil
}

// EffectivePurchased applies the manual override when one is stored.
func EffectivePurchased(computed int64, override Override) int64 {
	if override.PurchasedQty != nil {
		return *override.PurchasedQty
	}
	return computed
}
