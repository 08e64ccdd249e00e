package comparison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/platform/db"
	"github.com/odyssey-erp/shiftledger/internal/pos"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Store reads and writes the POS side.
type Store interface {
	// ReceiptCount counts non-voided receipts closed inside window.
	ReceiptCount(ctx context.Context, window shift.Window) (int64, error)
	// Summary returns the materialised POS totals or nil when no row exists.
	Summary(ctx context.Context, date shift.Date) (*DailySource, error)
	// ReceiptSales aggregates raw receipts when no summary row exists.
	ReceiptSales(ctx context.Context, window shift.Window) (Sales, error)
	// ImportDay stores a fetched day and its summary atomically.
	ImportDay(ctx context.Context, date shift.Date, day pos.Day, summary DailySource, runID uuid.UUID) error
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

const receiptCountQuery = `
SELECT COUNT(*)::bigint
FROM pos_receipts
WHERE closed_at >= $1 AND closed_at < $2 AND NOT voided`

const receiptSalesQuery = `
SELECT payment_type, COALESCE(SUM(total), 0)
FROM pos_receipts
WHERE closed_at >= $1 AND closed_at < $2 AND NOT voided
GROUP BY payment_type`

const summaryQuery = `
SELECT cash_sales, qr_sales, delivery_sales, other_sales, total_sales,
       shopping_expenses, wage_expenses, other_expenses, starting_cash
FROM pos_daily_summaries
WHERE shift_date = $1`

const summaryLinesQuery = `
SELECT category, description, amount
FROM pos_expense_lines
WHERE shift_date = $1
ORDER BY id`

// ReceiptCount implements Store.
func (r *Repository) ReceiptCount(ctx context.Context, window shift.Window) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, receiptCountQuery, window.From, window.To).Scan(&n); err != nil {
		return 0, fmt.Errorf("comparison: count receipts: %w", err)
	}
	return n, nil
}

// ReceiptSales implements Store.
func (r *Repository) ReceiptSales(ctx context.Context, window shift.Window) (Sales, error) {
	rows, err := r.pool.Query(ctx, receiptSalesQuery, window.From, window.To)
	if err != nil {
		return Sales{}, fmt.Errorf("comparison: receipt sales: %w", err)
	}
	defer rows.Close()

	var sales Sales
	for rows.Next() {
		var paymentType string
		var amount decimal.Decimal
		if err := rows.Scan(&paymentType, &amount); err != nil {
			return Sales{}, err
		}
		sales = addSale(sales, pos.Channel(paymentType), amount)
	}
	return sales, rows.Err()
}

// Summary implements Store.
func (r *Repository) Summary(ctx context.Context, date shift.Date) (*DailySource, error) {
	src := DailySource{Source: SidePOS, Date: date}
	var opening decimal.Decimal
	err := r.pool.QueryRow(ctx, summaryQuery, date.Time()).Scan(
		&src.Sales.Cash,
		&src.Sales.QR,
		&src.Sales.Delivery,
		&src.Sales.Other,
		&src.Sales.Total,
		&src.Expenses.Shopping,
		&src.Expenses.Wages,
		&src.Expenses.Other,
		&opening,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("comparison: load summary %s: %w", date, err)
	}
	src.Expenses.Total = src.Expenses.Shopping.Add(src.Expenses.Wages).Add(src.Expenses.Other)
	src.Banking = NewBanking(opening, src.Sales.Cash, src.Expenses.Total)

	rows, err := r.pool.Query(ctx, summaryLinesQuery, date.Time())
	if err != nil {
		return nil, fmt.Errorf("comparison: load expense lines %s: %w", date, err)
	}
	defer rows.Close()
	src.Expenses.Lines = []ExpenseLine{}
	for rows.Next() {
		var line ExpenseLine
		if err := rows.Scan(&line.Category, &line.Description, &line.Amount); err != nil {
			return nil, err
		}
		src.Expenses.Lines = append(src.Expenses.Lines, line)
	}
	return &src, rows.Err()
}

// ImportDay makes the stored day match the fetched one in one transaction:
// receipts the POS no longer returns for date are removed (their lines
// cascade), the rest are upserted by id with their lines replaced, and the
// expense lines and summary row are rewritten.
func (r *Repository) ImportDay(ctx context.Context, date shift.Date, day pos.Day, summary DailySource, runID uuid.UUID) error {
	now := r.now().UTC()
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM pos_receipts WHERE shift_date = $1 AND NOT (id = ANY($2::text[]))`,
		date.Time(), receiptIDs(day))
	for _, rc := range day.Receipts {
		batch.Queue(`
INSERT INTO pos_receipts (id, shift_date, closed_at, total, payment_type, voided, sync_run_id, imported_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    shift_date = EXCLUDED.shift_date,
    closed_at = EXCLUDED.closed_at,
    total = EXCLUDED.total,
    payment_type = EXCLUDED.payment_type,
    voided = EXCLUDED.voided,
    sync_run_id = EXCLUDED.sync_run_id,
    imported_at = EXCLUDED.imported_at`,
			rc.ID, date.Time(), rc.ClosedAt, rc.Total, rc.PaymentType, rc.Voided, runID, now)
		batch.Queue(`DELETE FROM pos_receipt_lines WHERE receipt_id = $1`, rc.ID)
		for _, l := range rc.Lines {
			batch.Queue(`
INSERT INTO pos_receipt_lines (receipt_id, sku, name, category, quantity)
VALUES ($1, $2, $3, $4, $5)`,
				rc.ID, l.SKU, l.Name, l.Category, l.Quantity)
		}
	}
	batch.Queue(`DELETE FROM pos_expense_lines WHERE shift_date = $1`, date.Time())
	for _, l := range summary.Expenses.Lines {
		batch.Queue(`
INSERT INTO pos_expense_lines (shift_date, category, description, amount)
VALUES ($1, $2, $3, $4)`,
			date.Time(), l.Category, l.Description, l.Amount)
	}
	var receiptCount int64
	if summary.ReceiptCount != nil {
		receiptCount = *summary.ReceiptCount
	}
	batch.Queue(`
INSERT INTO pos_daily_summaries (
    shift_date, cash_sales, qr_sales, delivery_sales, other_sales, total_sales,
    shopping_expenses, wage_expenses, other_expenses, starting_cash,
    receipt_count, sync_run_id, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (shift_date) DO UPDATE SET
    cash_sales = EXCLUDED.cash_sales,
    qr_sales = EXCLUDED.qr_sales,
    delivery_sales = EXCLUDED.delivery_sales,
    other_sales = EXCLUDED.other_sales,
    total_sales = EXCLUDED.total_sales,
    shopping_expenses = EXCLUDED.shopping_expenses,
    wage_expenses = EXCLUDED.wage_expenses,
    other_expenses = EXCLUDED.other_expenses,
    starting_cash = EXCLUDED.starting_cash,
    receipt_count = EXCLUDED.receipt_count,
    sync_run_id = EXCLUDED.sync_run_id,
    synced_at = EXCLUDED.synced_at`,
		date.Time(),
		summary.Sales.Cash, summary.Sales.QR, summary.Sales.Delivery, summary.Sales.Other, summary.Sales.Total,
		summary.Expenses.Shopping, summary.Expenses.Wages, summary.Expenses.Other, summary.Banking.OpeningCash,
		receiptCount, runID, now,
	)

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("comparison: import %s: %w", date, err)
		}
		return nil
	})
}

// receiptIDs lists the fetched ids. The slice is never nil: a nil array
// would make ANY() yield NULL and keep every stale row.
func receiptIDs(day pos.Day) []string {
	ids := make([]string, 0, len(day.Receipts))
	for _, rc := range day.Receipts {
		ids = append(ids, rc.ID)
	}
	return ids
}
