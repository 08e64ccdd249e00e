package shiftform

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Repository reads closing records from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingFormQuery = `
SELECT staff_name, submitted_at,
       rolls_end, meat_end_grams, drinks_end, receipt_count,
       COALESCE(cash_sales, 0), COALESCE(qr_sales, 0), COALESCE(delivery_sales, 0), COALESCE(other_sales, 0), total_sales,
       COALESCE(shopping_expenses, 0), COALESCE(wage_expenses, 0), COALESCE(other_expenses, 0),
       COALESCE(opening_cash, 0)
FROM shift_closing_forms
WHERE shift_date = $1`

const expenseLinesQuery = `
SELECT category, description, amount
FROM shift_closing_form_expenses
WHERE shift_date = $1
ORDER BY id`

// GetClosingForm returns the closing form for date or nil when none was submitted.
func (r *Repository) GetClosingForm(ctx context.Context, date shift.Date) (*ClosingForm, error) {
	form := ClosingForm{ShiftDate: date}
	var total decimal.NullDecimal
	err := r.pool.QueryRow(ctx, closingFormQuery, date.Time()).Scan(
		&form.StaffName,
		&form.SubmittedAt,
		&form.Stock.RollsEnd,
		&form.Stock.MeatEndGrams,
		&form.Stock.DrinksEnd,
		&form.ReceiptCount,
		&form.Sales.Cash,
		&form.Sales.QR,
		&form.Sales.Delivery,
		&form.Sales.Other,
		&total,
		&form.Expenses.Shopping,
		&form.Expenses.Wages,
		&form.Expenses.Other,
		&form.OpeningCash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("shiftform: load closing form %s: %w", date, err)
	}
	if total.Valid {
		form.Sales.Total = &total.Decimal
	}

	rows, err := r.pool.Query(ctx, expenseLinesQuery, date.Time())
	if err != nil {
		return nil, fmt.Errorf("shiftform: load expense lines %s: %w", date, err)
	}
	defer rows.Close()
	for rows.Next() {
		var line ExpenseLine
		if err := rows.Scan(&line.Category, &line.Description, &line.Amount); err != nil {
			return nil, err
		}
		form.Expenses.Lines = append(form.Expenses.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &form, nil
}

const legacySheetQuery = `
SELECT buns_end, meat_end_kg, drinks_end
FROM legacy_stock_sheets
WHERE shift_date = $1`

// GetLegacySheet returns the legacy stock sheet for date or nil.
func (r *Repository) GetLegacySheet(ctx context.Context, date shift.Date) (*LegacyStockSheet, error) {
	sheet := LegacyStockSheet{ShiftDate: date}
	var meat decimal.NullDecimal
	err := r.pool.QueryRow(ctx, legacySheetQuery, date.Time()).Scan(&sheet.BunsEnd, &meat, &sheet.DrinksEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("shiftform: load legacy sheet %s: %w", date, err)
	}
	if meat.Valid {
		sheet.MeatEndKg = &meat.Decimal
	}
	return &sheet, nil
}
