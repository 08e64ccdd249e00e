// Package shiftform reads the staff-declared shift closing records.
//
// Two record shapes exist for a business date: the canonical closing form and
// the older stock sheet. Every declared value is resolved in one place, in
// this order:
//
//  1. the closing form field, when the form exists and the field is set;
//  2. the legacy stock sheet field, when the sheet exists and the field is set;
//  3. nil.
//
// A nil result means "not declared". It is never collapsed to zero.
package shiftform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

var gramsPerKilo = decimal.NewFromInt(1000)

// Sales is the per-channel sales breakdown declared on the form.
type Sales struct {
	Cash     decimal.Decimal
	QR       decimal.Decimal
	Delivery decimal.Decimal
	Other    decimal.Decimal
	// Total is the declared total; nil means the form left it blank.
	Total *decimal.Decimal
}

// ResolvedTotal returns the declared total or the sum of channels.
func (s Sales) ResolvedTotal() decimal.Decimal {
	if s.Total != nil {
		return *s.Total
	}
	return s.Cash.Add(s.QR).Add(s.Delivery).Add(s.Other)
}

// ExpenseLine is one itemised expense.
type ExpenseLine struct {
	Category    string
	Description string
	Amount      decimal.Decimal
}

// Expenses is the expense breakdown declared on the form.
type Expenses struct {
	Shopping decimal.Decimal
	Wages    decimal.Decimal
	Other    decimal.Decimal
	Lines    []ExpenseLine
}

// StockCounts holds the ending counts declared on the closing form.
type StockCounts struct {
	RollsEnd     *int64
	MeatEndGrams *int64
	DrinksEnd    *int64
}

// ClosingForm is the canonical shift closing record.
type ClosingForm struct {
	ShiftDate    shift.Date
	StaffName    string
	SubmittedAt  time.Time
	Stock        StockCounts
	ReceiptCount *int64
	Sales        Sales
	Expenses     Expenses
	OpeningCash  decimal.Decimal
}

// LegacyStockSheet is the older stock count record kept for dates before the
// closing form carried stock fields.
type LegacyStockSheet struct {
	ShiftDate shift.Date
	BunsEnd   *int64
	MeatEndKg *decimal.Decimal
	DrinksEnd *int64
}

// DeclaredCounts is the resolved set of ending counts for a business date.
type DeclaredCounts struct {
	Rolls     *int64
	MeatGrams *int64
	Drinks    *int64
}

// ResolveCounts applies the package resolution order field by field.
func ResolveCounts(form *ClosingForm, legacy *LegacyStockSheet) DeclaredCounts {
	var out DeclaredCounts
	if form != nil {
		out.Rolls = copyInt(form.Stock.RollsEnd)
		out.MeatGrams = copyInt(form.Stock.MeatEndGrams)
		out.Drinks = copyInt(form.Stock.DrinksEnd)
	}
	if legacy != nil {
		if out.Rolls == nil {
			out.Rolls = copyInt(legacy.BunsEnd)
		}
		if out.MeatGrams == nil && legacy.MeatEndKg != nil {
			grams := legacy.MeatEndKg.Mul(gramsPerKilo).Round(0).IntPart()
			out.MeatGrams = &grams
		}
		if out.Drinks == nil {
			out.Drinks = copyInt(legacy.DrinksEnd)
		}
	}
	return out
}

// Store loads closing records. Missing records are returned as nil, nil.
type Store interface {
	GetClosingForm(ctx context.Context, date shift.Date) (*ClosingForm, error)
	GetLegacySheet(ctx context.Context, date shift.Date) (*LegacyStockSheet, error)
}

// LoadDeclaredCounts fetches both record shapes and resolves them.
func LoadDeclaredCounts(ctx context.Context, store Store, date shift.Date) (DeclaredCounts, error) {
	form, err := store.GetClosingForm(ctx, date)
	if err != nil {
		return DeclaredCounts{}, err
	}
	legacy, err := store.GetLegacySheet(ctx, date)
	if err != nil {
		return DeclaredCounts{}, err
	}
	return ResolveCounts(form, legacy), nil
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
