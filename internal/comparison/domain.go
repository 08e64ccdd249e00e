// Package comparison lines up what the POS recorded for a business date with
// what staff declared on the closing form.
//
// Each side is loaded on its own. Variances are produced only when both sides
// exist, and are always form minus POS. The receipt evidence check runs
// regardless of availability.
package comparison

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/pos"
	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
)

// Side names where a DailySource came from.
type Side string

const (
	SidePOS  Side = "pos"
	SideForm Side = "form"
)

// Availability says which sides resolved for a date.
type Availability string

const (
	AvailabilityOK          Availability = "ok"
	AvailabilityMissingPOS  Availability = "missing_pos"
	AvailabilityMissingForm Availability = "missing_form"
	AvailabilityMissingBoth Availability = "missing_both"
)

// ReceiptStatus classifies the receipt count cross-check.
type ReceiptStatus string

const (
	EvidenceMatch   ReceiptStatus = "EVIDENCE_MATCH"
	MissingReceipts ReceiptStatus = "MISSING_RECEIPTS"
	PhantomReceipts ReceiptStatus = "PHANTOM_RECEIPTS"
	POSUnavailable  ReceiptStatus = "POS_UNAVAILABLE"
	FormMissing     ReceiptStatus = "FORM_MISSING"
	NoEvidence      ReceiptStatus = "NO_EVIDENCE"
)

// Sales is the per-channel sales breakdown.
type Sales struct {
	Cash     decimal.Decimal `json:"cash"`
	QR       decimal.Decimal `json:"qr"`
	Delivery decimal.Decimal `json:"delivery"`
	Other    decimal.Decimal `json:"other"`
	Total    decimal.Decimal `json:"total"`
}

// ExpenseLine is one itemised expense.
type ExpenseLine struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Expenses is the per-category expense breakdown.
type Expenses struct {
	Shopping decimal.Decimal `json:"shopping"`
	Wages    decimal.Decimal `json:"wages"`
	Other    decimal.Decimal `json:"other"`
	Total    decimal.Decimal `json:"total"`
	Lines    []ExpenseLine   `json:"lines"`
}

// Banking holds the cash figures derived from sales and expenses.
type Banking struct {
	OpeningCash  decimal.Decimal `json:"openingCash"`
	ExpectedCash decimal.Decimal `json:"expectedCash"`
	NetBanked    decimal.Decimal `json:"netBanked"`
}

// DailySource is one side's totals for a business date.
type DailySource struct {
	Source       Side       `json:"source"`
	Date         shift.Date `json:"date"`
	Sales        Sales      `json:"sales"`
	Expenses     Expenses   `json:"expenses"`
	Banking      Banking    `json:"banking"`
	ReceiptCount *int64     `json:"receiptCount,omitempty"`
}

// ExpenseVariance is form minus POS per expense category.
type ExpenseVariance struct {
	Shopping decimal.Decimal `json:"shopping"`
	Wages    decimal.Decimal `json:"wages"`
	Other    decimal.Decimal `json:"other"`
	Total    decimal.Decimal `json:"total"`
}

// BankingVariance is form minus POS for the derived banking figures.
type BankingVariance struct {
	ExpectedCash decimal.Decimal `json:"expectedCash"`
	NetBanked    decimal.Decimal `json:"netBanked"`
}

// Variance is form minus POS across sales, expenses and banking.
type Variance struct {
	Sales    Sales           `json:"sales"`
	Expenses ExpenseVariance `json:"expenses"`
	Banking  BankingVariance `json:"banking"`
}

// ReceiptEvidence compares the POS receipt count with the declared one.
type ReceiptEvidence struct {
	POSReceiptCount  int64         `json:"posReceiptCount"`
	FormReceiptCount *int64        `json:"formReceiptCount"`
	Difference       *int64        `json:"difference"`
	ReceiptStatus    ReceiptStatus `json:"receiptStatus"`
}

// DailyComparison is the computed view for one business date. It is never
// persisted.
type DailyComparison struct {
	Date            shift.Date      `json:"date"`
	Availability    Availability    `json:"availability"`
	POS             *DailySource    `json:"pos,omitempty"`
	Form            *DailySource    `json:"form,omitempty"`
	Variance        *Variance       `json:"variance,omitempty"`
	ReceiptEvidence ReceiptEvidence `json:"receiptEvidence"`
}

// DeriveAvailability maps side presence to an Availability.
func DeriveAvailability(posPresent, formPresent bool) Availability {
	switch {
	case posPresent && formPresent:
		return AvailabilityOK
	case formPresent:
		return AvailabilityMissingPOS
	case posPresent:
		return AvailabilityMissingForm
	default:
		return AvailabilityMissingBoth
	}
}

// ClassifyEvidence cross-checks receipt counts. A form without a declared
// count is treated like a missing form.
func ClassifyEvidence(posCount int64, formPresent bool, declared *int64) ReceiptEvidence {
	ev := ReceiptEvidence{POSReceiptCount: posCount}
	if declared != nil {
		v := *declared
		ev.FormReceiptCount = &v
	}
	switch {
	case posCount == 0 && !formPresent:
		ev.ReceiptStatus = NoEvidence
	case posCount == 0:
		ev.ReceiptStatus = POSUnavailable
	case declared == nil:
		ev.ReceiptStatus = FormMissing
	default:
		diff := posCount - *declared
		ev.Difference = &diff
		switch {
		case diff == 0:
			ev.ReceiptStatus = EvidenceMatch
		case diff > 0:
			ev.ReceiptStatus = MissingReceipts
		default:
			ev.ReceiptStatus = PhantomReceipts
		}
	}
	return ev
}

// ComputeVariance returns form minus POS, or nil unless both sides exist.
func ComputeVariance(posSide, formSide *DailySource) *Variance {
	if posSide == nil || formSide == nil {
		return nil
	}
	f, p := formSide, posSide
	return &Variance{
		Sales: Sales{
			Cash:     f.Sales.Cash.Sub(p.Sales.Cash),
			QR:       f.Sales.QR.Sub(p.Sales.QR),
			Delivery: f.Sales.Delivery.Sub(p.Sales.Delivery),
			Other:    f.Sales.Other.Sub(p.Sales.Other),
			Total:    f.Sales.Total.Sub(p.Sales.Total),
		},
		Expenses: ExpenseVariance{
			Shopping: f.Expenses.Shopping.Sub(p.Expenses.Shopping),
			Wages:    f.Expenses.Wages.Sub(p.Expenses.Wages),
			Other:    f.Expenses.Other.Sub(p.Expenses.Other),
			Total:    f.Expenses.Total.Sub(p.Expenses.Total),
		},
		Banking: BankingVariance{
			ExpectedCash: f.Banking.ExpectedCash.Sub(p.Banking.ExpectedCash),
			NetBanked:    f.Banking.NetBanked.Sub(p.Banking.NetBanked),
		},
	}
}

// NewBanking derives expected cash in the drawer and the amount to bank.
func NewBanking(opening, cashSales, expenses decimal.Decimal) Banking {
	expected := opening.Add(cashSales).Sub(expenses)
	return Banking{
		OpeningCash:  opening,
		ExpectedCash: expected,
		NetBanked:    expected.Sub(opening),
	}
}

// FormSource converts a closing form into its DailySource.
func FormSource(form *shiftform.ClosingForm) *DailySource {
	if form == nil {
		return nil
	}
	expenses := Expenses{
		Shopping: form.Expenses.Shopping,
		Wages:    form.Expenses.Wages,
		Other:    form.Expenses.Other,
		Total:    form.Expenses.Shopping.Add(form.Expenses.Wages).Add(form.Expenses.Other),
		Lines:    make([]ExpenseLine, 0, len(form.Expenses.Lines)),
	}
	for _, l := range form.Expenses.Lines {
		expenses.Lines = append(expenses.Lines, ExpenseLine{Category: l.Category, Description: l.Description, Amount: l.Amount})
	}
	src := &DailySource{
		Source: SideForm,
		Date:   form.ShiftDate,
		Sales: Sales{
			Cash:     form.Sales.Cash,
			QR:       form.Sales.QR,
			Delivery: form.Sales.Delivery,
			Other:    form.Sales.Other,
			Total:    form.Sales.ResolvedTotal(),
		},
		Expenses: expenses,
		Banking:  NewBanking(form.OpeningCash, form.Sales.Cash, expenses.Total),
	}
	if form.ReceiptCount != nil {
		n := *form.ReceiptCount
		src.ReceiptCount = &n
	}
	return src
}

// SummarizeDay folds an upstream POS day into its DailySource. Voided
// receipts are ignored.
func SummarizeDay(date shift.Date, day pos.Day) DailySource {
	var sales Sales
	var count int64
	for _, r := range day.Receipts {
		if r.Voided {
			continue
		}
		count++
		sales = addSale(sales, pos.Channel(r.PaymentType), r.Total)
	}
	expenses := Expenses{Lines: make([]ExpenseLine, 0, len(day.Expenses))}
	for _, e := range day.Expenses {
		expenses = addExpense(expenses, ExpenseLine{Category: e.Category, Description: e.Description, Amount: e.Amount})
	}
	return DailySource{
		Source:       SidePOS,
		Date:         date,
		Sales:        sales,
		Expenses:     expenses,
		Banking:      NewBanking(day.StartingCash, sales.Cash, expenses.Total),
		ReceiptCount: &count,
	}
}

func addSale(s Sales, channel string, amount decimal.Decimal) Sales {
	switch channel {
	case "cash":
		s.Cash = s.Cash.Add(amount)
	case "qr":
		s.QR = s.QR.Add(amount)
	case "delivery":
		s.Delivery = s.Delivery.Add(amount)
	default:
		s.Other = s.Other.Add(amount)
	}
	s.Total = s.Total.Add(amount)
	return s
}

func addExpense(e Expenses, line ExpenseLine) Expenses {
	switch strings.ToLower(strings.TrimSpace(line.Category)) {
	case "shopping", "supplies", "groceries":
		e.Shopping = e.Shopping.Add(line.Amount)
	case "wages", "wage", "salary":
		e.Wages = e.Wages.Add(line.Amount)
	default:
		e.Other = e.Other.Add(line.Amount)
	}
	e.Total = e.Total.Add(line.Amount)
	e.Lines = append(e.Lines, line)
	return e
}
