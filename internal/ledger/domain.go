package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Commodity identifies a tracked commodity family.
type Commodity string

const (
	// CommodityRolls tracks burger rolls as a count.
	CommodityRolls Commodity = "rolls"
	// CommodityMeat tracks raw meat in grams.
	CommodityMeat Commodity = "meat"
	// CommodityDrinks tracks bottled drinks as a count.
	CommodityDrinks Commodity = "drinks"
)

// Commodities lists every tracked family in display order.
var Commodities = []Commodity{CommodityRolls, CommodityMeat, CommodityDrinks}

// ParseCommodity validates a commodity name.
func ParseCommodity(value string) (Commodity, error) {
	c := Commodity(strings.ToLower(strings.TrimSpace(value)))
	switch c {
	case CommodityRolls, CommodityMeat, CommodityDrinks:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCommodity, value)
}

// Label is the human readable name.
func (c Commodity) Label() string {
	switch c {
	case CommodityRolls:
		return "Burger rolls"
	case CommodityMeat:
		return "Meat (g)"
	case CommodityDrinks:
		return "Drinks"
	}
	return string(c)
}

// Status classifies a ledger variance.
type Status string

const (
	// StatusPending means no ending count has been declared yet.
	StatusPending Status = "PENDING"
	// StatusOK means the variance is within the waste allowance.
	StatusOK Status = "OK"
	// StatusWarning means the variance is within twice the allowance (two-tier commodities only).
	StatusWarning Status = "WARNING"
	// StatusAlert means the variance exceeds the tolerated band.
	StatusAlert Status = "ALERT"
)

// Override holds operator corrections. They are stored apart from computed
// values and reapplied on every recompute.
type Override struct {
	PurchasedQty *int64     `json:"purchasedQty"`
	ActualEndQty *int64     `json:"actualEndQty"`
	Note         string     `json:"note,omitempty"`
	By           string     `json:"by,omitempty"`
	At           *time.Time `json:"at,omitempty"`
}

// IsEmpty reports whether no override value is set.
func (o Override) IsEmpty() bool {
	return o.PurchasedQty == nil && o.ActualEndQty == nil
}

// Entry is one ledger row per (commodity, shift date). PurchasedQty and
// ActualEndQty are the effective values with overrides merged in.
type Entry struct {
	Commodity       Commodity  `json:"commodity"`
	ShiftDate       shift.Date `json:"shiftDate"`
	StartQty        int64      `json:"startQty"`
	PurchasedQty    int64      `json:"purchasedQty"`
	UsedQty         int64      `json:"usedQty"`
	EstimatedEndQty int64      `json:"estimatedEndQty"`
	ActualEndQty    *int64     `json:"actualEndQty"`
	WasteAllowance  int64      `json:"wasteAllowance"`
	Variance        int64      `json:"variance"`
	Status          Status     `json:"status"`
	Approved        bool       `json:"approved"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`

	ComputedPurchasedQty int64    `json:"computedPurchasedQty"`
	DeclaredActualEndQty *int64   `json:"declaredActualEndQty"`
	Override             Override `json:"override"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// SameComputed reports whether two entries carry identical computed fields.
func (e Entry) SameComputed(other Entry) bool {
	return e.StartQty == other.StartQty &&
		e.PurchasedQty == other.PurchasedQty &&
		e.UsedQty == other.UsedQty &&
		e.EstimatedEndQty == other.EstimatedEndQty &&
		equalPtr(e.ActualEndQty, other.ActualEndQty) &&
		e.WasteAllowance == other.WasteAllowance &&
		e.Variance == other.Variance &&
		e.Status == other.Status &&
		e.ComputedPurchasedQty == other.ComputedPurchasedQty &&
		equalPtr(e.DeclaredActualEndQty, other.DeclaredActualEndQty)
}

// Policy configures how one commodity is measured and classified.
type Policy struct {
	// Allowance is the waste tolerance in the commodity's unit.
	Allowance int64
	// TwoTier enables the WARNING band up to twice the allowance.
	TwoTier bool
	// Keywords match sold-item categories when no per-item factor is recorded.
	Keywords []string
}

// Settings groups every commodity policy plus unit conversions.
type Settings struct {
	Policies   map[Commodity]Policy
	PattyGrams int64
}

// DefaultSettings returns the standard tolerances.
func DefaultSettings() Settings {
	return Settings{
		Policies: map[Commodity]Policy{
			CommodityRolls:  {Allowance: 4, Keywords: []string{"burger"}},
			CommodityMeat:   {Allowance: 200, Keywords: []string{"burger"}},
			CommodityDrinks: {Allowance: 2, TwoTier: true, Keywords: []string{"drink", "beverage"}},
		},
		PattyGrams: 140,
	}
}

// Policy returns the configured policy for c.
func (s Settings) Policy(c Commodity) Policy {
	return s.Policies[c]
}

// StockReceipt is one row of the stock-received log, the only purchase
// source the ledger reads.
type StockReceipt struct {
	ID         string
	Commodity  Commodity
	ShiftDate  shift.Date
	SKU        string
	Quantity   int64
	StaffName  string
	ReceivedAt time.Time
}

// ReceiptItem is a single quantity lodged by staff.
type ReceiptItem struct {
	SKU      string
	Quantity int64
}

// LodgeInput records purchases for a shift and triggers a recompute.
type LodgeInput struct {
	Commodity      Commodity
	ShiftDate      shift.Date
	StaffName      string
	Items          []ReceiptItem
	IdempotencyKey string
}

// Validate checks the lodge request.
func (in LodgeInput) Validate() error {
	if _, err := ParseCommodity(string(in.Commodity)); err != nil {
		return err
	}
	if in.ShiftDate.IsZero() {
		return fmt.Errorf("%w: shift date required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.StaffName) == "" {
		return fmt.Errorf("%w: staff name required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidQuantity, item.SKU)
		}
	}
	return nil
}

// idempotencyScope namespaces the request key by what the request lodges.
// Reusing a key for another commodity, date or item list is a new request,
// never a replay, so it cannot swallow a purchase.
func (in LodgeInput) idempotencyScope() string {
	h := sha256.New()
	for _, item := range in.Items {
		h.Write([]byte(strings.TrimSpace(item.SKU)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(item.Quantity, 10)))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("ledger.lodge:%s:%s:%s", in.Commodity, in.ShiftDate, hex.EncodeToString(h.Sum(nil))[:16])
}

// OverrideInput changes the manual override for one ledger row. Nil fields
// keep the stored override unless listed in Clear.
type OverrideInput struct {
	Commodity      Commodity
	ShiftDate      shift.Date
	PurchasedQty   *int64
	ActualEndQty   *int64
	ClearPurchased bool
	ClearActualEnd bool
	Note           string
	By             string
}

// Validate checks the override request.
func (in OverrideInput) Validate() error {
	if _, err := ParseCommodity(string(in.Commodity)); err != nil {
		return err
	}
	if in.ShiftDate.IsZero() {
		return fmt.Errorf("%w: shift date required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.By) == "" {
		return fmt.Errorf("%w: staff name required", ErrInvalidInput)
	}
	if in.PurchasedQty == nil && in.ActualEndQty == nil && !in.ClearPurchased && !in.ClearActualEnd {
		return fmt.Errorf("%w: nothing to override", ErrInvalidInput)
	}
	if in.PurchasedQty != nil && *in.PurchasedQty < 0 {
		return fmt.Errorf("%w: purchased quantity", ErrInvalidQuantity)
	}
	if in.ActualEndQty != nil && *in.ActualEndQty < 0 {
		return fmt.Errorf("%w: actual end quantity", ErrInvalidQuantity)
	}
	return nil
}

// merge applies the input to a stored override.
func (in OverrideInput) merge(current Override, at time.Time) Override {
	out := current
	if in.ClearPurchased {
		out.PurchasedQty = nil
	}
	if in.ClearActualEnd {
		out.ActualEndQty = nil
	}
	if in.PurchasedQty != nil {
		v := *in.PurchasedQty
		out.PurchasedQty = &v
	}
	if in.ActualEndQty != nil {
		v := *in.ActualEndQty
		out.ActualEndQty = &v
	}
	out.Note = strings.TrimSpace(in.Note)
	out.By = strings.TrimSpace(in.By)
	out.At = &at
	return out
}

// VarianceItem is the per-commodity row of the shift variance view.
type VarianceItem struct {
	Name     string `json:"name"`
	Expected int64  `json:"expected"`
	Used     int64  `json:"used"`
	Variance int64  `json:"variance"`
	Severity string `json:"severity"`
}

// Severity maps a status to the traffic-light colour shown to staff.
func Severity(status Status) string {
	switch status {
	case StatusOK:
		return "green"
	case StatusAlert:
		return "red"
	default:
		return "yellow"
	}
}

var (
	// ErrInvalidCommodity indicates an unknown commodity name.
	ErrInvalidCommodity = errors.New("ledger: invalid commodity")
	// ErrInvalidQuantity indicates a non-positive or negative quantity.
	ErrInvalidQuantity = errors.New("ledger: invalid quantity")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("ledger: invalid input")
	// ErrInvalidRange indicates start is after end.
	ErrInvalidRange = errors.New("ledger: invalid date range")
	// ErrEntryNotFound indicates no ledger row exists for the key.
	ErrEntryNotFound = errors.New("ledger: entry not found")
)

func equalPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
