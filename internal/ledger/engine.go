package ledger

// Inputs are the quantities the variance formula consumes.
type Inputs struct {
	StartQty     int64
	PurchasedQty int64
	UsedQty      int64
	ActualEndQty *int64
	Allowance    int64
	TwoTier      bool
}

// Result is the derived part of a ledger row.
type Result struct {
	EstimatedEndQty int64
	Variance        int64
	Status          Status
}

// Compute applies the ledger formula. The estimate is not clamped: a negative
// estimate means upstream counts are wrong and must stay visible.
func Compute(in Inputs) Result {
	estimated := in.StartQty + in.PurchasedQty - in.UsedQty
	if in.ActualEndQty == nil {
		return Result{EstimatedEndQty: estimated, Variance: 0, Status: StatusPending}
	}
	variance := *in.ActualEndQty - estimated
	return Result{
		EstimatedEndQty: estimated,
		Variance:        variance,
		Status:          classify(variance, in.Allowance, in.TwoTier),
	}
}

func classify(variance, allowance int64, twoTier bool) Status {
	abs := variance
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= allowance:
		return StatusOK
	case twoTier && abs <= 2*allowance:
		return StatusWarning
	default:
		return StatusAlert
	}
}

// apply recomputes the derived fields of e from its effective quantities.
// Overrides are merged first so manual corrections run through the same
// formula as computed values.
func (e *Entry) apply(policy Policy) {
	e.PurchasedQty = e.ComputedPurchasedQty
	if e.Override.PurchasedQty != nil {
		e.PurchasedQty = *e.Override.PurchasedQty
	}
	e.ActualEndQty = copyPtr(e.DeclaredActualEndQty)
	if e.Override.ActualEndQty != nil {
		e.ActualEndQty = copyPtr(e.Override.ActualEndQty)
	}
	e.WasteAllowance = policy.Allowance
	res := Compute(Inputs{
		StartQty:     e.StartQty,
		PurchasedQty: e.PurchasedQty,
		UsedQty:      e.UsedQty,
		ActualEndQty: e.ActualEndQty,
		Allowance:    policy.Allowance,
		TwoTier:      policy.TwoTier,
	})
	e.EstimatedEndQty = res.EstimatedEndQty
	e.Variance = res.Variance
	e.Status = res.Status
}

func copyPtr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
