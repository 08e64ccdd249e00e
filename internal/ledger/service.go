package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/shiftledger/internal/jobs"
	"github.com/odyssey-erp/shiftledger/internal/platform/lock"
	"github.com/odyssey-erp/shiftledger/internal/shared"
	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
)

// maxCascadeDays bounds how far a correction is carried forward.
const maxCascadeDays = 62

// Idempotency records processed request keys.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Deps groups Service collaborators.
type Deps struct {
	Store       Store
	SoldItems   SoldItemsSource
	Forms       shiftform.Store
	Locker      lock.Locker
	Idempotency Idempotency
	Metrics     *jobmetrics.Metrics
	Settings    Settings
	Logger      *slog.Logger
}

// Service runs the ledger pipeline: gather inputs, compute, upsert.
type Service struct {
	store     Store
	usage     *UsageAggregator
	purchases *PurchaseAggregator
	carryover *CarryoverResolver
	actuals   *ActualCountResolver
	locker    lock.Locker
	idem      Idempotency
	metrics   *jobmetrics.Metrics
	settings  Settings
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the pipeline.
func NewService(d Deps) *Service {
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Settings.Policies == nil {
		d.Settings = DefaultSettings()
	}
	return &Service{
		store:     d.Store,
		usage:     NewUsageAggregator(d.SoldItems, d.Settings),
		purchases: NewPurchaseAggregator(d.Store),
		carryover: NewCarryoverResolver(d.Store),
		actuals:   NewActualCountResolver(d.Forms),
		locker:    d.Locker,
		idem:      d.Idempotency,
		metrics:   d.Metrics,
		settings:  d.Settings,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Compute builds the ledger row for (c, date) without writing it. Stored
// overrides and approval are carried over from the existing row.
func (s *Service) Compute(ctx context.Context, c Commodity, date shift.Date) (Entry, error) {
	if _, err := ParseCommodity(string(c)); err != nil {
		return Entry{}, err
	}
	var (
		start, purchased, used int64
		actual                 *int64
		current                *Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		start, err = s.carryover.Opening(gctx, c, date)
		return err
	})
	g.Go(func() (err error) {
		purchased, err = s.purchases.Purchased(gctx, c, date)
		return err
	})
	g.Go(func() (err error) {
		used, err = s.usage.Used(gctx, c, date)
		return err
	})
	g.Go(func() (err error) {
		actual, err = s.actuals.Actual(gctx, c, date)
		return err
	})
	g.Go(func() (err error) {
		current, err = s.store.GetLedger(gctx, c, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Commodity:            c,
		ShiftDate:            date,
		StartQty:             start,
		ComputedPurchasedQty: purchased,
		UsedQty:              used,
		DeclaredActualEndQty: actual,
	}
	if current != nil {
		entry.Override = current.Override
		entry.Approved = current.Approved
		entry.ApprovedBy = current.ApprovedBy
		entry.UpdatedAt = current.UpdatedAt
	}
	entry.apply(s.settings.Policy(c))
	return entry, nil
}

// Recompute refreshes the row for (c, date) and carries the result forward
// into later rows that already exist.
func (s *Service) Recompute(ctx context.Context, c Commodity, date shift.Date) (Entry, error) {
	entry, err := s.recompute(ctx, c, date, nil)
	if err != nil {
		return Entry{}, err
	}
	s.cascade(ctx, c, date)
	return entry, nil
}

// RecomputeAll refreshes every commodity for date.
func (s *Service) RecomputeAll(ctx context.Context, date shift.Date) ([]Entry, error) {
	out := make([]Entry, 0, len(Commodities))
	for _, c := range Commodities {
		entry, err := s.Recompute(ctx, c, date)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Lodge appends purchases to the stock-received log and recomputes the row.
// A replayed idempotency key skips the append but still recomputes.
func (s *Service) Lodge(ctx context.Context, in LodgeInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	replay := false
	scope := in.idempotencyScope()
	if in.IdempotencyKey != "" && s.idem != nil {
		err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, scope)
		switch {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			replay = true
		case err != nil:
			return Entry{}, fmt.Errorf("ledger: idempotency: %w", err)
		}
	}
	if !replay {
		now := s.now().UTC()
		receipts := make([]StockReceipt, 0, len(in.Items))
		for _, item := range in.Items {
			receipts = append(receipts, StockReceipt{
				ID:         uuid.NewString(),
				Commodity:  in.Commodity,
				ShiftDate:  in.ShiftDate,
				SKU:        strings.TrimSpace(item.SKU),
				Quantity:   item.Quantity,
				StaffName:  strings.TrimSpace(in.StaffName),
				ReceivedAt: now,
			})
		}
		if err := s.store.RecordReceipts(ctx, receipts); err != nil {
			if in.IdempotencyKey != "" && s.idem != nil {
				_ = s.idem.Delete(ctx, in.IdempotencyKey, scope)
			}
			return Entry{}, err
		}
		s.logger.Info("stock lodged",
			slog.String("commodity", string(in.Commodity)),
			slog.String("shift_date", in.ShiftDate.String()),
			slog.Int("items", len(receipts)),
		)
	} else {
		s.logger.Info("stock lodge replayed",
			slog.String("commodity", string(in.Commodity)),
			slog.String("shift_date", in.ShiftDate.String()),
		)
	}
	return s.Recompute(ctx, in.Commodity, in.ShiftDate)
}

// ApplyOverride stores the operator correction and re-runs the formula over it.
func (s *Service) ApplyOverride(ctx context.Context, in OverrideInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	entry, err := s.recompute(ctx, in.Commodity, in.ShiftDate, func(e *Entry) {
		e.Override = in.merge(e.Override, s.now().UTC())
	})
	if err != nil {
		return Entry{}, err
	}
	s.cascade(ctx, in.Commodity, in.ShiftDate)
	return entry, nil
}

// Approve flags the row as reviewed. Computed fields are untouched.
func (s *Service) Approve(ctx context.Context, c Commodity, date shift.Date, by string) (Entry, error) {
	if _, err := ParseCommodity(string(c)); err != nil {
		return Entry{}, err
	}
	by = strings.TrimSpace(by)
	if by == "" {
		return Entry{}, fmt.Errorf("%w: approver required", ErrInvalidInput)
	}
	entry, err := s.store.SetApproved(ctx, c, date, by)
	if err != nil {
		return Entry{}, err
	}
	if entry == nil {
		return Entry{}, fmt.Errorf("%w: %s %s", ErrEntryNotFound, c, date)
	}
	return *entry, nil
}

// Range lists stored rows between start and end, newest first, with overrides
// merged into the displayed quantities.
func (s *Service) Range(ctx context.Context, c Commodity, start, end shift.Date) ([]Entry, error) {
	if _, err := ParseCommodity(string(c)); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange, start, end)
	}
	entries, err := s.store.ListRange(ctx, c, start, end)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// ShiftVariance computes the staff-facing variance view for every commodity.
func (s *Service) ShiftVariance(ctx context.Context, date shift.Date) ([]VarianceItem, error) {
	items := make([]VarianceItem, 0, len(Commodities))
	for _, c := range Commodities {
		entry, err := s.Compute(ctx, c, date)
		if err != nil {
			return nil, err
		}
		items = append(items, VarianceItem{
			Name:     c.Label(),
			Expected: entry.EstimatedEndQty,
			Used:     entry.UsedQty,
			Variance: entry.Variance,
			Severity: Severity(entry.Status),
		})
	}
	return items, nil
}

func (s *Service) recompute(ctx context.Context, c Commodity, date shift.Date, mutate func(*Entry)) (Entry, error) {
	release, err := s.locker.Acquire(ctx, LockKey(c, date))
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: lock %s %s: %w", c, date, err)
	}
	defer release()

	entry, err := s.Compute(ctx, c, date)
	if err != nil {
		return Entry{}, err
	}
	if mutate != nil {
		mutate(&entry)
		entry.apply(s.settings.Policy(c))
	}
	entry.UpdatedAt = s.now().UTC()
	stored, err := s.store.Upsert(ctx, entry, mutate != nil)
	if err != nil {
		return Entry{}, err
	}
	s.metrics.ObserveLedger(string(c), string(stored.Status))
	return stored, nil
}

// cascade recomputes the following days until a row is missing or unchanged.
func (s *Service) cascade(ctx context.Context, c Commodity, date shift.Date) {
	for i := 1; i <= maxCascadeDays; i++ {
		next := date.AddDays(i)
		before, err := s.store.GetLedger(ctx, c, next)
		if err != nil {
			s.logger.Warn("ledger cascade read", slog.String("commodity", string(c)),
				slog.String("shift_date", next.String()), slog.Any("error", err))
			return
		}
		if before == nil {
			return
		}
		after, err := s.recompute(ctx, c, next, nil)
		if err != nil {
			s.logger.Warn("ledger cascade recompute", slog.String("commodity", string(c)),
				slog.String("shift_date", next.String()), slog.Any("error", err))
			return
		}
		if after.SameComputed(*before) {
			return
		}
	}
}
