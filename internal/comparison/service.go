package comparison

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/shiftledger/internal/jobs"
	"github.com/odyssey-erp/shiftledger/internal/platform/lock"
	"github.com/odyssey-erp/shiftledger/internal/pos"
	"github.com/odyssey-erp/shiftledger/internal/shared"
	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
)

const (
	defaultSyncTimeout      = 20 * time.Second
	defaultRangeConcurrency = 4
)

// FormReader loads the closing form. A missing form is nil, nil.
type FormReader interface {
	GetClosingForm(ctx context.Context, date shift.Date) (*shiftform.ClosingForm, error)
}

// Upstream fetches one business day from the POS.
type Upstream interface {
	FetchDay(ctx context.Context, window shift.Window) (pos.Day, error)
}

// CacheInvalidator drops cached sales analytics for a date.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, date shift.Date) error
}

// Enqueuer schedules the ledger recompute that follows a sync.
type Enqueuer interface {
	EnqueueLedgerRecompute(ctx context.Context, date string) error
}

// SyncStatus is the outcome of a sync attempt.
type SyncStatus string

const (
	SyncSynced        SyncStatus = "synced"
	SyncPartial       SyncStatus = "partial"
	SyncBusy          SyncStatus = "busy"
	SyncUpstreamError SyncStatus = "upstream_error"
	SyncTimeout       SyncStatus = "timeout"
	SyncStoreError    SyncStatus = "store_error"
	SyncInvalidDate   SyncStatus = "invalid_date"
)

// SyncResult reports a sync. Faults are carried here instead of returned so
// callers can always render whatever data is cached.
type SyncResult struct {
	OK               bool             `json:"ok"`
	Status           SyncStatus       `json:"status"`
	Reason           string           `json:"reason,omitempty"`
	Message          string           `json:"message"`
	Date             shift.Date       `json:"date"`
	RunID            string           `json:"runId,omitempty"`
	ReceiptsImported int              `json:"receiptsImported"`
	ReceiptsVoided   int              `json:"receiptsVoided"`
	Totals           *DailySource     `json:"totals,omitempty"`
	Comparison       *DailyComparison `json:"comparison,omitempty"`
}

// Deps groups Service collaborators.
type Deps struct {
	Store            Store
	Forms            FormReader
	Upstream         Upstream
	Cache            CacheInvalidator
	Enqueuer         Enqueuer
	Locker           lock.Locker
	Metrics          *jobmetrics.Metrics
	Calendar         shift.Calendar
	SyncTimeout      time.Duration
	RangeConcurrency int
	Logger           *slog.Logger
}

// Service builds daily comparisons and syncs the POS side.
type Service struct {
	store       Store
	forms       FormReader
	upstream    Upstream
	cache       CacheInvalidator
	enqueuer    Enqueuer
	locker      lock.Locker
	metrics     *jobmetrics.Metrics
	calendar    shift.Calendar
	syncTimeout time.Duration
	limit       int
	logger      *slog.Logger
}

// NewService constructs Service.
func NewService(d Deps) *Service {
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SyncTimeout <= 0 {
		d.SyncTimeout = defaultSyncTimeout
	}
	if d.RangeConcurrency <= 0 {
		d.RangeConcurrency = defaultRangeConcurrency
	}
	return &Service{
		store:       d.Store,
		forms:       d.Forms,
		upstream:    d.Upstream,
		cache:       d.Cache,
		enqueuer:    d.Enqueuer,
		locker:      d.Locker,
		metrics:     d.Metrics,
		calendar:    d.Calendar,
		syncTimeout: d.SyncTimeout,
		limit:       d.RangeConcurrency,
		logger:      d.Logger.With(slog.String("component", "comparison")),
	}
}

// Get builds the comparison for date. POS presence is decided by the raw
// receipt count; the summary row only supplies totals when it exists.
func (s *Service) Get(ctx context.Context, date shift.Date) (DailyComparison, error) {
	window := s.calendar.Window(date)
	var (
		count   int64
		summary *DailySource
		form    *shiftform.ClosingForm
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		count, err = s.store.ReceiptCount(gctx, window)
		return err
	})
	g.Go(func() (err error) {
		summary, err = s.store.Summary(gctx, date)
		return err
	})
	g.Go(func() (err error) {
		form, err = s.forms.GetClosingForm(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return DailyComparison{}, err
	}

	var posSide *DailySource
	if count > 0 {
		posSide = summary
		if posSide == nil {
			sales, err := s.store.ReceiptSales(ctx, window)
			if err != nil {
				return DailyComparison{}, err
			}
			posSide = &DailySource{
				Source:   SidePOS,
				Date:     date,
				Sales:    sales,
				Expenses: Expenses{Lines: []ExpenseLine{}},
				Banking:  NewBanking(decimal.Zero, sales.Cash, decimal.Zero),
			}
		}
		n := count
		posSide.ReceiptCount = &n
	}

	formSide := FormSource(form)
	var declared *int64
	if form != nil {
		declared = form.ReceiptCount
	}
	return DailyComparison{
		Date:            date,
		Availability:    DeriveAvailability(posSide != nil, formSide != nil),
		POS:             posSide,
		Form:            formSide,
		Variance:        ComputeVariance(posSide, formSide),
		ReceiptEvidence: ClassifyEvidence(count, form != nil, declared),
	}, nil
}

// Range returns one comparison per day of month (YYYY-MM).
func (s *Service) Range(ctx context.Context, month string) ([]DailyComparison, error) {
	days, err := shift.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	out := make([]DailyComparison, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, day := range days {
		g.Go(func() error {
			cmp, err := s.Get(gctx, day)
			if err != nil {
				return err
			}
			out[i] = cmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sync pulls date from the POS, stores it and returns the refreshed
// comparison. It never fails: every fault degrades to a result that still
// carries the cached comparison when one can be built.
func (s *Service) Sync(ctx context.Context, date shift.Date) (res SyncResult) {
	runID := uuid.New()
	res = SyncResult{Date: date, RunID: runID.String()}
	logger := s.logger.With(slog.String("shift_date", date.String()), slog.String("run_id", res.RunID))
	defer func() {
		s.metrics.ObserveSync(string(res.Status))
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	// A second sync for the same date reports busy at once instead of queueing.
	release, err := s.locker.TryAcquire(syncCtx, shared.SyncLockKey(date.String()))
	if err != nil {
		return s.degrade(ctx, logger, res, SyncBusy, err, "A sync for this date is already running. Showing cached data.")
	}
	defer release()

	if s.upstream == nil {
		return s.degrade(ctx, logger, res, SyncUpstreamError, pos.ErrNotConfigured, "POS is not configured. Showing cached data.")
	}
	day, err := s.upstream.FetchDay(syncCtx, s.calendar.Window(date))
	if err != nil {
		status := SyncUpstreamError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(syncCtx.Err(), context.DeadlineExceeded) {
			status = SyncTimeout
		}
		return s.degrade(ctx, logger, res, status, err, "Could not reach the POS. Showing cached data.")
	}

	summary := SummarizeDay(date, day)
	if err := s.store.ImportDay(syncCtx, date, day, summary, runID); err != nil {
		return s.degrade(ctx, logger, res, SyncStoreError, err, "POS data was fetched but could not be saved. Showing cached data.")
	}
	// ReceiptsImported matches Totals.ReceiptCount; voided receipts are stored but not counted.
	res.ReceiptsImported = int(*summary.ReceiptCount)
	res.ReceiptsVoided = len(day.Receipts) - res.ReceiptsImported
	res.Totals = &summary

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, date); err != nil {
			logger.Warn("invalidate sales analytics", slog.Any("error", err))
		}
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueLedgerRecompute(ctx, date.String()); err != nil {
			logger.Warn("enqueue ledger recompute", slog.Any("error", err))
		}
	}

	cmp, err := s.Get(ctx, date)
	if err != nil {
		logger.Warn("reload comparison after sync", slog.Any("error", err))
		res.OK = true
		res.Status = SyncPartial
		res.Reason = err.Error()
		res.Message = "POS data synced. The comparison could not be reloaded; showing POS totals only."
		return res
	}
	res.OK = true
	res.Status = SyncSynced
	res.Message = "POS data synced."
	res.Comparison = &cmp
	logger.Info("pos sync complete",
		slog.Int("receipts", res.ReceiptsImported),
		slog.Int("voided", res.ReceiptsVoided),
		slog.String("availability", string(cmp.Availability)),
	)
	return res
}

// InvalidDate is the result returned for an unparseable sync date.
func InvalidDate(raw string, err error) SyncResult {
	return SyncResult{
		Status:  SyncInvalidDate,
		Reason:  err.Error(),
		Message: "Date must be YYYY-MM-DD, got " + raw + ".",
	}
}

func (s *Service) degrade(ctx context.Context, logger *slog.Logger, res SyncResult, status SyncStatus, cause error, message string) SyncResult {
	logger.Warn("pos sync degraded", slog.String("status", string(status)), slog.Any("error", cause))
	res.OK = false
	res.Status = status
	res.Reason = cause.Error()
	res.Message = message
	if cmp, err := s.Get(ctx, res.Date); err == nil {
		res.Comparison = &cmp
	} else {
		logger.Warn("load cached comparison", slog.Any("error", err))
	}
	return res
}
