package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/shiftledger/internal/jobs"
	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/jobs"
)

// Recomputer is the part of Service the job drives.
type Recomputer interface {
	RecomputeAll(ctx context.Context, date shift.Date) ([]Entry, error)
}

// RecomputeJob handles jobs.TaskLedgerRecompute.
type RecomputeJob struct {
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	service  Recomputer
	calendar shift.Calendar
	clock    func() time.Time
}

// NewRecomputeJob constructs the handler.
func NewRecomputeJob(service Recomputer, calendar shift.Calendar, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeJob {
	return &RecomputeJob{Logger: logger, Metrics: metrics, service: service, calendar: calendar, clock: time.Now}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RecomputeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return errors.New("ledger recompute: handler not configured")
	}
	var payload jobs.LedgerRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date, err := j.resolveDate(payload.Date)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(jobs.TaskLedgerRecompute)
	logger := j.logger().With(slog.String("shift_date", date.String()))
	entries, err := j.service.RecomputeAll(ctx, date)
	if err != nil {
		logger.Error("ledger recompute", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, e := range entries {
		logger.Info("ledger recomputed",
			slog.String("commodity", string(e.Commodity)),
			slog.String("status", string(e.Status)),
			slog.Int64("variance", e.Variance),
		)
	}
	return tracker.End(nil)
}

// resolveDate defaults to the shift that closed most recently.
func (j *RecomputeJob) resolveDate(value string) (shift.Date, error) {
	if value != "" {
		return shift.ParseDate(value)
	}
	return j.calendar.LastClosed(j.clock()), nil
}

func (j *RecomputeJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", jobs.TaskLedgerRecompute))
	}
	return j.Logger.With(slog.String("job", jobs.TaskLedgerRecompute))
}
