package comparison

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/shiftledger/internal/jobs"
	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/jobs"
)

// Syncer is the part of Service the job drives.
type Syncer interface {
	Sync(ctx context.Context, date shift.Date) SyncResult
}

// SyncJob handles jobs.TaskPOSSync.
type SyncJob struct {
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	service  Syncer
	calendar shift.Calendar
	clock    func() time.Time
}

// NewSyncJob constructs the handler.
func NewSyncJob(service Syncer, calendar shift.Calendar, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncJob {
	return &SyncJob{Logger: logger, Metrics: metrics, service: service, calendar: calendar, clock: time.Now}
}

// Handle fulfils the asynq.HandlerFunc contract. Upstream and store faults
// are returned so asynq retries; a concurrent sync is not.
func (j *SyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return errors.New("pos sync: handler not configured")
	}
	var payload jobs.POSSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date := j.calendar.LastClosed(j.clock())
	if payload.Date != "" {
		parsed, err := shift.ParseDate(payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	tracker := j.Metrics.Track(jobs.TaskPOSSync)
	res := j.service.Sync(ctx, date)
	j.logger().Info("pos sync",
		slog.String("shift_date", date.String()),
		slog.String("status", string(res.Status)),
		slog.String("run_id", res.RunID),
		slog.Int("receipts", res.ReceiptsImported),
	)
	switch res.Status {
	case SyncUpstreamError, SyncTimeout, SyncStoreError:
		return tracker.End(fmt.Errorf("pos sync %s: %s: %s", date, res.Status, res.Reason))
	}
	return tracker.End(nil)
}

func (j *SyncJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", jobs.TaskPOSSync))
	}
	return j.Logger.With(slog.String("job", jobs.TaskPOSSync))
}
