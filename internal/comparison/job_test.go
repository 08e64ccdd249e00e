package comparison

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/jobs"
)

type recordingSyncer struct {
	dates  []shift.Date
	status SyncStatus
}

func (r *recordingSyncer) Sync(ctx context.Context, date shift.Date) SyncResult {
	r.dates = append(r.dates, date)
	return SyncResult{Date: date, Status: r.status, OK: r.status == SyncSynced}
}

func TestSyncJobHandle(t *testing.T) {
	rec := &recordingSyncer{status: SyncSynced}
	job := NewSyncJob(rec, shift.NewCalendar(time.FixedZone("ICT", 7*3600)), nil, nil)
	job.clock = func() time.Time { return time.Date(2025, 1, 11, 5, 0, 0, 0, time.UTC) }

	task, err := jobs.NewPOSSyncTask("2025-01-05")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = jobs.NewPOSSyncTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "2025-01-05", rec.dates[0].String())
	require.Equal(t, "2025-01-10", rec.dates[1].String())

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskPOSSync, []byte("[]"))), asynq.SkipRetry)
	bad, _ := jobs.NewPOSSyncTask("10-01-2025")
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	rec.status = SyncBusy
	require.NoError(t, job.Handle(context.Background(), task))

	rec.status = SyncUpstreamError
	require.Error(t, job.Handle(context.Background(), task))
}
