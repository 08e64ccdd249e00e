package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/internal/shift"
	"github.com/odyssey-erp/shiftledger/jobs"
)

type recordingRecomputer struct {
	dates []shift.Date
	err   error
}

func (r *recordingRecomputer) RecomputeAll(ctx context.Context, date shift.Date) ([]Entry, error) {
	r.dates = append(r.dates, date)
	return []Entry{{Commodity: CommodityRolls, ShiftDate: date, Status: StatusOK}}, r.err
}

func TestRecomputeJobHandle(t *testing.T) {
	rec := &recordingRecomputer{}
	job := NewRecomputeJob(rec, shift.NewCalendar(time.FixedZone("ICT", 7*3600)), nil, nil)
	job.clock = func() time.Time { return time.Date(2025, 1, 11, 5, 0, 0, 0, time.UTC) }

	task, err := jobs.NewLedgerRecomputeTask("2025-01-05")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = jobs.NewLedgerRecomputeTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"2025-01-05", "2025-01-10"}, []string{rec.dates[0].String(), rec.dates[1].String()})

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskLedgerRecompute, []byte("{"))), asynq.SkipRetry)
	bad, _ := jobs.NewLedgerRecomputeTask("2025-02-30")
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	rec.err = errors.New("db down")
	task, _ = jobs.NewLedgerRecomputeTask("2025-01-05")
	require.EqualError(t, job.Handle(context.Background(), task), "db down")
}
