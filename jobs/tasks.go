package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRecompute recomputes every commodity ledger for a business date.
	TaskLedgerRecompute = "ledger:recompute"
	// TaskPOSSync pulls POS totals for a business date.
	TaskPOSSync = "pos:sync"
)

// LedgerRecomputePayload names the business date to recompute. An empty date
// means the most recently closed shift.
type LedgerRecomputePayload struct {
	Date string `json:"date,omitempty"`
}

// POSSyncPayload names the business date to sync. An empty date means the
// most recently closed shift.
type POSSyncPayload struct {
	Date string `json:"date,omitempty"`
}

// NewLedgerRecomputeTask constructs a ledger recompute task.
func NewLedgerRecomputeTask(date string) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerRecomputePayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRecompute, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}

// NewPOSSyncTask constructs a POS sync task.
func NewPOSSyncTask(date string) (*asynq.Task, error) {
	body, err := json.Marshal(POSSyncPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPOSSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}
