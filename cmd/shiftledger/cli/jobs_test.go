package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
}

func (s *stubClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3, Retry: 1}, nil
}

func TestRunTrigger(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: stubInspector{}}

	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"trigger", jobs.TaskPOSSync, "2025-01-10"}, &out))
	require.Equal(t, "enqueued pos:sync id=t1 queue=default\n", out.String())
	require.Len(t, client.tasks, 1)
	var payload jobs.POSSyncPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "2025-01-10", payload.Date)

	require.Error(t, c.Run(context.Background(), []string{"trigger", jobs.TaskLedgerRecompute, "10/01/2025"}, &out))
	require.Error(t, c.Run(context.Background(), []string{"trigger", "close:run"}, &out))
	require.Len(t, client.tasks, 1)
}

func TestRunStats(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{}}
	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"stats"}, &out))
	require.Equal(t, "queue=default pending=3 active=0 scheduled=0 retry=1 failed=0\n", out.String())

	require.Error(t, c.Run(context.Background(), nil, &out))
	require.Error(t, c.Run(context.Background(), []string{"purge"}, &out))
}
