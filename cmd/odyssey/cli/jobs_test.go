package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"

	"github.com/odyssey-erp/odyssey-import/jobs"
)

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func (f *fakeInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, f.err
}

func (f *fakeInspector) Close() error { return nil }

func runJobs(t *testing.T, jobsCLI *JobsCLI, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	app := &urfave.App{
		Name:           "odyssey",
		Writer:         out,
		ErrWriter:      out,
		ExitErrHandler: func(*urfave.Context, error) {},
		Commands: []*urfave.Command{JobsCommand(func(string) *JobsCLI {
			return jobsCLI
		})},
	}
	err := app.RunContext(context.Background(), append([]string{"odyssey", "jobs"}, args...))
	return out.String(), err
}

func TestTriggerKnownJobs(t *testing.T) {
	client := &fakeEnqueuer{}
	c := NewJobsCLIWith(client, &fakeInspector{})
	for _, name := range JobNames() {
		info, err := c.Trigger(context.Background(), name, TriggerOptions{})
		require.NoError(t, err)
		require.Equal(t, name, info.Type)
	}
	require.Len(t, client.tasks, 3)
}

func TestTriggerUnknownJob(t *testing.T) {
	c := NewJobsCLIWith(&fakeEnqueuer{}, &fakeInspector{})
	_, err := c.Trigger(context.Background(), "analytics:warmup", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")
}

func TestTriggerCommandPrintsTask(t *testing.T) {
	client := &fakeEnqueuer{}
	out, err := runJobs(t, NewJobsCLIWith(client, &fakeInspector{}), "trigger", jobs.TaskReceivedReconcile)
	require.NoError(t, err)
	require.Contains(t, out, "enqueued "+jobs.TaskReceivedReconcile)
	require.True(t, client.closed)
}

func TestTriggerCommandRequiresName(t *testing.T) {
	_, err := runJobs(t, NewJobsCLIWith(&fakeEnqueuer{}, &fakeInspector{}), "trigger")
	require.Error(t, err)
}

func TestStatsCommandJSON(t *testing.T) {
	inspector := &fakeInspector{info: &asynq.QueueInfo{Pending: 4, Retry: 1}}
	out, err := runJobs(t, NewJobsCLIWith(&fakeEnqueuer{}, inspector), "stats", "--json")
	require.NoError(t, err)

	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, jobs.QueueDefault, stats.Queue)
	require.Equal(t, 4, stats.Pending)
	require.Equal(t, 1, stats.Retry)
}

func TestStatsCommandInspectorError(t *testing.T) {
	inspector := &fakeInspector{err: errors.New("redis down")}
	_, err := runJobs(t, NewJobsCLIWith(&fakeEnqueuer{}, inspector), "stats")
	require.ErrorContains(t, err, "redis down")
}
