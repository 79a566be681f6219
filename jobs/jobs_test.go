package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-import/internal/jobs"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeWarmer struct {
	warmed   int
	err      error
	deadline bool
}

func (f *fakeWarmer) WarmPlannedSupply(ctx context.Context) (int, error) {
	_, f.deadline = ctx.Deadline()
	return f.warmed, f.err
}

type fakeReconciler struct {
	calls int
	err   error
}

func (f *fakeReconciler) ReconcileReceived(context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

type fakePurger struct{ purged int }

func (f fakePurger) PurgeCompleted(context.Context) (int, error) { return f.purged, nil }

type fakeKeys struct{ olderThan time.Duration }

func (f *fakeKeys) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return nil
}

type fakeQueue struct{ payloads []SendEmailPayload }

func (f *fakeQueue) EnqueueSendEmail(_ context.Context, p SendEmailPayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, p)
	return &asynq.TaskInfo{ID: "1"}, nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestPlannedSupplyWarmupJob(t *testing.T) {
	task, err := NewPlannedSupplyWarmupTask(time.Minute)
	require.NoError(t, err)
	require.Equal(t, TaskPlannedSupplyWarmup, task.Type())

	warmer := &fakeWarmer{warmed: 4}
	job := NewPlannedSupplyWarmupJob(warmer, quiet, testMetrics())
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, warmer.deadline)

	warmer.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskPlannedSupplyWarmup, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	var unset *PlannedSupplyWarmupJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestReceivedReconcileJob(t *testing.T) {
	task, err := NewReceivedReconcileTask()
	require.NoError(t, err)

	lines := &fakeReconciler{}
	job := NewReceivedReconcileJob(lines, quiet, testMetrics())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, lines.calls)

	lines.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestImportCleanupJob(t *testing.T) {
	task, err := NewImportCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	var payload ImportCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 48, payload.RetainHours)

	keys := &fakeKeys{}
	job := NewImportCleanupJob(fakePurger{purged: 2}, keys, quiet, testMetrics())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, keys.olderThan)

	defaults := asynq.NewTask(TaskImportCleanup, []byte(`{}`))
	require.NoError(t, job.Handle(context.Background(), defaults))
	require.Equal(t, 30*24*time.Hour, keys.olderThan)
}

func TestMailerSkipsInvalidPayload(t *testing.T) {
	m := Mailer{Logger: quiet}
	task, err := NewSendEmailTask(SendEmailPayload{To: "ops@example.com", Subject: "hi"})
	require.NoError(t, err)
	require.NoError(t, m.Handle(context.Background(), task))

	empty, err := NewSendEmailTask(SendEmailPayload{Subject: "nobody"})
	require.NoError(t, err)
	require.ErrorIs(t, m.Handle(context.Background(), empty), asynq.SkipRetry)
}

func TestGroupNotifier(t *testing.T) {
	queue := &fakeQueue{}
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	groups := []shipment.GroupResult{
		{VendorID: 3, Date: &date, Status: shipment.GroupSkipped, Reason: "vendor has no supplier location", LineIDs: []int64{7}},
		{VendorID: 4, Status: shipment.GroupFailed, LineIDs: []int64{8, 9}},
	}

	require.NoError(t, GroupNotifier{Queue: queue}.GroupsNotCreated(context.Background(), "s1", groups))
	require.Empty(t, queue.payloads)

	n := GroupNotifier{Queue: queue, To: "buyer@example.com"}
	require.NoError(t, n.GroupsNotCreated(context.Background(), "s1", groups))
	require.Len(t, queue.payloads, 1)
	msg := queue.payloads[0]
	require.Equal(t, "buyer@example.com", msg.To)
	require.Equal(t, "Import s1: 2 receipt group(s) not created", msg.Subject)
	require.Contains(t, msg.Body, "vendor 3, date 2024-03-10, lines [7]: skipped (vendor has no supplier location)")
	require.Contains(t, msg.Body, "vendor 4, date today, lines [8 9]: failed")
}

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2}}, quiet).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"retry":0,"archived":0,"latency_ms":0,"paused":false}`, rec.Body.String())

	r = chi.NewRouter()
	NewHandler(fakeInspector{err: errors.New("no redis")}, quiet).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRedisOptFromURL(t *testing.T) {
	opt := RedisOpt("redis://:secret@cache.internal:6380/3")
	require.Equal(t, "cache.internal:6380", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 3, opt.DB)

	require.Equal(t, "127.0.0.1:6379", RedisOpt("127.0.0.1:6379").Addr)
}
