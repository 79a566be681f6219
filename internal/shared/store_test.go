package shared

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type recordingQuerier struct {
	calls []execCall
	err   error
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.calls = append(q.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), q.err
}

func (q *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (q *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestIdempotencyConflictOnUniqueViolation(t *testing.T) {
	q := &recordingQuerier{err: &pgconn.PgError{Code: "23505"}}
	store := &IdempotencyStore{q: q, now: time.Now}
	err := store.CheckAndInsert(context.Background(), "po-confirm:1", "procurement")
	require.ErrorIs(t, err, ErrIdempotencyConflict)

	q.err = errors.New("connection reset")
	err = store.CheckAndInsert(context.Background(), "po-confirm:1", "procurement")
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, ErrIdempotencyConflict)

	require.Error(t, store.CheckAndInsert(context.Background(), "", "procurement"))
}

func TestIdempotencyCleanupCutoff(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := &recordingQuerier{}
	store := &IdempotencyStore{q: q, now: func() time.Time { return now }}
	require.NoError(t, store.Cleanup(context.Background(), 24*time.Hour))
	require.Len(t, q.calls, 1)
	require.Equal(t, now.Add(-24*time.Hour), q.calls[0].args[0])
	require.Error(t, store.Cleanup(context.Background(), 0))

	var nilStore *IdempotencyStore
	require.NoError(t, nilStore.Delete(context.Background(), "x"))
}

func TestAuditRecordUsesContextActor(t *testing.T) {
	q := &recordingQuerier{}
	logger := &AuditLogger{q: q}
	ctx := ContextWithActor(context.Background(), Actor{ID: 9, Name: "Deniz"})
	require.NoError(t, logger.Record(ctx, AuditLog{Action: "PO_CONFIRM", Entity: "purchase_order", EntityID: "3"}))
	require.Len(t, q.calls, 1)
	args := q.calls[0].args
	require.Equal(t, int64(9), args[0])
	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	require.Equal(t, "Deniz", meta["actor_name"])

	require.Error(t, logger.Record(ctx, AuditLog{Action: "PO_CONFIRM"}))
}
