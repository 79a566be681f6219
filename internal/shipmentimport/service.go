package shipmentimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
	"github.com/odyssey-erp/odyssey-import/internal/spreadsheet"
)

const (
	wizardName        = "shipment"
	idempotencyModule = "shipment_import"
)

// SessionStore keeps wizard sessions.
type SessionStore interface {
	Put(ctx context.Context, id string, value any, ttl time.Duration) error
	Get(ctx context.Context, id string, dest any) error
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context) ([]string, error)
}

// LinePort is the slice of the shipment service the wizard drives.
type LinePort interface {
	OpenLinesByReference(ctx context.Context, ref string) ([]shipment.Line, error)
	ApplyImport(ctx context.Context, sessionID string, rows []shipment.ImportRow) (shipment.ImportOutcome, error)
}

// LockPort serializes confirms of one session.
type LockPort interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// IdempotencyPort rejects a second confirm of the same session.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts processed rows.
type MetricsPort interface {
	AddRows(wizard, status string, n int)
}

// Notifier is told about receipt groups that were not created.
type Notifier interface {
	GroupsNotCreated(ctx context.Context, sessionID string, groups []shipment.GroupResult) error
}

// Options tunes the wizard.
type Options struct {
	SessionTTL     time.Duration
	LockTTL        time.Duration
	PriceTolerance decimal.Decimal
	Locale         string
}

// Deps groups the collaborators of Service. Locker, Idempotency, Metrics and
// Notifier are optional.
type Deps struct {
	Store       SessionStore
	Lines       LinePort
	Locker      LockPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Notifier    Notifier
	Logger      *slog.Logger
}

// Service implements the preview, validate, confirm and reset wizard steps.
type Service struct {
	deps     Deps
	opts     Options
	messages *shared.Messages
	now      func() time.Time
}

// NewService constructs the wizard service.
func NewService(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.PriceTolerance.IsZero() {
		opts.PriceTolerance = decimal.RequireFromString("0.01")
	}
	return &Service{deps: deps, opts: opts, messages: shared.NewMessages(opts.Locale), now: time.Now}
}

// Preview parses the upload into a new draft session.
func (s *Service) Preview(ctx context.Context, fileName string, file io.Reader) (Session, error) {
	if file == nil {
		return Session{}, ErrEmptyFile
	}
	parsed, err := spreadsheet.Parse(file)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		ActorID:   shared.ActorID(ctx),
		FileName:  fileName,
		State:     StateDraft,
		Rows:      make([]Row, 0, len(parsed)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, p := range parsed {
		row := Row{
			Index:     p.Index,
			Reference: p.Reference,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			Date:      p.Date,
			Status:    RowPending,
		}
		if p.ParseError != "" {
			row.Status = RowFailed
			row.ParseError = p.ParseError
			row.Message = s.messages.Sprintf(shared.MsgInvalidRow, p.ParseError)
		}
		sess.Rows = append(sess.Rows, row)
	}
	if err := s.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	s.deps.Logger.Info("shipment import previewed",
		slog.String("session_id", sess.ID),
		slog.String("file", fileName),
		slog.Int("rows", len(sess.Rows)))
	return sess, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	var sess Session
	if err := s.deps.Store.Get(ctx, id, &sess); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// Validate matches every row against open shipment lines and sets its status.
// Running it again on unchanged rows and lines yields the same result.
func (s *Service) Validate(ctx context.Context, id string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.State == StateDone {
		return Session{}, ErrSessionClosed
	}
	if err := s.validateRows(ctx, sess.Rows); err != nil {
		return Session{}, err
	}
	sess.State = StateValidated
	if err := s.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) validateRows(ctx context.Context, rows []Row) error {
	matches := make(map[string][]shipment.Line)
	fileTotals := make(map[string]decimal.Decimal)

	for i := range rows {
		row := &rows[i]
		row.MatchIDs = nil
		if row.ParseError != "" {
			row.Status = RowFailed
			row.Message = s.messages.Sprintf(shared.MsgInvalidRow, row.ParseError)
			continue
		}
		row.Reference = shipment.NormalizeReference(row.Reference)
		if !row.Quantity.IsPositive() {
			row.Status = RowFailed
			row.Message = s.messages.Sprintf(shared.MsgInvalidRow, "quantity must be positive")
			continue
		}
		lines, ok := matches[row.Reference]
		if !ok && row.Reference != "" {
			var err error
			lines, err = s.deps.Lines.OpenLinesByReference(ctx, row.Reference)
			if err != nil {
				return fmt.Errorf("match %s: %w", row.Reference, err)
			}
			matches[row.Reference] = lines
		}
		if len(lines) == 0 {
			row.Status = RowFailed
			row.Message = s.messages.Sprintf(shared.MsgReferenceNotFound)
			continue
		}
		for _, l := range lines {
			row.MatchIDs = append(row.MatchIDs, l.ID)
		}
		fileTotals[row.Reference] = fileTotals[row.Reference].Add(row.Quantity)
	}

	for i := range rows {
		row := &rows[i]
		if len(row.MatchIDs) == 0 {
			continue
		}
		lines := matches[row.Reference]
		var warnings []string
		if row.UnitPrice != nil {
			for _, l := range lines {
				if row.UnitPrice.Sub(l.UnitPrice).Abs().GreaterThan(s.opts.PriceTolerance) {
					warnings = append(warnings, s.messages.Sprintf(shared.MsgPriceMismatch,
						row.UnitPrice.StringFixed(2), l.UnitPrice.StringFixed(2)))
					break
				}
			}
		}
		open := decimal.Zero
		for _, l := range lines {
			open = open.Add(l.OpenQty())
		}
		if total := fileTotals[row.Reference]; total.GreaterThan(open) {
			warnings = append(warnings, s.messages.Sprintf(shared.MsgQuantityExceeds, total.String(), open.String()))
		}
		if len(warnings) > 0 {
			row.Status = RowWarning
			row.Message = strings.Join(warnings, "; ")
			continue
		}
		row.Status = RowSuccess
		row.Message = s.messages.Sprintf(shared.MsgMatchFound)
	}
	return nil
}

// Confirm allocates every success and warning row and synthesizes receipts.
// Rows are re-validated first so the matches reflect the current lines.
func (s *Service) Confirm(ctx context.Context, id string) (ConfirmResult, error) {
	var result ConfirmResult
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.State == StateDone {
			return shared.ErrIdempotencyConflict
		}
		if err := s.validateRows(ctx, sess.Rows); err != nil {
			return err
		}
		var actionable []shipment.ImportRow
		for _, row := range sess.Rows {
			if !row.Status.Actionable() {
				continue
			}
			actionable = append(actionable, shipment.ImportRow{
				Index:     row.Index,
				Reference: row.Reference,
				Quantity:  row.Quantity,
				Date:      row.Date,
			})
		}
		if len(actionable) == 0 {
			return ErrNoActionableRows
		}

		key := idempotencyModule + ":" + id
		if s.deps.Idempotency != nil {
			if err := s.deps.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				return err
			}
		}
		outcome, err := s.deps.Lines.ApplyImport(ctx, id, actionable)
		if err != nil {
			if s.deps.Idempotency != nil {
				if delErr := s.deps.Idempotency.Delete(ctx, key); delErr != nil {
					s.deps.Logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
				}
			}
			return err
		}

		result = ConfirmResult{SessionID: id, Rows: outcome.Rows, Groups: outcome.Groups, ReceiptIDs: outcome.ReceiptIDs}
		if result.ReceiptIDs == nil {
			result.ReceiptIDs = []int64{}
		}
		sess.State = StateDone
		sess.Result = &result
		if err := s.save(ctx, &sess); err != nil {
			s.deps.Logger.Warn("save confirmed session", slog.String("session_id", id), slog.Any("error", err))
		}
		s.countRows(sess)
		s.notify(ctx, id, outcome.Groups)
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	s.deps.Logger.Info("shipment import confirmed",
		slog.String("session_id", id),
		slog.Int("receipts", len(result.ReceiptIDs)),
		slog.Int("groups", len(result.Groups)))
	return result, nil
}

// Reset drops the rows and returns the session to draft.
func (s *Service) Reset(ctx context.Context, id string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Rows = []Row{}
	sess.State = StateDraft
	sess.Result = nil
	if err := s.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// PurgeCompleted removes confirmed sessions and reports how many went.
func (s *Service) PurgeCompleted(ctx context.Context) (int, error) {
	ids, err := s.deps.Store.Scan(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return purged, err
		}
		if sess.State != StateDone {
			continue
		}
		if err := s.deps.Store.Delete(ctx, id); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *Service) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if s.deps.Locker == nil {
		return fn(ctx)
	}
	return s.deps.Locker.WithLock(ctx, shared.ShipmentImportLockKey(id), s.opts.LockTTL, fn)
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	return s.deps.Store.Put(ctx, sess.ID, sess, s.opts.SessionTTL)
}

func (s *Service) countRows(sess Session) {
	if s.deps.Metrics == nil {
		return
	}
	for status, n := range sess.Counts() {
		s.deps.Metrics.AddRows(wizardName, string(status), n)
	}
}

func (s *Service) notify(ctx context.Context, id string, groups []shipment.GroupResult) {
	if s.deps.Notifier == nil {
		return
	}
	var missed []shipment.GroupResult
	for _, g := range groups {
		if g.Status != shipment.GroupCreated {
			missed = append(missed, g)
		}
	}
	if len(missed) == 0 {
		return
	}
	if err := s.deps.Notifier.GroupsNotCreated(ctx, id, missed); err != nil {
		s.deps.Logger.Warn("notify skipped receipt groups", slog.String("session_id", id), slog.Any("error", err))
	}
}
