package importorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-import/internal/procurement"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
	"github.com/odyssey-erp/odyssey-import/internal/spreadsheet"
)

const (
	wizardName        = "import_order"
	idempotencyModule = "import_order_import"
)

// SessionStore keeps wizard sessions.
type SessionStore interface {
	Put(ctx context.Context, id string, value any, ttl time.Duration) error
	Get(ctx context.Context, id string, dest any) error
	Delete(ctx context.Context, id string) error
}

// OrderLinePort is the part of Service the wizard matches against.
type OrderLinePort interface {
	Get(ctx context.Context, id int64) (Order, error)
	LinesByReference(ctx context.Context, ref string) ([]Line, error)
	ApplyIncoming(ctx context.Context, updates []IncomingUpdate) error
}

// PurchasePort creates the purchase order produced by confirm, and cancels
// it again when the import-order lines cannot be updated.
type PurchasePort interface {
	CreatePurchaseOrder(ctx context.Context, input procurement.CreatePOInput) (procurement.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, id int64) error
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

// WizardOptions tunes the wizard.
type WizardOptions struct {
	SessionTTL     time.Duration
	LockTTL        time.Duration
	PriceTolerance decimal.Decimal
	Locale         string
}

// WizardDeps groups the collaborators of Wizard. Locker, Idempotency and
// Metrics are optional.
type WizardDeps struct {
	Store       SessionStore
	Orders      OrderLinePort
	Purchases   PurchasePort
	Locker      LockPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// Wizard turns an uploaded sheet of technical references into a purchase order.
type Wizard struct {
	deps     WizardDeps
	opts     WizardOptions
	messages *shared.Messages
	now      func() time.Time
}

// NewWizard constructs Wizard.
func NewWizard(deps WizardDeps, opts WizardOptions) *Wizard {
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
	return &Wizard{deps: deps, opts: opts, messages: shared.NewMessages(opts.Locale), now: time.Now}
}

// Preview parses the upload into a new draft session. A missing price reads as zero.
func (w *Wizard) Preview(ctx context.Context, input PreviewInput, file io.Reader) (Session, error) {
	if file == nil {
		return Session{}, ErrEmptyFile
	}
	if input.ImportOrderID > 0 {
		if _, err := w.deps.Orders.Get(ctx, input.ImportOrderID); err != nil {
			return Session{}, err
		}
	}
	parsed, err := spreadsheet.Parse(file)
	if err != nil {
		return Session{}, err
	}
	now := w.now()
	sess := Session{
		ID:            uuid.NewString(),
		ActorID:       shared.ActorID(ctx),
		ImportOrderID: input.ImportOrderID,
		VendorID:      input.VendorID,
		Currency:      input.Currency,
		FileName:      input.FileName,
		State:         SessionDraft,
		Rows:          make([]Row, 0, len(parsed)),
		CreatedAt:     now,
	}
	for _, p := range parsed {
		row := Row{Index: p.Index, Reference: p.Reference, Quantity: p.Quantity, Status: RowPending}
		if p.UnitPrice != nil {
			row.FilePrice = *p.UnitPrice
		}
		if p.ParseError != "" {
			row.Status = RowFailed
			row.ParseError = p.ParseError
			row.Message = w.messages.Sprintf(shared.MsgInvalidRow, p.ParseError)
		}
		sess.Rows = append(sess.Rows, row)
	}
	if err := w.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	w.deps.Logger.Info("import order lines previewed",
		slog.String("session_id", sess.ID),
		slog.String("file", input.FileName),
		slog.Int("rows", len(sess.Rows)))
	return sess, nil
}

// Get loads a session.
func (w *Wizard) Get(ctx context.Context, id string) (Session, error) {
	var sess Session
	if err := w.deps.Store.Get(ctx, id, &sess); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// Validate matches each row to import order lines by technical reference.
func (w *Wizard) Validate(ctx context.Context, id string) (Session, error) {
	sess, err := w.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.State == SessionDone {
		return Session{}, ErrSessionClosed
	}
	if err := w.validateRows(ctx, sess.Rows); err != nil {
		return Session{}, err
	}
	sess.State = SessionValidated
	if err := w.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (w *Wizard) validateRows(ctx context.Context, rows []Row) error {
	cached := make(map[string][]Line)
	for i := range rows {
		row := &rows[i]
		row.MatchIDs = nil
		row.OrderPrice = decimal.Zero
		if row.ParseError != "" {
			row.Status = RowFailed
			row.Message = w.messages.Sprintf(shared.MsgInvalidRow, row.ParseError)
			continue
		}
		row.Reference = shipment.NormalizeReference(row.Reference)
		if !row.Quantity.IsPositive() {
			row.Status = RowFailed
			row.Message = w.messages.Sprintf(shared.MsgInvalidRow, "quantity must be positive")
			continue
		}
		lines, ok := cached[row.Reference]
		if !ok && row.Reference != "" {
			var err error
			lines, err = w.deps.Orders.LinesByReference(ctx, row.Reference)
			if err != nil {
				return fmt.Errorf("match %s: %w", row.Reference, err)
			}
			cached[row.Reference] = lines
		}
		if len(lines) == 0 {
			row.Status = RowFailed
			row.Message = w.messages.Sprintf(shared.MsgReferenceNotFound)
			continue
		}
		for _, l := range lines {
			row.MatchIDs = append(row.MatchIDs, l.ID)
		}
		row.OrderPrice = lines[0].UnitPrice
		if row.OrderPrice.Sub(row.FilePrice).Abs().LessThan(w.opts.PriceTolerance) {
			row.Status = RowSuccess
			row.Message = w.messages.Sprintf(shared.MsgMatchFound)
		} else {
			row.Status = RowWarning
			row.Message = w.messages.Sprintf(shared.MsgPriceDifference)
		}
	}
	return nil
}

// Confirm creates a draft purchase order with one line per success or warning
// row, priced from the file, and records the row quantity as incoming on the
// matched import order lines.
func (w *Wizard) Confirm(ctx context.Context, id string, input ConfirmInput) (Session, error) {
	var out Session
	err := w.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := w.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.State == SessionDone {
			return shared.ErrIdempotencyConflict
		}
		if input.VendorID > 0 {
			sess.VendorID = input.VendorID
		}
		if input.Currency != "" {
			sess.Currency = input.Currency
		}
		if sess.VendorID <= 0 {
			return ErrVendorRequired
		}
		if sess.State == SessionDraft {
			if err := w.validateRows(ctx, sess.Rows); err != nil {
				return err
			}
		}
		var actionable []Row
		for _, row := range sess.Rows {
			if row.Status.Actionable() && len(row.MatchIDs) > 0 {
				actionable = append(actionable, row)
			}
		}
		if len(actionable) == 0 {
			return ErrNoActionableRows
		}

		poInput, err := w.purchaseInput(ctx, sess, actionable)
		if err != nil {
			return err
		}
		key := idempotencyModule + ":" + id
		if w.deps.Idempotency != nil {
			if err := w.deps.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				return err
			}
		}
		po, err := w.deps.Purchases.CreatePurchaseOrder(ctx, poInput)
		if err != nil {
			w.releaseKey(ctx, key)
			return err
		}
		updates := make([]IncomingUpdate, len(actionable))
		for i, row := range actionable {
			updates[i] = IncomingUpdate{LineIDs: row.MatchIDs, Qty: row.Quantity}
		}
		if err := w.deps.Orders.ApplyIncoming(ctx, updates); err != nil {
			if cancelErr := w.deps.Purchases.CancelPurchaseOrder(ctx, po.ID); cancelErr != nil {
				w.deps.Logger.Error("cancel purchase order of failed import",
					slog.String("session_id", id),
					slog.Int64("po_id", po.ID),
					slog.Any("error", cancelErr))
			}
			w.releaseKey(ctx, key)
			return fmt.Errorf("set incoming quantities: %w", err)
		}

		sess.State = SessionDone
		sess.PurchaseOrderID = po.ID
		sess.PurchaseOrderNumber = po.Number
		if err := w.save(ctx, &sess); err != nil {
			w.deps.Logger.Warn("save confirmed session", slog.String("session_id", id), slog.Any("error", err))
		}
		w.countRows(sess)
		out = sess
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	w.deps.Logger.Info("import order lines confirmed",
		slog.String("session_id", id),
		slog.Int64("po_id", out.PurchaseOrderID))
	return out, nil
}

// Reset drops the rows and returns the session to draft.
func (w *Wizard) Reset(ctx context.Context, id string) (Session, error) {
	sess, err := w.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Rows = []Row{}
	sess.State = SessionDraft
	sess.PurchaseOrderID = 0
	sess.PurchaseOrderNumber = ""
	if err := w.save(ctx, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (w *Wizard) purchaseInput(ctx context.Context, sess Session, rows []Row) (procurement.CreatePOInput, error) {
	input := procurement.CreatePOInput{
		VendorID:     sess.VendorID,
		Currency:     sess.Currency,
		ExpectedDate: w.now().UTC().Truncate(24 * time.Hour),
		Origin:       "Excel Import: " + sess.FileName,
	}
	if sess.ImportOrderID > 0 {
		order, err := w.deps.Orders.Get(ctx, sess.ImportOrderID)
		if err != nil {
			return procurement.CreatePOInput{}, err
		}
		input.Origin = order.Name
		input.PickingTypeID = order.PickingTypeID
		if input.Currency == "" {
			input.Currency = order.Currency
		}
	}
	lines := make(map[string]Line)
	for _, row := range rows {
		matched, ok := lines[row.Reference]
		if !ok {
			found, err := w.deps.Orders.LinesByReference(ctx, row.Reference)
			if err != nil {
				return procurement.CreatePOInput{}, err
			}
			if len(found) == 0 {
				return procurement.CreatePOInput{}, fmt.Errorf("%w: row %d lost its match", ErrNotFound, row.Index)
			}
			matched = found[0]
			lines[row.Reference] = matched
		}
		lineID := matched.ID
		input.Lines = append(input.Lines, procurement.POLineInput{
			ProductID:         matched.ProductID,
			Qty:               row.Quantity,
			Price:             row.FilePrice,
			ImportOrderLineID: &lineID,
		})
	}
	return input, nil
}

func (w *Wizard) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if w.deps.Locker == nil {
		return fn(ctx)
	}
	return w.deps.Locker.WithLock(ctx, shared.ImportOrderLockKey(id), w.opts.LockTTL, fn)
}

func (w *Wizard) releaseKey(ctx context.Context, key string) {
	if w.deps.Idempotency == nil {
		return
	}
	if err := w.deps.Idempotency.Delete(ctx, key); err != nil {
		w.deps.Logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (w *Wizard) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = w.now()
	return w.deps.Store.Put(ctx, sess.ID, sess, w.opts.SessionTTL)
}

func (w *Wizard) countRows(sess Session) {
	if w.deps.Metrics == nil {
		return
	}
	for status, n := range sess.Counts() {
		w.deps.Metrics.AddRows(wizardName, string(status), n)
	}
}
