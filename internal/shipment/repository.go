package shipment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
)

// Repository persists shipment lines and their ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertLine(ctx context.Context, line Line) (int64, error)
	OpenLinesByReference(ctx context.Context, ref string) ([]Line, error)
	GetLineForUpdate(ctx context.Context, id int64) (Line, error)
	AppendEvent(ctx context.Context, event LedgerEvent) (bool, error)
	SetLatestReceipt(ctx context.Context, lineIDs []int64, receiptID int64) error
	SetDone(ctx context.Context, id int64, done bool) error
	DeleteLines(ctx context.Context, ids []int64) error
}

type txRepo struct {
	q db.Querier
}

// txAttempts bounds retries of transactions that lost a race on a line row.
const txAttempts = 4

// WithTx executes fn inside a repeatable-read transaction. A concurrent
// writer of the same line makes the locking read fail with a serialization
// error; the transaction is then retried, so fn may run more than once.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, txAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const lineSelect = `SELECT l.id, l.reference, l.vendor_id, l.purchase_order_id, l.purchase_order_number, l.purchase_line_id,
l.product_id, l.manufacturer_code, COALESCE(l.picking_type_id, 0), l.unit_price, l.ordered_qty, l.imported_qty,
l.expected_date, l.latest_receipt_id, l.done, l.active, l.created_at
FROM import_shipment_lines l`

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.Reference, &l.VendorID, &l.PurchaseOrderID, &l.PurchaseOrderNumber, &l.PurchaseLineID,
		&l.ProductID, &l.ManufacturerCode, &l.PickingTypeID, &l.UnitPrice, &l.OrderedQty,
		&l.ImportedQty, &l.ExpectedDate, &l.LatestReceiptID, &l.Done, &l.Active, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	return l, err
}

func collectLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetLine fetches a line by id.
func (r *Repository) GetLine(ctx context.Context, id int64) (Line, error) {
	return scanLine(r.pool.QueryRow(ctx, lineSelect+` WHERE l.id = $1`, id))
}

// LinesByIDs fetches lines by id, ordered by id.
func (r *Repository) LinesByIDs(ctx context.Context, ids []int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, lineSelect+` WHERE l.id = ANY($1) ORDER BY l.id`, ids)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

// ListLines returns lines matching filter. Done and archived lines are
// excluded unless IncludeDone is set.
func (r *Repository) ListLines(ctx context.Context, filter ListFilter) ([]Line, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.IncludeDone {
		where = append(where, "l.active", "NOT l.done")
	}
	if filter.Reference != "" {
		add("l.reference = $%d", filter.Reference)
	}
	if filter.VendorID > 0 {
		add("l.vendor_id = $%d", filter.VendorID)
	}
	if filter.ProductID > 0 {
		add("l.product_id = $%d", filter.ProductID)
	}
	if filter.OpenOnly {
		where = append(where, "l.ordered_qty > l.imported_qty")
	}
	query := lineSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

// Ledger lists the events of a line in insertion order.
func (r *Repository) Ledger(ctx context.Context, lineID int64) ([]LedgerEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, line_id, kind, qty, movement_id, COALESCE(session_id, ''), created_at
FROM import_shipment_ledger WHERE line_id = $1 ORDER BY id`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		if err := rows.Scan(&e.ID, &e.LineID, &e.Kind, &e.Qty, &e.MovementID, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO import_shipment_lines
(reference, vendor_id, purchase_order_id, purchase_order_number, purchase_line_id, product_id, manufacturer_code,
 picking_type_id, unit_price, ordered_qty, expected_date, done, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8::bigint, 0),$9,$10,$11,FALSE,TRUE,NOW())
RETURNING id`, line.Reference, line.VendorID, line.PurchaseOrderID, line.PurchaseOrderNumber, line.PurchaseLineID,
		line.ProductID, line.ManufacturerCode, line.PickingTypeID, line.UnitPrice, line.OrderedQty, line.ExpectedDate).Scan(&id)
	return id, err
}

func (t *txRepo) OpenLinesByReference(ctx context.Context, ref string) ([]Line, error) {
	rows, err := t.q.Query(ctx, lineSelect+`
WHERE l.reference = $1 AND l.active AND NOT l.done
ORDER BY l.expected_date, l.id
FOR UPDATE OF l`, ref)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

func (t *txRepo) GetLineForUpdate(ctx context.Context, id int64) (Line, error) {
	return scanLine(t.q.QueryRow(ctx, lineSelect+` WHERE l.id = $1 FOR UPDATE OF l`, id))
}

// AppendEvent inserts a ledger event and adds its quantity to the line's
// imported_qty. Reverse events are unique per movement; a duplicate is
// ignored and reported as false.
func (t *txRepo) AppendEvent(ctx context.Context, event LedgerEvent) (bool, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO import_shipment_ledger (line_id, kind, qty, movement_id, session_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
ON CONFLICT (movement_id) WHERE kind = 'reverse' DO NOTHING
RETURNING id`, event.LineID, event.Kind, event.Qty, event.MovementID, event.SessionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tag, err := t.q.Exec(ctx, `UPDATE import_shipment_lines SET imported_qty = imported_qty + $2 WHERE id = $1`, event.LineID, event.Qty)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}
	return true, nil
}

func (t *txRepo) SetLatestReceipt(ctx context.Context, lineIDs []int64, receiptID int64) error {
	_, err := t.q.Exec(ctx, `UPDATE import_shipment_lines SET latest_receipt_id = $2 WHERE id = ANY($1)`, lineIDs, receiptID)
	return err
}

func (t *txRepo) SetDone(ctx context.Context, id int64, done bool) error {
	tag, err := t.q.Exec(ctx, `UPDATE import_shipment_lines SET done = $2 WHERE id = $1`, id, done)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteLines(ctx context.Context, ids []int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM import_shipment_ledger WHERE line_id = ANY($1)`, ids); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `DELETE FROM import_shipment_lines WHERE id = ANY($1)`, ids)
	return err
}
