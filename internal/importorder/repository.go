package importorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
)

// Repository persists import orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextName(ctx context.Context) (string, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetStateForUpdate(ctx context.Context, id int64) (State, error)
	UpdateState(ctx context.Context, id int64, state State) error
	SetIncomingQty(ctx context.Context, lineID int64, qty decimal.Decimal) error
}

type txRepo struct {
	q db.Querier
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const orderSelect = `SELECT id, name, vendor_id, currency, order_date, expected_date, COALESCE(picking_type_id, 0), state, created_at
FROM import_orders`

const lineSelect = `SELECT id, order_id, product_id, manufacturer_code, technical_reference, quantity, incoming_qty, unit_price
FROM import_order_lines`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Name, &o.VendorID, &o.Currency, &o.Date, &o.ExpectedDate, &o.PickingTypeID, &o.State, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repository) queryLines(ctx context.Context, where string, args ...any) ([]Line, error) {
	rows, err := r.pool.Query(ctx, lineSelect+" WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ManufacturerCode, &l.TechnicalReference,
			&l.Quantity, &l.IncomingQty, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	order.Lines, err = r.queryLines(ctx, "order_id = $1", id)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListOrders returns headers newest name first. Lines are not loaded.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		conds = append(conds, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	query := orderSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY name DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// LinesByReference returns lines with the given technical reference.
func (r *Repository) LinesByReference(ctx context.Context, ref string) ([]Line, error) {
	return r.queryLines(ctx, "technical_reference = $1", ref)
}

func (t *txRepo) NextName(ctx context.Context) (string, error) {
	var seq int64
	if err := t.q.QueryRow(ctx, `SELECT nextval('import_order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("IO%05d", seq), nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO import_orders (name, vendor_id, currency, order_date, expected_date, picking_type_id, state)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7) RETURNING id`,
		o.Name, o.VendorID, o.Currency, o.Date, o.ExpectedDate, o.PickingTypeID, o.State).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO import_order_lines (order_id, product_id, manufacturer_code, technical_reference, quantity, incoming_qty, unit_price)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		l.OrderID, l.ProductID, l.ManufacturerCode, l.TechnicalReference, l.Quantity, l.IncomingQty, l.UnitPrice).Scan(&id)
	return id, err
}

func (t *txRepo) GetStateForUpdate(ctx context.Context, id int64) (State, error) {
	var state State
	err := t.q.QueryRow(ctx, `SELECT state FROM import_orders WHERE id = $1 FOR UPDATE`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return state, err
}

func (t *txRepo) UpdateState(ctx context.Context, id int64, state State) error {
	_, err := t.q.Exec(ctx, `UPDATE import_orders SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	return err
}

func (t *txRepo) SetIncomingQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE import_order_lines SET incoming_qty = $2 WHERE id = $1`, lineID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
