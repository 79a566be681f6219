package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextReceiptNumber(ctx context.Context) (string, error)
	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
	InsertMove(ctx context.Context, move Move) (int64, error)
	GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error)
	UpdateReceiptState(ctx context.Context, id int64, state State) error
	ListMoves(ctx context.Context, receiptID int64) ([]Move, error)
	GetMoveForUpdate(ctx context.Context, id int64) (Move, error)
	UpdateMove(ctx context.Context, id int64, state State, qtyDone decimal.Decimal) error
	DeleteMove(ctx context.Context, id int64) error
	GetBalanceForUpdate(ctx context.Context, locationID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
}

type txRepo struct {
	q db.Querier
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const receiptColumns = `id, number, COALESCE(vendor_id, 0), COALESCE(picking_type_id, 0), source_location_id, dest_location_id, origin, scheduled_at, state, created_at`

const moveColumns = `id, receipt_id, product_id, purchase_line_id, shipment_line_id, demand, quantity_done, unit_cost, source_location_id, dest_location_id, state`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.Number, &rc.VendorID, &rc.PickingTypeID, &rc.SourceLocationID, &rc.DestLocationID,
		&rc.Origin, &rc.ScheduledAt, &rc.State, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	return rc, err
}

func scanMove(row pgx.Row) (Move, error) {
	var m Move
	err := row.Scan(&m.ID, &m.ReceiptID, &m.ProductID, &m.PurchaseLineID, &m.ShipmentLineID, &m.Demand, &m.QuantityDone,
		&m.UnitCost, &m.SourceLocationID, &m.DestLocationID, &m.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Move{}, ErrNotFound
	}
	return m, err
}

func listMoves(ctx context.Context, q db.Querier, receiptID int64) ([]Move, error) {
	rows, err := q.Query(ctx, `SELECT `+moveColumns+` FROM stock_moves WHERE receipt_id = $1 ORDER BY id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var moves []Move
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// GetReceipt returns the receipt with its moves.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, []Move, error) {
	rc, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id))
	if err != nil {
		return Receipt{}, nil, err
	}
	moves, err := listMoves(ctx, r.pool, id)
	if err != nil {
		return Receipt{}, nil, err
	}
	return rc, moves, nil
}

// GetMove returns a single movement.
func (r *Repository) GetMove(ctx context.Context, id int64) (Move, error) {
	return scanMove(r.pool.QueryRow(ctx, `SELECT `+moveColumns+` FROM stock_moves WHERE id = $1`, id))
}

// ReceiptsForShipmentLine lists receipts holding a move for the shipment line.
func (r *Repository) ReceiptsForShipmentLine(ctx context.Context, lineID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM receipts
WHERE id IN (SELECT receipt_id FROM stock_moves WHERE shipment_line_id = $1)
ORDER BY id`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

// ReceivedByShipmentLine sums done quantities per shipment line.
func (r *Repository) ReceivedByShipmentLine(ctx context.Context, lineIDs []int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT shipment_line_id, COALESCE(SUM(quantity_done), 0)
FROM stock_moves
WHERE state = 'done' AND shipment_line_id = ANY($1)
GROUP BY shipment_line_id`, lineIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	received := make(map[int64]decimal.Decimal, len(lineIDs))
	for rows.Next() {
		var (
			lineID int64
			qty    decimal.Decimal
		)
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		received[lineID] = qty
	}
	return received, rows.Err()
}

// GetBalance reads a stock balance without locking.
func (r *Repository) GetBalance(ctx context.Context, locationID, productID int64) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT location_id, product_id, qty, avg_cost, updated_at
FROM stock_balances WHERE location_id = $1 AND product_id = $2`, locationID, productID))
}

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.LocationID, &b.ProductID, &b.Qty, &b.AvgCost, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) NextReceiptNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('receipt_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("WH/IN/%05d", seq), nil
}

func (r *txRepo) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO receipts (number, vendor_id, picking_type_id, source_location_id, dest_location_id, origin, scheduled_at, state)
VALUES ($1, NULLIF($2::bigint, 0), NULLIF($3::bigint, 0), $4, $5, $6, $7, $8) RETURNING id`,
		rc.Number, rc.VendorID, rc.PickingTypeID, rc.SourceLocationID, rc.DestLocationID, rc.Origin, rc.ScheduledAt, rc.State).Scan(&id)
	return id, err
}

func (r *txRepo) InsertMove(ctx context.Context, m Move) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO stock_moves (receipt_id, product_id, purchase_line_id, shipment_line_id, demand, quantity_done, unit_cost, source_location_id, dest_location_id, state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		m.ReceiptID, m.ProductID, m.PurchaseLineID, m.ShipmentLineID, m.Demand, m.QuantityDone, m.UnitCost,
		m.SourceLocationID, m.DestLocationID, m.State).Scan(&id)
	return id, err
}

func (r *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error) {
	return scanReceipt(r.q.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateReceiptState(ctx context.Context, id int64, state State) error {
	_, err := r.q.Exec(ctx, `UPDATE receipts SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	return err
}

func (r *txRepo) ListMoves(ctx context.Context, receiptID int64) ([]Move, error) {
	return listMoves(ctx, r.q, receiptID)
}

func (r *txRepo) GetMoveForUpdate(ctx context.Context, id int64) (Move, error) {
	return scanMove(r.q.QueryRow(ctx, `SELECT `+moveColumns+` FROM stock_moves WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateMove(ctx context.Context, id int64, state State, qtyDone decimal.Decimal) error {
	_, err := r.q.Exec(ctx, `UPDATE stock_moves SET state = $2, quantity_done = $3, updated_at = NOW() WHERE id = $1`, id, state, qtyDone)
	return err
}

func (r *txRepo) DeleteMove(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM stock_moves WHERE id = $1`, id)
	return err
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, locationID, productID int64) (Balance, error) {
	b, err := scanBalance(r.q.QueryRow(ctx, `SELECT location_id, product_id, qty, avg_cost, updated_at
FROM stock_balances WHERE location_id = $1 AND product_id = $2 FOR UPDATE`, locationID, productID))
	if errors.Is(err, ErrBalanceNotFound) {
		return Balance{LocationID: locationID, ProductID: productID}, err
	}
	return b, err
}

func (r *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_balances (location_id, product_id, qty, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (location_id, product_id) DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = EXCLUDED.updated_at`,
		b.LocationID, b.ProductID, b.Qty, b.AvgCost, b.UpdatedAt)
	return err
}
