package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextPONumber(ctx context.Context) (string, error)
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
}

type txRepo struct {
	q db.Querier
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// GetPO loads an order header and its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, vendor_id, COALESCE(picking_type_id, 0), status, currency,
expected_date, origin, note, created_at FROM purchase_orders WHERE id = $1`, id).
		Scan(&po.ID, &po.Number, &po.VendorID, &po.PickingTypeID, &po.Status, &po.Currency,
			&po.ExpectedDate, &po.Origin, &po.Note, &po.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, product_id, qty, price, import_order_line_id, note
FROM purchase_order_lines WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &line.Qty, &line.Price, &line.ImportOrderLineID, &line.Note); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

func (t *txRepo) NextPONumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.q.QueryRow(ctx, `SELECT nextval('purchase_order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("PO%05d", seq), nil
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO purchase_orders (number, vendor_id, picking_type_id, status, currency, expected_date, origin, note)
VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $8) RETURNING id`,
		po.Number, po.VendorID, po.PickingTypeID, po.Status, po.Currency, po.ExpectedDate, po.Origin, po.Note).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := t.q.Exec(ctx, `INSERT INTO purchase_order_lines (po_id, product_id, qty, price, import_order_line_id, note)
VALUES ($1, $2, $3, $4, $5, $6)`, line.POID, line.ProductID, line.Qty, line.Price, line.ImportOrderLineID, line.Note)
	return err
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
