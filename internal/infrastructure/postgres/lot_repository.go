package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo lotes por posición sobre PostgreSQL.
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

const lotColumns = `id, product_id, variant_id, warehouse_id, location_id, lot_number, initial_quantity,
		current_quantity, expiry_date, received_date, quality_status, status, updated_at`

func scanLot(row pgx.Row) (*entity.Lot, error) {
	var (
		l       entity.Lot
		quality string
		status  string
	)
	pk := &l.Key.Position
	err := row.Scan(
		&l.ID, &pk.ProductID, &pk.VariantID, &pk.WarehouseID, &pk.LocationID, &l.Key.LotNumber,
		&l.InitialQuantity, &l.CurrentQuantity, &l.ExpiryDate, &l.ReceivedDate, &quality, &status, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.QualityStatus = entity.QualityStatus(quality)
	l.Status = entity.LotStatus(status)
	return &l, nil
}

// Get obtiene el lote en la posición; (nil, nil) si no existe.
func (r *LotRepo) Get(ctx context.Context, key entity.LotKey) (*entity.Lot, error) {
	pk := key.Position
	query := `SELECT ` + lotColumns + ` FROM lots
		WHERE product_id = $1 AND variant_id = $2 AND warehouse_id = $3 AND location_id = $4 AND lot_number = $5`
	l, err := scanLot(r.q.QueryRow(ctx, query, pk.ProductID, pk.VariantID, pk.WarehouseID, pk.LocationID, key.LotNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

// ListByPosition lotes de una posición.
func (r *LotRepo) ListByPosition(ctx context.Context, key entity.PositionKey) ([]*entity.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots
		WHERE product_id = $1 AND variant_id = $2 AND warehouse_id = $3 AND location_id = $4
		ORDER BY lot_number`
	return r.list(ctx, query, key.ProductID, key.VariantID, key.WarehouseID, key.LocationID)
}

// List lotes según el filtro.
func (r *LotRepo) List(ctx context.Context, filter repository.LotFilter) ([]*entity.Lot, error) {
	w := &where{}
	w.eq("product_id", filter.ProductID)
	w.eq("warehouse_id", filter.WarehouseID)
	w.eq("lot_number", filter.LotNumber)
	w.eq("status", string(filter.Status))
	query := `SELECT ` + lotColumns + ` FROM lots` + w.sql() + ` ORDER BY product_id, lot_number, warehouse_id, location_id`
	return r.list(ctx, query, w.args...)
}

func (r *LotRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Lot, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	var out []*entity.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Save inserta o actualiza el lote.
func (r *LotRepo) Save(ctx context.Context, lot *entity.Lot) error {
	pk := lot.Key.Position
	query := `
		INSERT INTO lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id, variant_id, warehouse_id, location_id, lot_number) DO UPDATE SET
			initial_quantity = EXCLUDED.initial_quantity, current_quantity = EXCLUDED.current_quantity,
			expiry_date = EXCLUDED.expiry_date, quality_status = EXCLUDED.quality_status,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		lot.ID, pk.ProductID, pk.VariantID, pk.WarehouseID, pk.LocationID, lot.Key.LotNumber,
		lot.InitialQuantity, lot.CurrentQuantity, lot.ExpiryDate, lot.ReceivedDate,
		string(lot.QualityStatus), string(lot.Status), lot.UpdatedAt,
	)
	if err != nil {
		return mapTxError("save lot", err)
	}
	return nil
}
