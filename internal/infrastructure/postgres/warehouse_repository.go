package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.WarehouseRepository = (*WarehouseRepo)(nil)

// WarehouseRepo lectura de bodegas y ubicaciones sobre PostgreSQL.
type WarehouseRepo struct {
	q Querier
}

// NewWarehouseRepository construye el adaptador de lectura de bodegas.
func NewWarehouseRepository(q Querier) *WarehouseRepo {
	return &WarehouseRepo{q: q}
}

// GetByID obtiene una bodega por ID.
func (r *WarehouseRepo) GetByID(ctx context.Context, id string) (*entity.Warehouse, error) {
	query := `
		SELECT id, code, name, status, created_at, updated_at
		FROM warehouses WHERE id = $1`
	var (
		w      entity.Warehouse
		status string
	)
	err := r.q.QueryRow(ctx, query, id).Scan(&w.ID, &w.Code, &w.Name, &status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get warehouse: %w", err)
	}
	w.Status = entity.LifecycleStatus(status)
	return &w, nil
}

// GetLocation obtiene una ubicación de la bodega.
func (r *WarehouseRepo) GetLocation(ctx context.Context, warehouseID, locationID string) (*entity.Location, error) {
	query := `
		SELECT id, warehouse_id, code, name, status
		FROM locations WHERE warehouse_id = $1 AND id = $2`
	var (
		l      entity.Location
		status string
	)
	err := r.q.QueryRow(ctx, query, warehouseID, locationID).Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Name, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	l.Status = entity.LifecycleStatus(status)
	return &l, nil
}

// List lista las bodegas ordenadas por código.
func (r *WarehouseRepo) List(ctx context.Context) ([]*entity.Warehouse, error) {
	rows, err := r.q.Query(ctx, `SELECT id, code, name, status, created_at, updated_at FROM warehouses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()
	var out []*entity.Warehouse
	for rows.Next() {
		var (
			w      entity.Warehouse
			status string
		)
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		w.Status = entity.LifecycleStatus(status)
		out = append(out, &w)
	}
	return out, rows.Err()
}
