package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.PositionRepository = (*PositionRepo)(nil)

// PositionRepo implementación del ledger de posiciones sobre PostgreSQL (usable con pool o tx).
type PositionRepo struct {
	q Querier
}

// NewPositionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewPositionRepository(q Querier) *PositionRepo {
	return &PositionRepo{q: q}
}

const positionColumns = `product_id, variant_id, warehouse_id, location_id, on_hand, allocated, available, in_transit,
		average_cost, last_received_at, last_issued_at, last_movement_at, updated_at`

func scanPosition(row pgx.Row) (*entity.Position, error) {
	var p entity.Position
	err := row.Scan(
		&p.Key.ProductID, &p.Key.VariantID, &p.Key.WarehouseID, &p.Key.LocationID,
		&p.OnHand, &p.Allocated, &p.Available, &p.InTransit, &p.AverageCost,
		&p.LastReceivedAt, &p.LastIssuedAt, &p.LastMovementAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get obtiene la posición; si no existe devuelve una posición vacía.
func (r *PositionRepo) Get(ctx context.Context, key entity.PositionKey) (*entity.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM stock_positions
		WHERE product_id = $1 AND variant_id = $2 AND warehouse_id = $3 AND location_id = $4`
	p, err := scanPosition(r.q.QueryRow(ctx, query, key.ProductID, key.VariantID, key.WarehouseID, key.LocationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.NewPosition(key), nil
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// Save inserta o actualiza la posición.
func (r *PositionRepo) Save(ctx context.Context, pos *entity.Position) error {
	query := `
		INSERT INTO stock_positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id, variant_id, warehouse_id, location_id) DO UPDATE SET
			on_hand = EXCLUDED.on_hand, allocated = EXCLUDED.allocated, available = EXCLUDED.available,
			in_transit = EXCLUDED.in_transit, average_cost = EXCLUDED.average_cost,
			last_received_at = EXCLUDED.last_received_at, last_issued_at = EXCLUDED.last_issued_at,
			last_movement_at = EXCLUDED.last_movement_at, updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		pos.Key.ProductID, pos.Key.VariantID, pos.Key.WarehouseID, pos.Key.LocationID,
		pos.OnHand, pos.Allocated, pos.Available, pos.InTransit, pos.AverageCost,
		pos.LastReceivedAt, pos.LastIssuedAt, pos.LastMovementAt, pos.UpdatedAt,
	)
	if err != nil {
		return mapTxError("save position", err)
	}
	return nil
}

// List lista posiciones según el filtro, ordenadas por clave.
func (r *PositionRepo) List(ctx context.Context, filter repository.PositionFilter) ([]*entity.Position, error) {
	w := &where{}
	w.eq("product_id", filter.ProductID)
	w.eq("variant_id", filter.VariantID)
	w.eq("warehouse_id", filter.WarehouseID)
	w.eq("location_id", filter.LocationID)
	if filter.NonZeroOnly {
		w.raw("(on_hand <> 0 OR in_transit <> 0)")
	}
	query := `SELECT ` + positionColumns + ` FROM stock_positions` + w.sql() +
		` ORDER BY product_id, variant_id, warehouse_id, location_id`
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// where acumula condiciones con placeholders numerados; los valores vacíos no filtran.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column string, value string) {
	if value == "" {
		return
	}
	w.add(column+" = $%d", value)
}

func (w *where) add(format string, value any) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
