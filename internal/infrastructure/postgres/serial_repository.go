package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.SerialRepository = (*SerialRepo)(nil)

// SerialRepo registro de seriales; el historial se guarda como JSONB.
type SerialRepo struct {
	q Querier
}

// NewSerialRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSerialRepository(q Querier) *SerialRepo {
	return &SerialRepo{q: q}
}

const serialColumns = `product_id, serial_number, variant_id, status, warehouse_id, location_id,
		warranty_start, warranty_end, history, created_at, updated_at`

type serialEventJSON struct {
	MovementNumber int64                   `json:"movement_number"`
	From           entity.SerialStatus     `json:"from"`
	To             entity.SerialStatus     `json:"to"`
	WarehouseID    string                  `json:"warehouse_id,omitempty"`
	LocationID     string                  `json:"location_id,omitempty"`
	At             time.Time               `json:"at"`
	Cause          entity.SerialEventCause `json:"cause,omitempty"`
}

func scanSerial(row pgx.Row) (*entity.SerialUnit, error) {
	var (
		u       entity.SerialUnit
		status  string
		history []byte
	)
	err := row.Scan(
		&u.ProductID, &u.SerialNumber, &u.VariantID, &status, &u.WarehouseID, &u.LocationID,
		&u.WarrantyStart, &u.WarrantyEnd, &history, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Status = entity.SerialStatus(status)
	if len(history) > 0 {
		var events []serialEventJSON
		if err := json.Unmarshal(history, &events); err != nil {
			return nil, fmt.Errorf("decode serial history: %w", err)
		}
		u.History = make([]entity.SerialEvent, 0, len(events))
		for _, e := range events {
			u.History = append(u.History, entity.SerialEvent(e))
		}
	}
	return &u, nil
}

// Get obtiene la unidad; (nil, nil) si nunca se registró.
func (r *SerialRepo) Get(ctx context.Context, productID, serialNumber string) (*entity.SerialUnit, error) {
	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE product_id = $1 AND serial_number = $2`
	u, err := scanSerial(r.q.QueryRow(ctx, query, productID, serialNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get serial: %w", err)
	}
	return u, nil
}

// Save inserta o actualiza la unidad junto con su historial completo.
func (r *SerialRepo) Save(ctx context.Context, unit *entity.SerialUnit) error {
	events := make([]serialEventJSON, 0, len(unit.History))
	for _, e := range unit.History {
		events = append(events, serialEventJSON(e))
	}
	history, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode serial history: %w", err)
	}
	query := `
		INSERT INTO serial_units (` + serialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (product_id, serial_number) DO UPDATE SET
			variant_id = EXCLUDED.variant_id, status = EXCLUDED.status,
			warehouse_id = EXCLUDED.warehouse_id, location_id = EXCLUDED.location_id,
			warranty_start = EXCLUDED.warranty_start, warranty_end = EXCLUDED.warranty_end,
			history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`
	_, err = r.q.Exec(ctx, query,
		unit.ProductID, unit.SerialNumber, unit.VariantID, string(unit.Status), unit.WarehouseID, unit.LocationID,
		unit.WarrantyStart, unit.WarrantyEnd, history, unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		return mapTxError("save serial", err)
	}
	return nil
}

// List unidades según el filtro.
func (r *SerialRepo) List(ctx context.Context, filter repository.SerialFilter) ([]*entity.SerialUnit, error) {
	w := &where{}
	w.eq("product_id", filter.ProductID)
	w.eq("warehouse_id", filter.WarehouseID)
	w.eq("location_id", filter.LocationID)
	w.eq("status", string(filter.Status))
	query := `SELECT ` + serialColumns + ` FROM serial_units` + w.sql() + ` ORDER BY product_id, serial_number`
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list serials: %w", err)
	}
	defer rows.Close()
	var out []*entity.SerialUnit
	for rows.Next() {
		u, err := scanSerial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan serial: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
