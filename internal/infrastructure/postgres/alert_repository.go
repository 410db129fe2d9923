package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.AlertRepository = (*AlertRepo)(nil)

// AlertRepo alertas sobre PostgreSQL. El índice único parcial uq_alerts_open garantiza
// una sola alerta abierta por (producto, bodega, tipo).
type AlertRepo struct {
	q Querier
}

// NewAlertRepository construye el adaptador.
func NewAlertRepository(q Querier) *AlertRepo {
	return &AlertRepo{q: q}
}

const alertColumns = `id, product_id, warehouse_id, type, severity, status, current_quantity, threshold,
		lot_number, message, occurrences, created_at, updated_at, acknowledged_at, acknowledged_by,
		resolved_at, resolved_by`

func scanAlert(row pgx.Row) (*entity.Alert, error) {
	var (
		a                       entity.Alert
		atype, severity, status string
	)
	err := row.Scan(
		&a.ID, &a.ProductID, &a.WarehouseID, &atype, &severity, &status, &a.CurrentQuantity, &a.Threshold,
		&a.LotNumber, &a.Message, &a.Occurrences, &a.CreatedAt, &a.UpdatedAt, &a.AcknowledgedAt, &a.AcknowledgedBy,
		&a.ResolvedAt, &a.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	a.Type = entity.AlertType(atype)
	a.Severity = entity.AlertSeverity(severity)
	a.Status = entity.AlertStatus(status)
	return &a, nil
}

// Create persiste una alerta nueva.
func (r *AlertRepo) Create(ctx context.Context, a *entity.Alert) error {
	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.ProductID, a.WarehouseID, string(a.Type), string(a.Severity), string(a.Status),
		a.CurrentQuantity, a.Threshold, a.LotNumber, a.Message, a.Occurrences, a.CreatedAt, a.UpdatedAt,
		a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt, a.ResolvedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ya existe una alerta abierta %s para %s/%s", a.Type, a.ProductID, a.WarehouseID)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Update reemplaza el estado mutable de la alerta.
func (r *AlertRepo) Update(ctx context.Context, a *entity.Alert) error {
	query := `
		UPDATE alerts SET severity = $2, status = $3, current_quantity = $4, threshold = $5, lot_number = $6,
			message = $7, occurrences = $8, updated_at = $9, acknowledged_at = $10, acknowledged_by = $11,
			resolved_at = $12, resolved_by = $13
		WHERE id = $1`
	cmd, err := r.q.Exec(ctx, query,
		a.ID, string(a.Severity), string(a.Status), a.CurrentQuantity, a.Threshold, a.LotNumber,
		a.Message, a.Occurrences, a.UpdatedAt, a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt, a.ResolvedBy,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: alerta %s", domain.ErrNotFound, a.ID)
	}
	return nil
}

// GetByID obtiene una alerta; (nil, nil) si no existe.
func (r *AlertRepo) GetByID(ctx context.Context, id string) (*entity.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// FindOpen obtiene la alerta no resuelta de la clave; (nil, nil) si no hay.
func (r *AlertRepo) FindOpen(ctx context.Context, productID, warehouseID string, alertType entity.AlertType) (*entity.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE product_id = $1 AND warehouse_id = $2 AND type = $3 AND status <> 'resolved'`
	a, err := scanAlert(r.q.QueryRow(ctx, query, productID, warehouseID, string(alertType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open alert: %w", err)
	}
	return a, nil
}

// List alertas según el filtro, en orden de creación.
func (r *AlertRepo) List(ctx context.Context, filter repository.AlertFilter) ([]*entity.Alert, error) {
	w := &where{}
	w.eq("product_id", filter.ProductID)
	w.eq("warehouse_id", filter.WarehouseID)
	w.eq("type", string(filter.Type))
	w.eq("status", string(filter.Status))
	if filter.OpenOnly {
		w.raw("status <> 'resolved'")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts` + w.sql() + ` ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var out []*entity.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
