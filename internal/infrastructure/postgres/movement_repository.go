package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// MovementRepo ledger append-only sobre PostgreSQL. Líneas, lotes y seriales van en JSONB.
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

const movementColumns = `movement_number, id, type, product_id, variant_id, warehouse_id, location_id,
		to_warehouse_id, to_location_id, quantity, quantity_before, quantity_after, unit_cost,
		lines, lots, serials, reference_kind, reference, reversal_of, actor, notes, created_at`

type positionKeyJSON struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	WarehouseID string `json:"warehouse_id"`
	LocationID  string `json:"location_id"`
}

type lineJSON struct {
	Role           entity.LineRole `json:"role"`
	Position       positionKeyJSON `json:"position"`
	OnHandDelta    decimal.Decimal `json:"on_hand_delta"`
	AllocatedDelta decimal.Decimal `json:"allocated_delta"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
}

type lotEntryJSON struct {
	Position   positionKeyJSON `json:"position"`
	LotNumber  string          `json:"lot_number"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

type serialEntryJSON struct {
	SerialNumber string              `json:"serial_number"`
	From         entity.SerialStatus `json:"from,omitempty"`
	To           entity.SerialStatus `json:"to"`
	Position     positionKeyJSON     `json:"position"`
}

func encodeMovementDetail(m *entity.Movement) (lines, lots, serials []byte, err error) {
	ls := make([]lineJSON, 0, len(m.Lines))
	for _, l := range m.Lines {
		ls = append(ls, lineJSON{
			Role: l.Role, Position: positionKeyJSON(l.Position),
			OnHandDelta: l.OnHandDelta, AllocatedDelta: l.AllocatedDelta,
			QuantityBefore: l.QuantityBefore, QuantityAfter: l.QuantityAfter,
		})
	}
	lt := make([]lotEntryJSON, 0, len(m.Lots))
	for _, e := range m.Lots {
		lt = append(lt, lotEntryJSON{Position: positionKeyJSON(e.Lot.Position), LotNumber: e.Lot.LotNumber, Quantity: e.Quantity, ExpiryDate: e.ExpiryDate})
	}
	ss := make([]serialEntryJSON, 0, len(m.Serials))
	for _, e := range m.Serials {
		ss = append(ss, serialEntryJSON{SerialNumber: e.SerialNumber, From: e.From, To: e.To, Position: positionKeyJSON(e.Position)})
	}
	if lines, err = json.Marshal(ls); err != nil {
		return nil, nil, nil, err
	}
	if lots, err = json.Marshal(lt); err != nil {
		return nil, nil, nil, err
	}
	if serials, err = json.Marshal(ss); err != nil {
		return nil, nil, nil, err
	}
	return lines, lots, serials, nil
}

func decodeMovementDetail(m *entity.Movement, lines, lots, serials []byte) error {
	var ls []lineJSON
	if err := json.Unmarshal(lines, &ls); err != nil {
		return err
	}
	for _, l := range ls {
		m.Lines = append(m.Lines, entity.MovementLine{
			Role: l.Role, Position: entity.PositionKey(l.Position),
			OnHandDelta: l.OnHandDelta, AllocatedDelta: l.AllocatedDelta,
			QuantityBefore: l.QuantityBefore, QuantityAfter: l.QuantityAfter,
		})
	}
	if len(lots) > 0 {
		var lt []lotEntryJSON
		if err := json.Unmarshal(lots, &lt); err != nil {
			return err
		}
		for _, e := range lt {
			m.Lots = append(m.Lots, entity.LotEntry{
				Lot:      entity.LotKey{Position: entity.PositionKey(e.Position), LotNumber: e.LotNumber},
				Quantity: e.Quantity, ExpiryDate: e.ExpiryDate,
			})
		}
	}
	if len(serials) > 0 {
		var ss []serialEntryJSON
		if err := json.Unmarshal(serials, &ss); err != nil {
			return err
		}
		for _, e := range ss {
			m.Serials = append(m.Serials, entity.SerialEntry{SerialNumber: e.SerialNumber, From: e.From, To: e.To, Position: entity.PositionKey(e.Position)})
		}
	}
	return nil
}

func scanMovement(row pgx.Row) (*entity.Movement, error) {
	var (
		m                    entity.Movement
		mtype, refKind       string
		lines, lots, serials []byte
		refPayload           []byte
		reversalOf           *int64
	)
	err := row.Scan(
		&m.MovementNumber, &m.ID, &mtype, &m.ProductID, &m.VariantID, &m.WarehouseID, &m.LocationID,
		&m.ToWarehouseID, &m.ToLocationID, &m.Quantity, &m.QuantityBefore, &m.QuantityAfter, &m.UnitCost,
		&lines, &lots, &serials, &refKind, &refPayload, &reversalOf, &m.Actor, &m.Notes, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = entity.MovementType(mtype)
	if reversalOf != nil {
		m.ReversalOf = *reversalOf
	}
	if err := decodeMovementDetail(&m, lines, lots, serials); err != nil {
		return nil, fmt.Errorf("decode movement %d: %w", m.MovementNumber, err)
	}
	ref, err := entity.DecodeReference(entity.ReferenceKind(refKind), refPayload)
	if err != nil {
		return nil, err
	}
	m.Reference = ref
	return &m, nil
}

// Append persiste el movimiento y asigna MovementNumber desde la secuencia.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	lines, lots, serials, err := encodeMovementDetail(m)
	if err != nil {
		return fmt.Errorf("encode movement: %w", err)
	}
	refKind, refPayload, err := entity.EncodeReference(m.Reference)
	if err != nil {
		return err
	}
	var reversalOf *int64
	if m.ReversalOf != 0 {
		reversalOf = &m.ReversalOf
	}
	query := `
		INSERT INTO movements (id, type, product_id, variant_id, warehouse_id, location_id,
			to_warehouse_id, to_location_id, quantity, quantity_before, quantity_after, unit_cost,
			lines, lots, serials, reference_kind, reference, reversal_of, actor, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING movement_number`
	err = r.q.QueryRow(ctx, query,
		m.ID, string(m.Type), m.ProductID, m.VariantID, m.WarehouseID, m.LocationID,
		m.ToWarehouseID, m.ToLocationID, m.Quantity, m.QuantityBefore, m.QuantityAfter, m.UnitCost,
		lines, lots, serials, string(refKind), refPayload, reversalOf, m.Actor, m.Notes, m.CreatedAt,
	).Scan(&m.MovementNumber)
	if err != nil {
		if reversalOf != nil && isUniqueViolation(err) {
			return fmt.Errorf("append movement: %w", domain.ErrAlreadyReversed)
		}
		return mapTxError("append movement", err)
	}
	return nil
}

// GetByNumber obtiene un movimiento; (nil, nil) si no existe.
func (r *MovementRepo) GetByNumber(ctx context.Context, number int64) (*entity.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE movement_number = $1`
	return r.getOne(ctx, query, number)
}

// FindReversal obtiene el reverso de un movimiento; (nil, nil) si no fue reversado.
func (r *MovementRepo) FindReversal(ctx context.Context, number int64) (*entity.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE reversal_of = $1`
	return r.getOne(ctx, query, number)
}

func (r *MovementRepo) getOne(ctx context.Context, query string, arg any) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// Query recorre los movimientos en orden de número. La consulta se ejecuta al iniciar la iteración
// y las filas se leen del cursor a medida que el consumidor avanza; cortar la iteración cierra el cursor.
func (r *MovementRepo) Query(ctx context.Context, filter repository.MovementFilter) iter.Seq2[*entity.Movement, error] {
	w := &where{}
	w.eq("product_id", filter.ProductID)
	if filter.WarehouseID != "" {
		w.add("(warehouse_id = $%[1]d OR to_warehouse_id = $%[1]d)", filter.WarehouseID)
	}
	w.eq("type", string(filter.Type))
	if filter.From != nil {
		w.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("created_at <= $%d", *filter.To)
	}
	if filter.After > 0 {
		w.add("movement_number > $%d", filter.After)
	}
	query := `SELECT ` + movementColumns + ` FROM movements` + w.sql() + ` ORDER BY movement_number`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	return func(yield func(*entity.Movement, error) bool) {
		rows, err := r.q.Query(ctx, query, w.args...)
		if err != nil {
			yield(nil, fmt.Errorf("query movements: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMovement(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan movement: %w", err))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate movements: %w", err))
		}
	}
}
