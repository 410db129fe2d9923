// Package alerts evalúa condiciones operativas (stock bajo, sobrestock, vencimiento, sin movimiento)
// sobre lecturas del ledger y mantiene el ciclo de vida de las alertas.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// SystemActor actor registrado en resoluciones automáticas.
const SystemActor = "system"

// Config parámetros de evaluación.
type Config struct {
	ExpiryThresholdDays int
	NoMovementWindow    time.Duration
	AutoResolve         bool
	EventBuffer         int
}

// DefaultConfig 90 días de umbral de vencimiento, 60 días sin movimiento, auto-resolución activa.
func DefaultConfig() Config {
	return Config{ExpiryThresholdDays: 90, NoMovementWindow: 60 * 24 * time.Hour, AutoResolve: true, EventBuffer: 256}
}

// Engine motor de alertas. Solo lee posiciones y lotes confirmados; nunca toma locks del escritor.
// Las evaluaciones y transiciones se serializan con mu para mantener una alerta abierta por clave.
type Engine struct {
	alertRepo    repository.AlertRepository
	productRepo  repository.ProductRepository
	positionRepo repository.PositionRepository
	lotRepo      repository.LotRepository
	cfg          Config
	log          *logger.Logger
	now          func() time.Time

	mu      sync.Mutex
	events  chan entity.CommitEvent
	dropped atomic.Int64
}

// NewEngine construye el motor.
func NewEngine(
	alertRepo repository.AlertRepository,
	productRepo repository.ProductRepository,
	positionRepo repository.PositionRepository,
	lotRepo repository.LotRepository,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		alertRepo:    alertRepo,
		productRepo:  productRepo,
		positionRepo: positionRepo,
		lotRepo:      lotRepo,
		cfg:          cfg,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		events:       make(chan entity.CommitEvent, cfg.EventBuffer),
	}
}

// SetClock reemplaza el reloj (tests).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Notify encola un evento de commit sin bloquear. Si la cola está llena el evento se descarta:
// el escaneo periódico cubre el par afectado.
func (e *Engine) Notify(ev entity.CommitEvent) {
	select {
	case e.events <- ev:
	default:
		n := e.dropped.Add(1)
		e.log.Warn().Int64("movement_number", ev.MovementNumber).Int64("dropped_total", n).Msg("cola de eventos de alertas llena, evento descartado")
	}
}

// Dropped eventos descartados desde el arranque.
func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// Run consume eventos de commit hasta que ctx termine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			if err := e.ReconcilePairs(ctx, ev.Pairs); err != nil {
				e.log.Error().Err(err).Int64("movement_number", ev.MovementNumber).Msg("evaluación de alertas por evento falló")
			}
		}
	}
}

// Scan evalúa todos los pares producto/bodega con posiciones o con alertas abiertas.
// Un par que falla no detiene el ciclo; los errores se devuelven unidos.
func (e *Engine) Scan(ctx context.Context) error {
	start := time.Now()
	positions, err := e.positionRepo.List(ctx, repository.PositionFilter{})
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	open, err := e.alertRepo.List(ctx, repository.AlertFilter{OpenOnly: true})
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	seen := make(map[entity.ProductWarehouse]struct{})
	var pairs []entity.ProductWarehouse
	add := func(pw entity.ProductWarehouse) {
		if _, ok := seen[pw]; !ok {
			seen[pw] = struct{}{}
			pairs = append(pairs, pw)
		}
	}
	for _, p := range positions {
		add(entity.ProductWarehouse{ProductID: p.Key.ProductID, WarehouseID: p.Key.WarehouseID})
	}
	for _, a := range open {
		add(entity.ProductWarehouse{ProductID: a.ProductID, WarehouseID: a.WarehouseID})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ProductID != pairs[j].ProductID {
			return pairs[i].ProductID < pairs[j].ProductID
		}
		return pairs[i].WarehouseID < pairs[j].WarehouseID
	})
	err = e.ReconcilePairs(ctx, pairs)
	e.log.Info().Int("pairs", len(pairs)).Dur("elapsed", time.Since(start)).Err(err).Msg("escaneo de alertas completado")
	return err
}

// ReconcilePairs evalúa las condiciones de cada par y abre, actualiza o resuelve alertas.
func (e *Engine) ReconcilePairs(ctx context.Context, pairs []entity.ProductWarehouse) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, pw := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.evaluate(ctx, pw); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", pw.ProductID, pw.WarehouseID, err))
		}
	}
	return errors.Join(errs...)
}

// condition una condición detectada en la evaluación.
type condition struct {
	severity  entity.AlertSeverity
	quantity  decimal.Decimal
	threshold decimal.NullDecimal
	lotNumber string
	message   string
}

var alertTypes = []entity.AlertType{
	entity.AlertLowStock, entity.AlertOverstock, entity.AlertExpiryWarning, entity.AlertNoMovement,
}

func (e *Engine) evaluate(ctx context.Context, pw entity.ProductWarehouse) error {
	now := e.now()
	conds, err := e.conditions(ctx, pw, now)
	if err != nil {
		return err
	}
	for _, t := range alertTypes {
		c, ok := conds[t]
		if ok {
			if err := e.raise(ctx, pw, t, c, now); err != nil {
				return err
			}
			continue
		}
		if e.cfg.AutoResolve {
			if err := e.autoResolve(ctx, pw, t, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// conditions calcula las condiciones vigentes agregando variantes y ubicaciones de la bodega.
func (e *Engine) conditions(ctx context.Context, pw entity.ProductWarehouse, now time.Time) (map[entity.AlertType]condition, error) {
	out := make(map[entity.AlertType]condition)
	product, err := e.productRepo.GetByID(ctx, pw.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive() {
		return out, nil
	}
	positions, err := e.positionRepo.List(ctx, repository.PositionFilter{ProductID: pw.ProductID, WarehouseID: pw.WarehouseID})
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	onHand := decimal.Zero
	var lastMovement *time.Time
	for _, p := range positions {
		onHand = onHand.Add(p.OnHand)
		if p.LastMovementAt != nil && (lastMovement == nil || p.LastMovementAt.After(*lastMovement)) {
			lastMovement = p.LastMovementAt
		}
	}

	if product.ReorderPoint.Valid && onHand.LessThanOrEqual(product.ReorderPoint.Decimal) {
		sev := entity.SeverityMedium
		switch {
		case onHand.IsZero():
			sev = entity.SeverityCritical
		case product.MinStockLevel.Valid && onHand.LessThanOrEqual(product.MinStockLevel.Decimal):
			sev = entity.SeverityHigh
		}
		out[entity.AlertLowStock] = condition{
			severity:  sev,
			quantity:  onHand,
			threshold: product.ReorderPoint,
			message:   fmt.Sprintf("stock %s en o bajo el punto de reorden %s", onHand, product.ReorderPoint.Decimal),
		}
	}
	if product.MaxStockLevel.Valid && onHand.GreaterThan(product.MaxStockLevel.Decimal) {
		out[entity.AlertOverstock] = condition{
			severity:  entity.SeverityLow,
			quantity:  onHand,
			threshold: product.MaxStockLevel,
			message:   fmt.Sprintf("stock %s supera el máximo %s", onHand, product.MaxStockLevel.Decimal),
		}
	}
	if product.IsLotTracked {
		lots, err := e.lotRepo.List(ctx, repository.LotFilter{ProductID: pw.ProductID, WarehouseID: pw.WarehouseID, Status: entity.LotActive})
		if err != nil {
			return nil, fmt.Errorf("list lots: %w", err)
		}
		var soonest *entity.Lot
		for _, l := range lots {
			if l.ExpiryDate == nil || !l.CurrentQuantity.IsPositive() {
				continue
			}
			if soonest == nil || l.ExpiryDate.Before(*soonest.ExpiryDate) {
				soonest = l
			}
		}
		if soonest != nil {
			days := inventory.DaysUntil(*soonest.ExpiryDate, now)
			if days <= e.cfg.ExpiryThresholdDays {
				msg := fmt.Sprintf("lote %s vence en %d días", soonest.Key.LotNumber, days)
				if days < 0 {
					msg = fmt.Sprintf("lote %s vencido hace %d días", soonest.Key.LotNumber, -days)
				}
				out[entity.AlertExpiryWarning] = condition{
					severity:  inventory.ExpirySeverity(days),
					quantity:  soonest.CurrentQuantity,
					threshold: decimal.NewNullDecimal(decimal.NewFromInt(int64(e.cfg.ExpiryThresholdDays))),
					lotNumber: soonest.Key.LotNumber,
					message:   msg,
				}
			}
		}
	}
	if e.cfg.NoMovementWindow > 0 && onHand.IsPositive() && lastMovement != nil && now.Sub(*lastMovement) > e.cfg.NoMovementWindow {
		out[entity.AlertNoMovement] = condition{
			severity: entity.SeverityLow,
			quantity: onHand,
			message:  fmt.Sprintf("sin movimientos desde %s", lastMovement.Format(time.DateOnly)),
		}
	}
	return out, nil
}

// raise abre la alerta o actualiza la abierta. Una alerta reconocida sigue reconocida.
func (e *Engine) raise(ctx context.Context, pw entity.ProductWarehouse, t entity.AlertType, c condition, now time.Time) error {
	open, err := e.alertRepo.FindOpen(ctx, pw.ProductID, pw.WarehouseID, t)
	if err != nil {
		return fmt.Errorf("find open alert: %w", err)
	}
	if open != nil {
		open.Severity = c.severity
		open.CurrentQuantity = c.quantity
		open.Threshold = c.threshold
		open.LotNumber = c.lotNumber
		open.Message = c.message
		open.Occurrences++
		open.UpdatedAt = now
		if err := e.alertRepo.Update(ctx, open); err != nil {
			return fmt.Errorf("update alert: %w", err)
		}
		return nil
	}
	a := &entity.Alert{
		ID:              uuid.New().String(),
		ProductID:       pw.ProductID,
		WarehouseID:     pw.WarehouseID,
		Type:            t,
		Severity:        c.severity,
		Status:          entity.AlertActive,
		CurrentQuantity: c.quantity,
		Threshold:       c.threshold,
		LotNumber:       c.lotNumber,
		Message:         c.message,
		Occurrences:     1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.alertRepo.Create(ctx, a); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	e.log.Info().Str("alert_id", a.ID).Str("type", string(t)).Str("severity", string(c.severity)).
		Str("product_id", pw.ProductID).Str("warehouse_id", pw.WarehouseID).Msg("alerta abierta")
	return nil
}

func (e *Engine) autoResolve(ctx context.Context, pw entity.ProductWarehouse, t entity.AlertType, now time.Time) error {
	open, err := e.alertRepo.FindOpen(ctx, pw.ProductID, pw.WarehouseID, t)
	if err != nil {
		return fmt.Errorf("find open alert: %w", err)
	}
	if open == nil {
		return nil
	}
	resolve(open, SystemActor, now)
	if err := e.alertRepo.Update(ctx, open); err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	e.log.Info().Str("alert_id", open.ID).Str("type", string(t)).Msg("alerta resuelta automáticamente")
	return nil
}

func resolve(a *entity.Alert, by string, now time.Time) {
	a.Status = entity.AlertResolved
	a.ResolvedAt = &now
	a.ResolvedBy = by
	a.UpdatedAt = now
}

// ListAlerts alertas según filtro, más recientes primero.
func (e *Engine) ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]*entity.Alert, error) {
	list, err := e.alertRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// AcknowledgeAlert marca la alerta como reconocida. Reconocer dos veces no cambia nada;
// una alerta resuelta no puede reconocerse.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id, by string) (*entity.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case entity.AlertAcknowledged:
		return a, nil
	case entity.AlertResolved:
		return nil, fmt.Errorf("%w: alerta %s resuelta", domain.ErrInvalidAlertTransition, id)
	}
	now := e.now()
	a.Status = entity.AlertAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = by
	a.UpdatedAt = now
	if err := e.alertRepo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return a, nil
}

// ResolveAlert cierra la alerta manualmente. Si la condición persiste, la próxima evaluación abre otra.
func (e *Engine) ResolveAlert(ctx context.Context, id, by string) (*entity.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == entity.AlertResolved {
		return nil, fmt.Errorf("%w: alerta %s ya resuelta", domain.ErrInvalidAlertTransition, id)
	}
	resolve(a, by, e.now())
	if err := e.alertRepo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return a, nil
}

func (e *Engine) get(ctx context.Context, id string) (*entity.Alert, error) {
	a, err := e.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: alerta %s", domain.ErrNotFound, id)
	}
	return a, nil
}
