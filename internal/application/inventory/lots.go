package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// LotService consultas de lotes y cambios de calidad (no mueven stock).
type LotService struct {
	txRunner TxRunner
	lotRepo  repository.LotRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewLotService construye el servicio de lotes.
func NewLotService(txRunner TxRunner, lotRepo repository.LotRepository, log *logger.Logger) *LotService {
	if log == nil {
		log = logger.Nop()
	}
	return &LotService{txRunner: txRunner, lotRepo: lotRepo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// LotSummary un número de lote con sus ubicaciones y el saldo total.
type LotSummary struct {
	ProductID     string
	LotNumber     string
	ExpiryDate    *time.Time
	QualityStatus entity.QualityStatus
	Total         decimal.Decimal
	Placements    []*entity.Lot
}

// GetLot devuelve todas las ubicaciones del lote.
func (s *LotService) GetLot(ctx context.Context, productID, lotNumber string) (*LotSummary, error) {
	lots, err := s.lotRepo.List(ctx, repository.LotFilter{ProductID: productID, LotNumber: lotNumber})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotNumber)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].Key.String() < lots[j].Key.String() })
	sum := &LotSummary{
		ProductID:     productID,
		LotNumber:     lotNumber,
		ExpiryDate:    lots[0].ExpiryDate,
		QualityStatus: lots[0].QualityStatus,
		Total:         decimal.Zero,
		Placements:    lots,
	}
	for _, l := range lots {
		sum.Total = sum.Total.Add(l.CurrentQuantity)
	}
	return sum, nil
}

// ListLots lotes según filtro, en orden FEFO.
func (s *LotService) ListLots(ctx context.Context, filter repository.LotFilter) ([]*entity.Lot, error) {
	lots, err := s.lotRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	inventory.SortFEFO(lots)
	return lots, nil
}

// SetLotQuality cambia el estado de calidad del lote en todas sus ubicaciones.
func (s *LotService) SetLotQuality(ctx context.Context, productID, lotNumber string, quality entity.QualityStatus) (*LotSummary, error) {
	switch quality {
	case entity.QualityApproved, entity.QualityPending, entity.QualityQuarantine, entity.QualityRejected:
	default:
		return nil, fmt.Errorf("%w: estado de calidad %q desconocido", domain.ErrValidation, quality)
	}
	filter := repository.LotFilter{ProductID: productID, LotNumber: lotNumber}
	current, err := s.lotRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotNumber)
	}
	keys := make([]string, 0, len(current))
	for _, l := range current {
		keys = append(keys, l.Key.Position.LockKey())
	}
	err = s.txRunner.Run(ctx, keys, func(_ repository.MovementRepository, _ repository.PositionRepository, lotRepo repository.LotRepository, _ repository.SerialRepository) error {
		lots, err := lotRepo.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, l := range lots {
			l.QualityStatus = quality
			l.UpdatedAt = s.now()
			if err := lotRepo.Save(ctx, l); err != nil {
				return fmt.Errorf("save lot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("product_id", productID).Str("lot", lotNumber).Str("quality", string(quality)).Msg("calidad de lote actualizada")
	return s.GetLot(ctx, productID, lotNumber)
}
