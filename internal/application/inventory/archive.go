package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// ObjectStore destino de archivos (S3/MinIO).
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// ArchiveMovementsUseCase exporta los movimientos de un día como NDJSON a almacenamiento de objetos.
// El ledger no se modifica; el archivo es una copia para auditoría externa.
type ArchiveMovementsUseCase struct {
	movementRepo repository.MovementRepository
	store        ObjectStore
	log          *logger.Logger
}

// NewArchiveMovementsUseCase construye el caso de uso.
func NewArchiveMovementsUseCase(movementRepo repository.MovementRepository, store ObjectStore, log *logger.Logger) *ArchiveMovementsUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &ArchiveMovementsUseCase{movementRepo: movementRepo, store: store, log: log}
}

// ArchiveKey clave del objeto para un día (UTC): movements/2026/01/31.ndjson.
func ArchiveKey(day time.Time) string {
	return "movements/" + day.UTC().Format("2006/01/02") + ".ndjson"
}

// ArchiveDay escribe los movimientos creados el día indicado (UTC). Devuelve la clave y la cantidad.
// Un día sin movimientos no genera objeto.
func (uc *ArchiveMovementsUseCase) ArchiveDay(ctx context.Context, day time.Time) (string, int, error) {
	y, m, d := day.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Nanosecond)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for mv, err := range uc.movementRepo.Query(ctx, repository.MovementFilter{From: &from, To: &to}) {
		if err != nil {
			return "", 0, fmt.Errorf("query movements: %w", err)
		}
		if err := enc.Encode(dto.NewMovementResponse(mv)); err != nil {
			return "", 0, fmt.Errorf("encode movement %d: %w", mv.MovementNumber, err)
		}
		count++
	}
	key := ArchiveKey(from)
	if count == 0 {
		uc.log.Debug().Str("day", from.Format(time.DateOnly)).Msg("sin movimientos para archivar")
		return key, 0, nil
	}
	if err := uc.store.PutObject(ctx, key, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("put object %s: %w", key, err)
	}
	uc.log.Info().Str("key", key).Int("movements", count).Msg("movimientos archivados")
	return key, count, nil
}
