package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// RetryPolicy reintentos ante domain.ErrConcurrencyConflict: backoff exponencial con jitter completo.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

// DefaultRetryPolicy 3 reintentos desde 20ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: 20 * time.Millisecond}
}

// maxBackoffShift acota el exponente para que la espera no crezca sin límite.
const maxBackoffShift = 16

// delay devuelve un valor aleatorio en [0, base*2^attempt).
func (p RetryPolicy) delay(attempt int) time.Duration {
	return backoff.FullJitter(backoff.Exponential(p.Base, min(attempt, maxBackoffShift)))
}

// retryOnConflict ejecuta fn y la reintenta solo si falla por contención. Cualquier otro error
// se devuelve de inmediato. onRetry se invoca antes de cada espera.
func retryOnConflict(ctx context.Context, p RetryPolicy, onRetry func(attempt int, err error), fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= p.MaxRetries {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		}
		if err := backoff.SleepWithContext(ctx, p.delay(attempt)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		}
	}
}
