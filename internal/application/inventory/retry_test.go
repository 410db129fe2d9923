package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

func TestRetryOnConflict(t *testing.T) {
	conflict := fmt.Errorf("%w: clave ocupada", domain.ErrConcurrencyConflict)
	policy := RetryPolicy{MaxRetries: 3, Base: time.Millisecond}

	t.Run("reintenta hasta tener éxito", func(t *testing.T) {
		calls, retries := 0, 0
		err := retryOnConflict(context.Background(), policy, func(int, error) { retries++ }, func() error {
			calls++
			if calls < 3 {
				return conflict
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("otros errores no se reintentan", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(context.Background(), policy, nil, func() error {
			calls++
			return domain.ErrInsufficientStock
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("se rinde tras MaxRetries", func(t *testing.T) {
		calls := 0
		var attempts []int
		err := retryOnConflict(context.Background(), policy, func(a int, _ error) { attempts = append(attempts, a) }, func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.Equal(t, 4, calls)
		assert.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("contexto cancelado corta la espera", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryOnConflict(ctx, RetryPolicy{MaxRetries: 5, Base: time.Hour}, nil, func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.Equal(t, 1, calls)
	})

	t.Run("sin reintentos", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(context.Background(), RetryPolicy{}, nil, func() error {
			calls++
			return conflict
		})
		assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict))
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicy_DelayIsBounded(t *testing.T) {
	p := RetryPolicy{Base: 10 * time.Millisecond}
	for attempt := range 5 {
		for range 50 {
			d := p.delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.Less(t, d, p.Base<<attempt)
		}
	}
	assert.Zero(t, RetryPolicy{}.delay(3))
	assert.Less(t, p.delay(40), p.Base<<16)
}
