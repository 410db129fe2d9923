package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// AlertRepository alertas en memoria, en orden de creación.
type AlertRepository struct {
	mu     sync.RWMutex
	alerts []*entity.Alert
	byID   map[string]*entity.Alert
}

// NewAlertRepository repositorio vacío.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{byID: make(map[string]*entity.Alert)}
}

func (r *AlertRepository) Create(_ context.Context, a *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return fmt.Errorf("alerta %s ya existe", a.ID)
	}
	if a.Status.IsOpen() {
		for _, o := range r.alerts {
			if o.Status.IsOpen() && o.ProductID == a.ProductID && o.WarehouseID == a.WarehouseID && o.Type == a.Type {
				return fmt.Errorf("ya existe una alerta abierta %s para %s/%s", a.Type, a.ProductID, a.WarehouseID)
			}
		}
	}
	c := a.Clone()
	r.alerts = append(r.alerts, c)
	r.byID[c.ID] = c
	return nil
}

func (r *AlertRepository) Update(_ context.Context, a *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[a.ID]
	if !ok {
		return fmt.Errorf("%w: alerta %s", domain.ErrNotFound, a.ID)
	}
	*cur = *a.Clone()
	return nil
}

func (r *AlertRepository) GetByID(_ context.Context, id string) (*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

func (r *AlertRepository) FindOpen(_ context.Context, productID, warehouseID string, t entity.AlertType) (*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.alerts {
		if a.Status.IsOpen() && a.ProductID == productID && a.WarehouseID == warehouseID && a.Type == t {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (r *AlertRepository) List(_ context.Context, f repository.AlertFilter) ([]*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Alert, 0)
	for _, a := range r.alerts {
		if f.ProductID != "" && a.ProductID != f.ProductID ||
			f.WarehouseID != "" && a.WarehouseID != f.WarehouseID ||
			f.Type != "" && a.Type != f.Type ||
			f.Status != "" && a.Status != f.Status ||
			f.OpenOnly && !a.Status.IsOpen() {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}
