// Package redis caché de lectura de posiciones sobre Redis. La fuente de verdad sigue siendo el
// store del ledger: las entradas se invalidan tras cada commit y expiran por TTL.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var _ inventory.PositionCache = (*PositionCache)(nil)

const (
	keyPrefix = "stock-ledger:position:"
	genPrefix = "stock-ledger:position-gen:"
)

// setIfGeneration escribe la entrada solo si la generación de la clave no cambió desde la lectura.
var setIfGeneration = goredis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// PositionCache implementa inventory.PositionCache. Los errores de Redis se registran y se tratan
// como fallo de caché.
type PositionCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewClient crea el cliente; acepta "host:port" o "redis://host:port".
func NewClient(addr, password string, db int) *goredis.Client {
	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	return goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
}

// NewPositionCache construye la caché. ttl <= 0 usa 30s.
func NewPositionCache(client goredis.UniversalClient, ttl time.Duration, log *logger.Logger) *PositionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PositionCache{client: client, ttl: ttl, log: log}
}

type cachedPosition struct {
	ProductID      string          `json:"p"`
	VariantID      string          `json:"v,omitempty"`
	WarehouseID    string          `json:"w"`
	LocationID     string          `json:"l"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Allocated      decimal.Decimal `json:"allocated"`
	Available      decimal.Decimal `json:"available"`
	InTransit      decimal.Decimal `json:"in_transit"`
	AverageCost    decimal.Decimal `json:"avg_cost"`
	LastReceivedAt *time.Time      `json:"last_received_at,omitempty"`
	LastIssuedAt   *time.Time      `json:"last_issued_at,omitempty"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// cacheKey y genKey comparten hash tag: en Redis Cluster caen en el mismo slot.
func cacheKey(k entity.PositionKey) string {
	return keyPrefix + "{" + k.String() + "}"
}

func genKey(k entity.PositionKey) string {
	return genPrefix + "{" + k.String() + "}"
}

// Get devuelve la posición si está en caché; en un fallo, la generación vigente de la clave.
func (c *PositionCache) Get(ctx context.Context, key entity.PositionKey) (*entity.Position, uint64, bool) {
	vals, err := c.client.MGet(ctx, cacheKey(key), genKey(key)).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("position", key.String()).Msg("lectura de caché falló")
		return nil, 0, false
	}
	var gen uint64
	if s, ok := vals[1].(string); ok {
		gen, _ = strconv.ParseUint(s, 10, 64)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var cp cachedPosition
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		c.log.Warn().Err(err).Str("position", key.String()).Msg("entrada de caché corrupta")
		return nil, gen, false
	}
	return &entity.Position{
		Key:            entity.PositionKey{ProductID: cp.ProductID, VariantID: cp.VariantID, WarehouseID: cp.WarehouseID, LocationID: cp.LocationID},
		OnHand:         cp.OnHand,
		Allocated:      cp.Allocated,
		Available:      cp.Available,
		InTransit:      cp.InTransit,
		AverageCost:    cp.AverageCost,
		LastReceivedAt: cp.LastReceivedAt,
		LastIssuedAt:   cp.LastIssuedAt,
		LastMovementAt: cp.LastMovementAt,
		UpdatedAt:      cp.UpdatedAt,
	}, gen, true
}

// Set guarda la posición con TTL si la clave sigue en la generación gen.
func (c *PositionCache) Set(ctx context.Context, pos *entity.Position, gen uint64) {
	raw, err := json.Marshal(cachedPosition{
		ProductID:      pos.Key.ProductID,
		VariantID:      pos.Key.VariantID,
		WarehouseID:    pos.Key.WarehouseID,
		LocationID:     pos.Key.LocationID,
		OnHand:         pos.OnHand,
		Allocated:      pos.Allocated,
		Available:      pos.Available,
		InTransit:      pos.InTransit,
		AverageCost:    pos.AverageCost,
		LastReceivedAt: pos.LastReceivedAt,
		LastIssuedAt:   pos.LastIssuedAt,
		LastMovementAt: pos.LastMovementAt,
		UpdatedAt:      pos.UpdatedAt,
	})
	if err != nil {
		return
	}
	written, err := setIfGeneration.Run(ctx, c.client,
		[]string{cacheKey(pos.Key), genKey(pos.Key)},
		strconv.FormatUint(gen, 10), raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.log.Warn().Err(err).Str("position", pos.Key.String()).Msg("escritura de caché falló")
		return
	}
	if written == 0 {
		c.log.Debug().Str("position", pos.Key.String()).Msg("posición invalidada durante la lectura; no se guarda")
	}
}

// Invalidate elimina las posiciones indicadas y avanza su generación.
func (c *PositionCache) Invalidate(ctx context.Context, keys ...entity.PositionKey) {
	if len(keys) == 0 {
		return
	}
	_, err := c.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, k := range keys {
			p.Incr(ctx, genKey(k))
			p.Del(ctx, cacheKey(k))
		}
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Int("keys", len(keys)).Msg("invalidación de caché falló")
	}
}
