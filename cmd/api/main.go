package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/stock-ledger/internal/application/alerts"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/stock-ledger/internal/infrastructure/redis"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/scheduler"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// backend repositorios y runner del driver configurado.
type backend struct {
	txRunner  inventory.TxRunner
	products  repository.ProductRepository
	locations repository.WarehouseRepository
	positions repository.PositionRepository
	lots      repository.LotRepository
	serials   repository.SerialRepository
	movements repository.MovementRepository
	alerts    repository.AlertRepository
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.App.StoreDriver).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	be := openBackend(ctx, cfg, log)
	defer be.close()

	var cache inventory.PositionCache
	if cfg.Redis.Addr != "" {
		client := infraredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			// La caché es opcional: sin Redis las lecturas van directo al store.
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis no disponible, caché de posiciones deshabilitada")
		} else {
			cache = infraredis.NewPositionCache(client, cfg.Redis.TTL, log.Component("position-cache"))
		}
	}

	engine := alerts.NewEngine(be.alerts, be.products, be.positions, be.lots, alerts.Config{
		ExpiryThresholdDays: cfg.Alerts.ExpiryThresholdDays,
		NoMovementWindow:    cfg.Alerts.NoMovementWindow,
		AutoResolve:         cfg.Alerts.AutoResolve,
		EventBuffer:         cfg.Alerts.EventBuffer,
	}, log.Component("alerts"))
	go engine.Run(ctx)

	opts := []inventory.Option{
		inventory.WithNotifier(engine),
		inventory.WithRetryPolicy(inventory.RetryPolicy{MaxRetries: cfg.Ledger.MaxRetries, Base: cfg.Ledger.RetryBase}),
		inventory.WithLogger(log.Component("movements")),
	}
	if cache != nil {
		opts = append(opts, inventory.WithPositionCache(cache))
	}
	registerMovementUC := inventory.NewRegisterMovementUseCase(be.txRunner, be.products, be.locations, opts...)
	ledger := inventory.NewLedgerService(be.positions, be.movements, cache, log.Component("ledger"))
	lotSvc := inventory.NewLotService(be.txRunner, be.lots, log.Component("lots"))
	serialRegistry := inventory.NewSerialRegistry(be.txRunner, be.serials, log.Component("serials"))
	replenishmentUC := inventory.NewReplenishmentUseCase(be.products, be.positions)

	jobs, err := scheduler.New(log.Component("scheduler"))
	if err != nil {
		log.Fatal().Err(err).Msg("crear scheduler")
	}
	if err := jobs.Every(ctx, "alert-scan", cfg.Alerts.ScanInterval, engine.Scan); err != nil {
		log.Fatal().Err(err).Msg("agendar escaneo de alertas")
	}
	if cfg.Archive.Endpoint != "" {
		objects, err := storage.NewMinioStore(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.UseSSL)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente de archivo")
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.Archive.Bucket).Msg("bucket de archivo")
		}
		archiveUC := inventory.NewArchiveMovementsUseCase(be.movements, objects, log.Component("archive"))
		archiveYesterday := func(ctx context.Context) error {
			_, _, err := archiveUC.ArchiveDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
			return err
		}
		if err := jobs.Cron(ctx, "movement-archive", cfg.Archive.Schedule, archiveYesterday); err != nil {
			log.Fatal().Err(err).Msg("agendar archivo de movimientos")
		}
	}
	jobs.Start()
	// Primer escaneo al arrancar: recupera alertas de eventos perdidos en un reinicio.
	if err := jobs.RunNow("alert-scan"); err != nil {
		log.Warn().Err(err).Msg("escaneo inicial de alertas")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if cfg.HTTP.DocsPath != "" {
		if _, err := os.Stat(cfg.HTTP.DocsPath); err == nil {
			app.Use(swagger.New(swagger.Config{
				BasePath: "/",
				FilePath: cfg.HTTP.DocsPath,
				Path:     "docs",
				Title:    "Stock Ledger API",
			}))
		} else {
			log.Warn().Str("path", cfg.HTTP.DocsPath).Msg("swagger.json no encontrado, /docs deshabilitado")
		}
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"service":        cfg.App.Name,
			"store":          cfg.App.StoreDriver,
			"dropped_events": engine.Dropped(),
		})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		RegisterMovement: registerMovementUC,
		Ledger:           ledger,
		Lots:             lotSvc,
		Serials:          serialRegistry,
		Replenishment:    replenishmentUC,
		Alerts:           engine,
		Products:         usecase.NewProductUseCase(be.products),
		Warehouses:       usecase.NewWarehouseUseCase(be.locations),
		Log:              log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if err := jobs.Stop(); err != nil {
		log.Error().Err(err).Msg("apagado del scheduler")
	}
	stop()

	log.Info().Msg("aplicación detenida")
}

// openBackend abre el store según STORE_DRIVER. Un error de arranque es fatal.
func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) backend {
	switch cfg.App.StoreDriver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DB, postgres.PoolOptions{
			AppName:     cfg.App.Name,
			LockTimeout: cfg.Ledger.LockTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		version, err := postgres.Migrate(ctx, pool.Config().ConnConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("migraciones")
		}
		log.Info().Uint("schema_version", version).Msg("esquema al día")
		return backend{
			txRunner:  postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout),
			products:  postgres.NewProductRepository(pool),
			locations: postgres.NewWarehouseRepository(pool),
			positions: postgres.NewPositionRepository(pool),
			lots:      postgres.NewLotRepository(pool),
			serials:   postgres.NewSerialRepository(pool),
			movements: postgres.NewMovementRepository(pool),
			alerts:    postgres.NewAlertRepository(pool),
			close:     pool.Close,
		}
	default:
		catalog := memory.NewCatalog()
		if cfg.App.CatalogFile != "" {
			var err error
			catalog, err = memory.LoadCatalogFile(cfg.App.CatalogFile)
			if err != nil {
				log.Fatal().Err(err).Str("file", cfg.App.CatalogFile).Msg("cargar catálogo")
			}
		} else {
			log.Warn().Msg("CATALOG_FILE vacío: catálogo en memoria sin productos")
		}
		store := memory.NewStore()
		return backend{
			txRunner:  memory.NewTxRunner(store, cfg.Ledger.LockTimeout),
			products:  catalog.Products(),
			locations: catalog.Warehouses(),
			positions: store.Positions(),
			lots:      store.Lots(),
			serials:   store.Serials(),
			movements: store.Movements(),
			alerts:    memory.NewAlertRepository(),
			close:     func() {},
		}
	}
}
