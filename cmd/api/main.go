package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/ledger-api/internal/application/billing"
	"github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/infrastructure/cache"
	"github.com/jhoicas/ledger-api/internal/infrastructure/lock"
	"github.com/jhoicas/ledger-api/internal/infrastructure/memory"
	"github.com/jhoicas/ledger-api/internal/infrastructure/postgres"
	"github.com/jhoicas/ledger-api/internal/infrastructure/scheduler"
	httpRouter "github.com/jhoicas/ledger-api/internal/interfaces/http"
	"github.com/jhoicas/ledger-api/pkg/config"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

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
		Str("storage", cfg.Storage.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()

	var txRunner ports.TxRunner
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("aplicar esquema")
		}
		txRunner = postgres.NewTxRunner(pool)
	default:
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		txRunner = memory.NewStore()
	}

	// Redis solo si algún backend lo usa.
	var rdb *redis.Client
	if cfg.Lock.Backend == "redis" || cfg.Idempotency.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("conexión a Redis")
		}
		defer rdb.Close()
	}

	var locker ports.Locker
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedisLocker(rdb, cfg.Lock.Timeout, cfg.Lock.TTL, "ledger:lock:", log)
	} else {
		locker = lock.NewKeyedLocker(cfg.Lock.Timeout)
	}

	var idem ports.IdempotencyCache
	if cfg.Idempotency.Backend == "redis" {
		idem = cache.NewRedisCache(rdb, "ledger:idempotency:")
	} else {
		idem = cache.NewMemoryCache(time.Minute)
	}

	stockLedger := inventory.NewStockLedger(txRunner, locker, log, cfg.Ledger.MergeTolerance)
	itemUC := inventory.NewItemUseCase(txRunner, locker, log)
	customerUC := billing.NewCustomerUseCase(txRunner, log)
	invoiceLedger := billing.NewInvoiceLedger(txRunner, locker, stockLedger, log, cfg.Billing.PaymentTermsDays)
	payments := billing.NewPaymentProcessor(txRunner, locker, idem, cfg.Idempotency.TTL, log)
	balances := billing.NewCustomerBalanceAggregator(txRunner)

	sweep := scheduler.NewOverdueSweep(invoiceLedger, cfg.Billing.OverdueSweep, log)
	sweep.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
		ErrorHandler: httpRouter.ErrorHandler,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Ledger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Items:     itemUC,
		Stock:     stockLedger,
		Customers: customerUC,
		Invoices:  invoiceLedger,
		Payments:  payments,
		Balances:  balances,
		Auth: httpRouter.AuthConfig{
			Enabled: cfg.JWT.AuthEnabled,
			Secret:  cfg.JWT.Secret,
			Issuer:  cfg.JWT.Issuer,
		},
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
	if err := sweep.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("detener barrido de vencidas")
	}
	// La caché en memoria tiene su propia goroutine de limpieza.
	if closer, ok := idem.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("cerrar caché de idempotencia")
		}
	}

	log.Info().Msg("aplicación detenida")
}
