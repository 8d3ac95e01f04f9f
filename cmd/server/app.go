package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/adapter/catalog"
	"github.com/simaogato/lnmomo-backend/internal/adapter/events"
	"github.com/simaogato/lnmomo-backend/internal/adapter/lease"
	"github.com/simaogato/lnmomo-backend/internal/adapter/provider"
	"github.com/simaogato/lnmomo-backend/internal/adapter/provider/ejara"
	"github.com/simaogato/lnmomo-backend/internal/adapter/provider/simulated"
	"github.com/simaogato/lnmomo-backend/internal/adapter/repository/memory"
	"github.com/simaogato/lnmomo-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/lnmomo-backend/internal/config"
	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/logging"
	"github.com/simaogato/lnmomo-backend/internal/usecase/issuance"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
	"github.com/simaogato/lnmomo-backend/internal/usecase/sweep"
)

// app holds every long-lived component of one process
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db    *postgres.DB
	repo  domain.TransactionRepository
	redis *redis.Client

	bus       *events.Bus
	relay     *events.RedisRelay
	catalog   *catalog.Catalog
	simulated *simulated.Source
	gateway   *provider.Router

	engine    *reconcile.Engine
	reconcile *reconcile.Service
	issuance  *issuance.Service
	sweep     *sweep.Service
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp wires the store, the gateway, the event channel and the usecases
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// 1. Transaction store
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using the in-memory transaction store; data is lost on exit")
		a.repo = memory.NewTransactionRepository()
	default:
		db, err := postgres.NewDB(cfg.Database.URL, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		a.db = db
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.repo = postgres.NewTransactionRepository(db)
	}

	// 2. Event channel, shared across processes when Redis is configured
	a.bus = events.NewBus(origin(), logger)
	var locker domain.Locker = lease.NewMemoryLocker()
	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lease.NewRedisLocker(a.redis, "lnmomo:lease:", logger)
		a.relay = events.NewRedisRelay(a.redis, cfg.Redis.Channel, a.bus, logger)
	}

	// 3. Mobile network catalog
	networks, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.catalog = networks

	// 4. Provider gateway: live client plus simulated fallback
	a.simulated = simulated.NewSource(simulated.Config{
		Rate:              decimal.NewFromFloat(cfg.Simulation.Rate),
		MinExpiry:         cfg.Simulation.MinExpiry,
		MaxExpiry:         cfg.Simulation.MaxExpiry,
		RampUp:            cfg.Simulation.RampUp,
		PayoutSuccessRate: cfg.Simulation.PayoutSuccessRate,
	}, logger.With("gateway", "simulated"))

	// live must stay a nil interface when unconfigured, not a nil *ejara.Client
	var live domain.ProviderGateway
	if cfg.Provider.Configured() && !cfg.Provider.SimulateOnly {
		live = ejara.NewClient(ejara.Config{
			BaseURL:       cfg.Provider.BaseURL,
			ClientKey:     cfg.Provider.ClientKey,
			ClientSecret:  cfg.Provider.ClientSecret,
			Email:         cfg.Provider.Email,
			Password:      cfg.Provider.Password,
			Timeout:       cfg.Provider.Timeout,
			MaxRetries:    cfg.Provider.MaxRetries,
			TokenTTL:      cfg.Provider.TokenTTL,
			Currency:      cfg.Invoice.Currency,
			CountryCode:   cfg.Provider.CountryCode,
			DialCode:      cfg.Provider.DialCode,
			PaymentMode:   cfg.Provider.PaymentMode,
			FeatureCode:   cfg.Provider.FeatureCode,
			PayerName:     cfg.Provider.PayerName,
			PayerEmail:    cfg.Provider.PayerEmail,
			Description:   cfg.Invoice.Description,
			InvoiceExpiry: cfg.Invoice.Expiry,
			FallbackRate:  decimal.NewFromFloat(cfg.Provider.FallbackRate),
		}, logger.With("gateway", "ejara"))
	} else {
		logger.Warn("live provider not configured, every invoice is simulated")
	}
	a.gateway = provider.NewRouter(live, a.simulated, cfg.Provider.SimulateOnly, logger)

	// 5. Usecases
	a.engine = reconcile.NewEngine(a.repo, a.gateway, logger,
		reconcile.WithPublisher(a.bus),
		reconcile.WithLocker(locker, cfg.Redis.LeaseTTL),
	)
	a.reconcile = reconcile.NewService(a.repo, a.engine)

	var maxAmount decimal.Decimal
	if cfg.Invoice.MaxAmount > 0 {
		maxAmount = decimal.NewFromInt(cfg.Invoice.MaxAmount)
	}
	a.issuance = issuance.NewService(a.repo, a.gateway, a.catalog, a.bus, issuance.Settings{
		Currency:    cfg.Invoice.Currency,
		Description: cfg.Invoice.Description,
		DialCode:    cfg.Provider.DialCode,
		MaxAmount:   maxAmount,
	}, logger)
	a.sweep = sweep.NewService(a.repo, a.engine, cfg.Sweep.Concurrency, cfg.Sweep.ItemTimeout, logger)

	return a, nil
}

// Close releases the database and Redis connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}

// origin identifies this process on the shared event channel
func origin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lnmomo"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
