package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/gateway/fake"
	"github.com/vladislavdragonenkov/storefront/internal/gateway/stripegw"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// runtimeDependencies — хранилище и внешние адаптеры, выбранные конфигурацией.
type runtimeDependencies struct {
	store           domain.Store
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	gateway         domain.PaymentGateway
	verifier        domain.WebhookVerifier

	ping  func(ctx context.Context) error
	close func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry, m *metrics.ShopMetrics) (*runtimeDependencies, error) {
	deps, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.gateway, deps.verifier = initGateway(cfg, logger, m)
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return &runtimeDependencies{
			store:           store,
			outboxRepo:      store.Repositories().Outbox,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			ping:            func(context.Context) error { return nil },
			close:           func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		return &runtimeDependencies{
			store:           store,
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			ping:            store.DB().PingContext,
			close:           store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// initGateway подключает Stripe при наличии ключа, иначе шлюз в памяти.
func initGateway(cfg Config, logger *log.Entry, m *metrics.ShopMetrics) (domain.PaymentGateway, domain.WebhookVerifier) {
	if cfg.StripeSecretKey == "" {
		logger.Warn("stripe secret key is not set, using in-memory payment gateway")
		return fake.NewGateway(), fake.NewVerifier(cfg.StripeWebhookSecret)
	}

	gw := stripegw.New(stripegw.Config{
		SecretKey: cfg.StripeSecretKey,
		BaseURL:   cfg.StripeBaseURL,
	}, logger.WithField("component", "stripe-gateway"), m)
	return gw, stripegw.NewWebhookVerifier(cfg.StripeWebhookSecret)
}
