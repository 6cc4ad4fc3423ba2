// Package subscriptionledger собирает и запускает основное приложение:
// хранилище, кеш, публикацию событий, сервисы и HTTP-сервер.
package subscriptionledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/onchainlab/subscription-ledger/internal/cache"
	"github.com/onchainlab/subscription-ledger/internal/config"
	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	jwtlib "github.com/onchainlab/subscription-ledger/internal/lib/jwt"
	"github.com/onchainlab/subscription-ledger/internal/lib/rabbitmq"
	"github.com/onchainlab/subscription-ledger/internal/metrics"
	"github.com/onchainlab/subscription-ledger/internal/migrations"
	sessionservice "github.com/onchainlab/subscription-ledger/internal/services/session"
	ledgerservice "github.com/onchainlab/subscription-ledger/internal/services/subscription"
	"github.com/onchainlab/subscription-ledger/internal/storage"
	"github.com/onchainlab/subscription-ledger/internal/storage/memstore"
	"github.com/onchainlab/subscription-ledger/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и ресурсы, требующие закрытия при остановке.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	publisher *rabbitmq.Publisher
}

// New собирает приложение по конфигу. Пустая строка подключения к базе
// включает леджер в памяти, пустой адрес redis отключает кеш,
// пустой url rabbitmq отключает публикацию событий.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	app := &App{logger: logger}

	var ledger storage.Ledger
	if cfg.StorageConnectionString == "" {
		logger.Warn("storage connection string is empty, using in-memory ledger")
		ledger = memstore.New()
	} else {
		db, err := repository.New(cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.db = db
		ledger = db
	}

	var recordCache ledgerservice.Cache
	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		recordCache = cacheRedis
	}

	var events ledgerservice.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 3*time.Second)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.publisher = publisher
		events = publisher
	}

	treasury, err := address.Parse(cfg.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid treasury address: %w", op, err)
	}

	policy := ledgerservice.PricingPolicy(cfg.PricingPolicy)
	if policy != ledgerservice.PolicyFlexible && policy != ledgerservice.PolicyFixed {
		return nil, fmt.Errorf("%s: unknown pricing policy %q", op, cfg.PricingPolicy)
	}
	plans := make(map[uint64]ledgerservice.Plan, len(cfg.Plans))
	for _, p := range cfg.Plans {
		plans[p.ID] = ledgerservice.Plan{
			DurationSeconds: p.DurationSeconds,
			Amount:          p.Amount,
		}
	}

	jwtMaker := jwtlib.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	sessionService := sessionservice.NewSessionService(jwtMaker, cfg.TokenTTL, logger)
	subscriptionService := ledgerservice.NewSubscriptionService(
		ledger, recordCache, events, policy, plans, treasury, logger)

	metrics.InitMetrics()

	router := chi.NewRouter()
	RegisterRoutes(router, logger, subscriptionService, sessionService, jwtMaker)

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if a.publisher != nil {
			a.publisher.Close()
		}
		if a.db != nil {
			_ = a.db.DB.Close()
		}
		return err
	}
}
