// Package subscriptionledger предоставляет маршруты для основного приложения.
package subscriptionledger

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/onchainlab/subscription-ledger/internal/http/handlers/balance/deposit"
	balanceget "github.com/onchainlab/subscription-ledger/internal/http/handlers/balance/get"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/session"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/cancel"
	subclose "github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/close"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/create"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/health"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/read"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/renew"
	"github.com/onchainlab/subscription-ledger/internal/http/handlers/subscription/update"
	"github.com/onchainlab/subscription-ledger/internal/http/middlewarectx"
	sessionservice "github.com/onchainlab/subscription-ledger/internal/services/session"
	ledgerservice "github.com/onchainlab/subscription-ledger/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	subscriptionService *ledgerservice.SubscriptionService,
	sessionService *sessionservice.SessionService,
	tokenParser middlewarectx.TokenParser) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware,
	)

	// Открытая конечная точка входа
	r.Post("/auth/session", session.New(logger, sessionService).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenParser, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/subscriptions", create.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/{plan_id}", read.New(logger, subscriptionService).ServeHTTP)
			r.Put("/subscriptions/{plan_id}", update.New(logger, subscriptionService).ServeHTTP)
			r.Delete("/subscriptions/{plan_id}", subclose.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions/{plan_id}/renew", renew.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions/{plan_id}/cancel", cancel.New(logger, subscriptionService).ServeHTTP)
			r.Post("/balance/deposit", deposit.New(logger, subscriptionService).ServeHTTP)
			r.Get("/balance", balanceget.New(logger, subscriptionService).ServeHTTP)
		})
	})

	r.Get("/health", health.New().ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
