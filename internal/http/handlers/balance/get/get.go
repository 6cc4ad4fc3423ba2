// Package get реализует HTTP-обработчик просмотра баланса и последних переводов.
package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/onchainlab/subscription-ledger/internal/http/middlewarectx"
	"github.com/onchainlab/subscription-ledger/internal/http/response"
	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/sl"
	"github.com/onchainlab/subscription-ledger/internal/models"
)

// Handler управляет HTTP-запросами на просмотр баланса.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики просмотра баланса.
type Service interface {
	Balance(ctx context.Context, owner address.Address) (uint64, []models.Transfer, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить баланс
// @Description Возвращает баланс текущего пользователя и его последние переводы.
// @Tags Balance
// @Produce  json
// @Success 200 {object} map[string]any "Баланс и переводы"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /balance [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.balance.get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	owner, ok := middlewarectx.OwnerFromContext(r.Context())
	if !ok {
		log.Error("owner not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	balance, transfers, err := h.service.Balance(r.Context(), owner)
	if err != nil {
		log.Error("failed to get balance", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get balance"))
		return
	}

	log.Info("success to get balance", slog.Uint64("balance", balance))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"balance":   balance,
		"transfers": transfers,
	}))
}
