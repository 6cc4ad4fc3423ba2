// Package cancel реализует HTTP-обработчик отмены подписки.
//
// Отмена деактивирует подписку, но не удаляет запись и не возвращает
// средства. Повторная отмена не является ошибкой.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/onchainlab/subscription-ledger/internal/http/middlewarectx"
	"github.com/onchainlab/subscription-ledger/internal/http/response"
	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/sl"
	services "github.com/onchainlab/subscription-ledger/internal/services/subscription"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// Handler управляет HTTP-запросами на отмену подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	Cancel(ctx context.Context, owner address.Address, planID uint64) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отменить подписку
// @Description Деактивирует подписку без удаления записи. Повторная отмена возвращает успех.
// @Tags Subscriptions
// @Produce  json
// @Param plan_id path int true "Номер плана"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 422 {object} response.ErrorResponse "Некорректный номер плана"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /subscriptions/{plan_id}/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	planID, err := strconv.ParseUint(chi.URLParam(r, "plan_id"), 10, 64)
	if err != nil {
		log.Error("failed to parse plan id", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid plan id"))
		return
	}

	owner, ok := middlewarectx.OwnerFromContext(r.Context())
	if !ok {
		log.Error("owner not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	err = h.service.Cancel(r.Context(), owner, planID)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		log.Error("subscription not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("subscription not found"))
		return
	case errors.Is(err, services.ErrUnauthorized):
		log.Error("unauthorized access", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	case err != nil:
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not cancel subscription"))
		return
	}

	log.Info("success to cancel subscription", slog.Uint64("plan_id", planID))
	render.JSON(w, r, response.OK())
}
