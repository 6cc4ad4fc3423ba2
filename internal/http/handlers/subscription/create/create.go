// Package create реализует HTTP-обработчик создания подписки.
//
// Handler принимает JSON-запрос с параметрами подписки, валидирует их,
// извлекает адрес владельца из контекста, вызывает бизнес-логику создания
// и возвращает адрес созданной записи вместе с её содержимым.
//
// В случае ошибок формируются соответствующие HTTP-ответы с описанием проблемы.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/onchainlab/subscription-ledger/internal/http/middlewarectx"
	"github.com/onchainlab/subscription-ledger/internal/http/response"
	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/sl"
	"github.com/onchainlab/subscription-ledger/internal/models"
	services "github.com/onchainlab/subscription-ledger/internal/services/subscription"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// Handler управляет HTTP-запросами на создание подписок.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики создания подписки.
type Service interface {
	Create(ctx context.Context, owner address.Address, req models.CreateRequest) (address.Address, *models.Record, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать подписку
// @Description Создаёт запись подписки по адресу (владелец, план) и списывает стартовый платёж в трезори.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.CreateRequest true "Параметры подписки"
// @Success 200 {object} map[string]any "Созданная запись и её адрес"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно средств"
// @Failure 409 {object} response.ErrorResponse "Адрес уже занят или план неизвестен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	owner, ok := middlewarectx.OwnerFromContext(r.Context())
	if !ok {
		log.Error("owner not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	addr, rec, err := h.service.Create(r.Context(), owner, req)
	switch {
	case errors.Is(err, storage.ErrAlreadyInUse):
		log.Error("address already in use", sl.Err(err))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("subscription already exists"))
		return
	case errors.Is(err, services.ErrUnknownPlan):
		log.Error("unknown plan", sl.Err(err))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("unknown plan id"))
		return
	case errors.Is(err, storage.ErrInsufficientFunds):
		log.Error("insufficient funds", sl.Err(err))
		w.WriteHeader(http.StatusPaymentRequired)
		render.JSON(w, r, response.Error("insufficient funds"))
		return
	case err != nil:
		log.Error("failed to create subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create subscription"))
		return
	}

	log.Info("success to create subscription", slog.String("address", addr.String()))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": models.NewSubscriptionView(addr, rec),
	}))
}
