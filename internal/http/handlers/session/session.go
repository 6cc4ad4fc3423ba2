// Package session реализует HTTP-обработчик входа по подписи ed25519.
//
// Клиент подписывает сообщение с текущим временем своим ключом и передаёт
// публичный ключ, подпись и метку времени. В ответ выдаётся JWT-токен,
// привязанный к адресу, производному от публичного ключа.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/onchainlab/subscription-ledger/internal/http/response"
	"github.com/onchainlab/subscription-ledger/internal/lib/sl"
	"github.com/onchainlab/subscription-ledger/internal/models"
	services "github.com/onchainlab/subscription-ledger/internal/services/session"
)

// Handler управляет HTTP-запросами на открытие сессии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики аутентификации.
type Service interface {
	Authenticate(ctx context.Context, req models.SessionRequest) (*models.SessionResponse, error)
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
// @Summary Открыть сессию
// @Description Проверяет подпись ed25519 над сообщением с меткой времени и выдаёт JWT-токен.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body models.SessionRequest true "Публичный ключ, подпись и метка времени"
// @Success 200 {object} map[string]any "Токен и адрес"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Подпись неверна или запрос устарел"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/session [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	session, err := h.service.Authenticate(r.Context(), req)
	switch {
	case errors.Is(err, services.ErrRequestExpired):
		log.Error("request expired", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("request timestamp is out of allowed window"))
		return
	case errors.Is(err, services.ErrInvalidSignature):
		log.Error("invalid signature", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	case err != nil:
		log.Error("failed to authenticate", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not authenticate"))
		return
	}

	log.Info("success to open session", slog.String("address", session.Address))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"session": session,
	}))
}
