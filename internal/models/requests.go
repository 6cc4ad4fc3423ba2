package models

// CreateRequest используется для приёма данных создания подписки из JSON-запроса.
// Поля duration_seconds и amount читаются только при политике гибких цен;
// при фиксированной политике оба значения берутся из таблицы планов.
type CreateRequest struct {
	PlanID          uint64 `json:"plan_id"`                                  // Идентификатор плана
	DurationSeconds uint64 `json:"duration_seconds" validate:"omitempty"`    // Длительность периода в секундах
	Amount          uint64 `json:"amount" validate:"omitempty"`              // Цена в минимальных единицах валюты
}

// UpdateRequest используется для приёма новых параметров подписки.
type UpdateRequest struct {
	DurationSeconds uint64 `json:"duration_seconds" validate:"omitempty"` // Новая длительность периода
	Amount          uint64 `json:"amount" validate:"omitempty"`           // Новая цена
}

// SessionRequest — запрос на выпуск сессионного токена.
// Подпись проверяется над сообщением "Sign in to Subscription Ledger: <timestamp>".
type SessionRequest struct {
	PublicKey string `json:"public_key" validate:"required,len=64,hexadecimal"` // Публичный ключ ed25519 в hex
	Signature string `json:"signature" validate:"required,len=128,hexadecimal"` // Подпись ed25519 в hex
	Timestamp int64  `json:"timestamp" validate:"required"`                     // Unix-время формирования подписи
}

// SessionResponse — ответ с выпущенным токеном сессии.
type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// DepositRequest — запрос на пополнение баланса владельца.
type DepositRequest struct {
	Amount uint64 `json:"amount" validate:"required,gt=0"` // Сумма пополнения
}
