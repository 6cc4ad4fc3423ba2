// Package models содержит доменные структуры леджера подписок,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import (
	"time"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
)

// Record представляет собой единственную персистентную сущность леджера:
// запись подписки, уникально адресуемую парой (владелец, план).
// Все временные поля хранятся в секундах Unix.
type Record struct {
	Owner     address.Address `json:"owner"`      // Адрес владельца, которому разрешены мутации
	PlanID    uint64          `json:"plan_id"`    // Идентификатор плана, часть адреса записи
	StartTime int64           `json:"start_time"` // Начало текущего расчётного периода
	Duration  uint64          `json:"duration"`   // Длительность периода в секундах
	Amount    uint64          `json:"amount"`     // Цена создания/продления в минимальных единицах валюты
	Active    bool            `json:"active"`     // Флаг жизненного цикла
	History   []int64         `json:"history"`    // Журнал меток создания/продления, не более 10
}

// Transfer представляет квитанцию о движении средств внутри леджера.
type Transfer struct {
	ID        string          `json:"id"`
	From      address.Address `json:"from"`
	To        address.Address `json:"to"`
	Amount    uint64          `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// SubscriptionView — представление записи подписки для JSON-ответа,
// дополненное её адресом в леджере.
type SubscriptionView struct {
	Address   string  `json:"address"`
	Owner     string  `json:"owner"`
	PlanID    uint64  `json:"plan_id"`
	StartTime int64   `json:"start_time"`
	Duration  uint64  `json:"duration"`
	Amount    uint64  `json:"amount"`
	Active    bool    `json:"active"`
	History   []int64 `json:"history"`
}

// NewSubscriptionView собирает SubscriptionView из записи и её адреса.
func NewSubscriptionView(addr address.Address, rec *Record) SubscriptionView {
	return SubscriptionView{
		Address:   addr.String(),
		Owner:     rec.Owner.String(),
		PlanID:    rec.PlanID,
		StartTime: rec.StartTime,
		Duration:  rec.Duration,
		Amount:    rec.Amount,
		Active:    rec.Active,
		History:   rec.History,
	}
}
