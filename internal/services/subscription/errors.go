package services

import "errors"

// Ошибки бизнес-правил машины состояний подписки. Все они детерминированы:
// повтор операции без изменения состояния воспроизводит ту же ошибку.
var (
	// ErrUnauthorized — вызывающий не является владельцем записи.
	ErrUnauthorized = errors.New("unauthorized access to subscription")
	// ErrInactiveSubscription — мутация неактивной подписки.
	ErrInactiveSubscription = errors.New("subscription is not active")
	// ErrActiveSubscription — попытка закрыть активную подписку.
	ErrActiveSubscription = errors.New("subscription is still active")
	// ErrNotYetExpired — продление до окончания оплаченного периода.
	ErrNotYetExpired = errors.New("subscription has not yet expired")
	// ErrFixedParameters — изменение параметров при фиксированной политике цен.
	ErrFixedParameters = errors.New("subscription parameters are fixed by plan")
	// ErrUnknownPlan — создание по плану, отсутствующему в таблице планов.
	ErrUnknownPlan = errors.New("unknown plan id")
)
