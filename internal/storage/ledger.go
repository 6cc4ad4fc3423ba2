// Package storage определяет контракт персистентного леджера:
// атомарное исполнение операций над записями подписок и балансами.
//
// Каждая операция ядра выполняется внутри одного вызова ExecTx:
// либо фиксируется весь набор эффектов (поля записи + перевод средств),
// либо не происходит ничего наблюдаемого.
package storage

import (
	"context"
	"errors"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/models"
)

var (
	// ErrRecordNotFound — запись по адресу отсутствует.
	ErrRecordNotFound = errors.New("record not found")
	// ErrAlreadyInUse — по адресу уже существует живая запись.
	ErrAlreadyInUse = errors.New("record address already in use")
	// ErrInsufficientFunds — баланс плательщика меньше суммы перевода.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Tx описывает операции, доступные внутри атомарной транзакции леджера.
type Tx interface {
	// GetRecord возвращает запись по адресу или ErrRecordNotFound.
	GetRecord(ctx context.Context, addr address.Address) (*models.Record, error)
	// InsertRecord создаёт запись по адресу, ErrAlreadyInUse при коллизии.
	InsertRecord(ctx context.Context, addr address.Address, rec *models.Record) error
	// UpdateRecord перезаписывает существующую запись.
	UpdateRecord(ctx context.Context, addr address.Address, rec *models.Record) error
	// DeleteRecord удаляет запись и освобождает адрес.
	DeleteRecord(ctx context.Context, addr address.Address) error
	// Transfer атомарно переводит amount от from к to.
	// Перевод нулевой суммы допустим и не изменяет балансы.
	Transfer(ctx context.Context, from, to address.Address, amount uint64) error
	// Deposit зачисляет amount на баланс аккаунта.
	Deposit(ctx context.Context, account address.Address, amount uint64) error
}

// Ledger — хранилище с атомарным исполнением и read-only доступом вне транзакций.
type Ledger interface {
	// ExecTx выполняет fn атомарно: при ошибке все эффекты откатываются.
	ExecTx(ctx context.Context, fn func(tx Tx) error) error
	// GetRecord возвращает запись по адресу без открытия транзакции.
	GetRecord(ctx context.Context, addr address.Address) (*models.Record, error)
	// Balance возвращает текущий баланс аккаунта (0, если аккаунт не известен).
	Balance(ctx context.Context, account address.Address) (uint64, error)
	// ListTransfers возвращает последние переводы с участием аккаунта.
	ListTransfers(ctx context.Context, account address.Address, limit int) ([]models.Transfer, error)
}
