// Package memstore реализует леджер в памяти процесса.
//
// Используется в тестах и в локальном режиме без PostgreSQL. Записи хранятся
// в закодированном бинарном виде, как и в персистентном леджере, поэтому
// кодек записи задействован на обоих бэкендах. ExecTx даёт ту же семантику
// "всё или ничего": эффекты транзакции становятся видимыми только после
// успешного завершения fn.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/models"
	"github.com/onchainlab/subscription-ledger/internal/record"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// Store — потокобезопасный леджер в памяти, реализует storage.Ledger.
type Store struct {
	mu        sync.Mutex
	records   map[address.Address][]byte
	balances  map[address.Address]uint64
	transfers []models.Transfer
}

// New создаёт пустой леджер в памяти.
func New() *Store {
	return &Store{
		records:  make(map[address.Address][]byte),
		balances: make(map[address.Address]uint64),
	}
}

// ExecTx выполняет fn над копией состояния и публикует её только при успехе.
func (s *Store) ExecTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{
		records:   make(map[address.Address][]byte, len(s.records)),
		balances:  make(map[address.Address]uint64, len(s.balances)),
		transfers: make([]models.Transfer, len(s.transfers)),
	}
	for k, v := range s.records {
		t.records[k] = v
	}
	for k, v := range s.balances {
		t.balances[k] = v
	}
	copy(t.transfers, s.transfers)

	if err := fn(t); err != nil {
		return err
	}

	s.records = t.records
	s.balances = t.balances
	s.transfers = t.transfers
	_ = ctx
	return nil
}

// GetRecord возвращает запись по адресу без открытия транзакции.
func (s *Store) GetRecord(_ context.Context, addr address.Address) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[addr]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record.Unmarshal(data)
}

// Balance возвращает баланс аккаунта; неизвестный аккаунт считается нулевым.
func (s *Store) Balance(_ context.Context, account address.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

// ListTransfers возвращает последние переводы с участием аккаунта.
func (s *Store) ListTransfers(_ context.Context, account address.Address, limit int) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Transfer
	for i := len(s.transfers) - 1; i >= 0 && len(result) < limit; i-- {
		tr := s.transfers[i]
		if tr.From == account || tr.To == account {
			result = append(result, tr)
		}
	}
	return result, nil
}

// memTx — транзакционное представление состояния леджера.
type memTx struct {
	records   map[address.Address][]byte
	balances  map[address.Address]uint64
	transfers []models.Transfer
}

func (t *memTx) GetRecord(_ context.Context, addr address.Address) (*models.Record, error) {
	data, ok := t.records[addr]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record.Unmarshal(data)
}

func (t *memTx) InsertRecord(_ context.Context, addr address.Address, rec *models.Record) error {
	if _, ok := t.records[addr]; ok {
		return storage.ErrAlreadyInUse
	}
	data, err := record.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memstore.InsertRecord: %w", err)
	}
	t.records[addr] = data
	return nil
}

func (t *memTx) UpdateRecord(_ context.Context, addr address.Address, rec *models.Record) error {
	if _, ok := t.records[addr]; !ok {
		return storage.ErrRecordNotFound
	}
	data, err := record.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memstore.UpdateRecord: %w", err)
	}
	t.records[addr] = data
	return nil
}

func (t *memTx) DeleteRecord(_ context.Context, addr address.Address) error {
	if _, ok := t.records[addr]; !ok {
		return storage.ErrRecordNotFound
	}
	delete(t.records, addr)
	return nil
}

func (t *memTx) Transfer(_ context.Context, from, to address.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if t.balances[from] < amount {
		return storage.ErrInsufficientFunds
	}
	if err := checkDepositBound(t.balances[to], amount); err != nil {
		return fmt.Errorf("memstore.Transfer: %w", err)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	t.transfers = append(t.transfers, models.Transfer{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (t *memTx) Deposit(_ context.Context, account address.Address, amount uint64) error {
	if err := checkDepositBound(t.balances[account], amount); err != nil {
		return fmt.Errorf("memstore.Deposit: %w", err)
	}
	t.balances[account] += amount
	return nil
}

// checkDepositBound отклоняет зачисление, переполняющее BIGINT-баланс
// персистентного леджера.
func checkDepositBound(balance, amount uint64) error {
	if amount > math.MaxInt64 || balance > math.MaxInt64-amount {
		return fmt.Errorf("balance out of range: %d + %d", balance, amount)
	}
	return nil
}
