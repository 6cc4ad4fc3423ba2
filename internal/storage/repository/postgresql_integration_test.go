package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/migrations"
	"github.com/onchainlab/subscription-ledger/internal/models"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// setupTestDatabase создает тестовую БД с контейнером PostgreSQL
// и применяет к ней миграции схемы леджера.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	// Пробуем подключиться несколько раз с ретраями
	var store *Storage
	for attempt := 0; attempt < 10; attempt++ {
		store, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(store.DB, migrationsPath), "failed to apply migrations")

	cleanup := func() {
		if store != nil && store.DB != nil {
			_ = store.DB.Close()
		}
		_ = pgContainer.Terminate(ctx)
	}
	return store, cleanup
}

func testAddr(b byte) address.Address {
	var a address.Address
	a[0] = b
	return a
}

func makeRecord(owner address.Address) *models.Record {
	return &models.Record{
		Owner:     owner,
		PlanID:    1,
		StartTime: 1700000000,
		Duration:  3600,
		Amount:    100,
		Active:    true,
		History:   []int64{1700000000},
	}
}

func TestStorage_InsertAndGetRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := testAddr(1)
	recAddr := address.Derive(owner, 1)

	err := store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	})
	require.NoError(t, err)

	// Чтение вне транзакции.
	got, err := store.GetRecord(ctx, recAddr)
	require.NoError(t, err)
	assert.Equal(t, makeRecord(owner), got)

	// Чтение внутри транзакции (с блокировкой строки).
	err = store.ExecTx(ctx, func(tx storage.Tx) error {
		rec, err := tx.GetRecord(ctx, recAddr)
		if err != nil {
			return err
		}
		assert.Equal(t, makeRecord(owner), rec)
		return nil
	})
	require.NoError(t, err)

	_, err = store.GetRecord(ctx, address.Derive(owner, 2))
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_InsertRecord_Duplicate(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := testAddr(1)
	recAddr := address.Derive(owner, 1)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	}))

	// Нарушение уникальности должно отображаться в ErrAlreadyInUse.
	err := store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyInUse)
}

func TestStorage_UpdateRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := testAddr(1)
	recAddr := address.Derive(owner, 1)

	err := store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateRecord(ctx, recAddr, makeRecord(owner))
	})
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	}))

	updated := makeRecord(owner)
	updated.Active = false
	updated.History = []int64{1700000000, 1700003600}
	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateRecord(ctx, recAddr, updated)
	}))

	got, err := store.GetRecord(ctx, recAddr)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestStorage_DeleteRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := testAddr(1)
	recAddr := address.Derive(owner, 1)

	err := store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteRecord(ctx, recAddr)
	})
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	}))
	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteRecord(ctx, recAddr)
	}))

	_, err = store.GetRecord(ctx, recAddr)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	// Адрес освобождён, повторная вставка проходит.
	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecord(ctx, recAddr, makeRecord(owner))
	}))
}

func TestStorage_TransferAndBalances(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	payer, treasury := testAddr(1), testAddr(2)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Deposit(ctx, payer, 500)
	}))
	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Transfer(ctx, payer, treasury, 200)
	}))

	payerBalance, err := store.Balance(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), payerBalance)

	treasuryBalance, err := store.Balance(ctx, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), treasuryBalance)

	transfers, err := store.ListTransfers(ctx, payer, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, payer, transfers[0].From)
	assert.Equal(t, treasury, transfers[0].To)
	assert.Equal(t, uint64(200), transfers[0].Amount)
	assert.NotEmpty(t, transfers[0].ID)
}

func TestStorage_TransferInsufficientFunds(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	payer, treasury := testAddr(1), testAddr(2)

	tests := []struct {
		name    string
		deposit uint64
		amount  uint64
	}{
		{
			// Аккаунт без строки баланса считается нулевым.
			name:    "no balance row",
			deposit: 0,
			amount:  1,
		},
		{
			name:    "balance one short",
			deposit: 99,
			amount:  100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.deposit > 0 {
				require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
					return tx.Deposit(ctx, payer, tt.deposit)
				}))
			}

			err := store.ExecTx(ctx, func(tx storage.Tx) error {
				return tx.Transfer(ctx, payer, treasury, tt.amount)
			})
			assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

			treasuryBalance, err := store.Balance(ctx, treasury)
			require.NoError(t, err)
			assert.Zero(t, treasuryBalance)
		})
	}
}

func TestStorage_TransferZeroAmountIsNoop(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	payer, treasury := testAddr(1), testAddr(2)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Transfer(ctx, payer, treasury, 0)
	}))

	transfers, err := store.ListTransfers(ctx, payer, 10)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestStorage_ExecTx_RollsBackOnError(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := testAddr(1)
	recAddr := address.Derive(owner, 1)
	errBoom := errors.New("boom")

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Deposit(ctx, owner, 500)
	}))

	err := store.ExecTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertRecord(ctx, recAddr, makeRecord(owner)); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, owner, testAddr(2), 100); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	// Ни одна из мутаций не должна быть зафиксирована.
	_, err = store.GetRecord(ctx, recAddr)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	balance, err := store.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance)

	transfers, err := store.ListTransfers(ctx, owner, 10)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestStorage_ListTransfersOrderAndLimit(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	payer, treasury, stranger := testAddr(1), testAddr(2), testAddr(3)

	require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Deposit(ctx, payer, 1000)
	}))
	for _, amount := range []uint64{10, 20, 30} {
		require.NoError(t, store.ExecTx(ctx, func(tx storage.Tx) error {
			return tx.Transfer(ctx, payer, treasury, amount)
		}))
		// created_at упорядочивает выдачу.
		time.Sleep(10 * time.Millisecond)
	}

	transfers, err := store.ListTransfers(ctx, payer, 2)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, uint64(30), transfers[0].Amount)
	assert.Equal(t, uint64(20), transfers[1].Amount)

	transfers, err = store.ListTransfers(ctx, stranger, 10)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestStorage_BalanceMissingAccountIsZero(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()

	balance, err := store.Balance(context.Background(), testAddr(9))
	require.NoError(t, err)
	assert.Zero(t, balance)
}
