// Package repository реализует персистентный леджер на основе PostgreSQL.
//
// Записи подписок хранятся в бинарном формате кодека record, балансы
// и квитанции переводов — в отдельных таблицах. Каждая операция ядра
// исполняется в одной serializable-транзакции: мутация записи и движение
// средств фиксируются вместе или не фиксируются вовсе.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/models"
	"github.com/onchainlab/subscription-ledger/internal/record"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// uniqueViolation — код ошибки PostgreSQL для нарушения уникальности.
const uniqueViolation = "23505"

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует интерфейс storage.Ledger.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "repository.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// ExecTx выполняет fn внутри одной serializable-транзакции.
func (s *Storage) ExecTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "repository.ExecTx"

	sqlTx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := fn(&ledgerTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%s: rollback failed: %v: %w", op, rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRecord возвращает запись по адресу без открытия транзакции.
func (s *Storage) GetRecord(ctx context.Context, addr address.Address) (*models.Record, error) {
	const op = "repository.GetRecord"

	var data []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT data FROM records WHERE address = $1`, addr[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// Balance возвращает баланс аккаунта; отсутствующий аккаунт считается нулевым.
func (s *Storage) Balance(ctx context.Context, account address.Address) (uint64, error) {
	const op = "repository.Balance"

	var amount uint64
	err := s.DB.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account = $1`, account[:]).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return amount, nil
}

// ListTransfers возвращает последние переводы с участием аккаунта.
func (s *Storage) ListTransfers(ctx context.Context, account address.Address, limit int) ([]models.Transfer, error) {
	const op = "repository.ListTransfers"

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, from_account, to_account, amount, created_at
		 FROM transfers
		 WHERE from_account = $1 OR to_account = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, account[:], limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.Transfer
	for rows.Next() {
		var item models.Transfer
		var from, to []byte
		if err := rows.Scan(&item.ID, &from, &to, &item.Amount, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		copy(item.From[:], from)
		copy(item.To[:], to)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ledgerTx реализует storage.Tx поверх *sql.Tx.
type ledgerTx struct {
	tx *sql.Tx
}

// GetRecord возвращает запись по адресу с блокировкой строки до конца транзакции.
func (t *ledgerTx) GetRecord(ctx context.Context, addr address.Address) (*models.Record, error) {
	const op = "repository.tx.GetRecord"

	var data []byte
	err := t.tx.QueryRowContext(ctx,
		`SELECT data FROM records WHERE address = $1 FOR UPDATE`, addr[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// InsertRecord создаёт запись по адресу, ErrAlreadyInUse при коллизии.
func (t *ledgerTx) InsertRecord(ctx context.Context, addr address.Address, rec *models.Record) error {
	const op = "repository.tx.InsertRecord"

	data, err := record.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO records (address, owner, plan_id, data) VALUES ($1, $2, $3, $4)`,
		addr[:], rec.Owner[:], int64(rec.PlanID), data)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrAlreadyInUse
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateRecord перезаписывает существующую запись.
func (t *ledgerTx) UpdateRecord(ctx context.Context, addr address.Address, rec *models.Record) error {
	const op = "repository.tx.UpdateRecord"

	data, err := record.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE records SET data = $2 WHERE address = $1`, addr[:], data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// DeleteRecord удаляет запись и освобождает адрес.
func (t *ledgerTx) DeleteRecord(ctx context.Context, addr address.Address) error {
	const op = "repository.tx.DeleteRecord"

	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM records WHERE address = $1`, addr[:])
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// Transfer переводит amount от from к to и записывает квитанцию.
// Недостаток средств (включая отсутствие баланса) возвращает ErrInsufficientFunds.
func (t *ledgerTx) Transfer(ctx context.Context, from, to address.Address, amount uint64) error {
	const op = "repository.tx.Transfer"
	if amount == 0 {
		return nil
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - $2 WHERE account = $1 AND amount >= $2`,
		from[:], amount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrInsufficientFunds
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		to[:], amount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO transfers (id, from_account, to_account, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), from[:], to[:], amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Deposit зачисляет amount на баланс аккаунта.
func (t *ledgerTx) Deposit(ctx context.Context, account address.Address, amount uint64) error {
	const op = "repository.tx.Deposit"

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		account[:], amount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
