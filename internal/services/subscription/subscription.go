// Package services содержит бизнес-логику машины состояний подписки:
// создание, изменение параметров, продление, отмену и закрытие записи,
// каждая операция — один атомарный шаг чтения-проверки-записи,
// связанный с движением средств на create и renew.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/history"
	"github.com/onchainlab/subscription-ledger/internal/lib/sl"
	"github.com/onchainlab/subscription-ledger/internal/metrics"
	"github.com/onchainlab/subscription-ledger/internal/models"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

// PricingPolicy определяет, изменяемы ли параметры подписки после создания.
type PricingPolicy string

const (
	// PolicyFlexible — duration и amount задаются вызывающим и изменяемы через update.
	PolicyFlexible PricingPolicy = "flexible"
	// PolicyFixed — duration и amount навсегда определяются выбранным планом.
	PolicyFixed PricingPolicy = "fixed"
)

// Plan — параметры плана для фиксированной политики цен.
type Plan struct {
	DurationSeconds uint64
	Amount          uint64
}

// Cache описывает методы для кэширования записей.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// EventPublisher публикует события жизненного цикла подписок.
type EventPublisher interface {
	Publish(message any) error
}

// Event — сообщение о событии жизненного цикла, публикуемое после фиксации.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	PlanID    uint64 `json:"plan_id"`
	Timestamp int64  `json:"timestamp"`
}

// cacheTTL — время жизни записи в кеше чтения.
const cacheTTL = time.Hour

// SubscriptionService реализует машину состояний подписки поверх леджера.
type SubscriptionService struct {
	ledger   storage.Ledger
	cache    Cache
	events   EventPublisher
	policy   PricingPolicy
	plans    map[uint64]Plan
	treasury address.Address
	now      func() time.Time
	log      *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
// cache и events могут быть nil: кеширование и события тогда отключены.
func NewSubscriptionService(ledger storage.Ledger, cache Cache, events EventPublisher,
	policy PricingPolicy, plans map[uint64]Plan, treasury address.Address, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		ledger:   ledger,
		cache:    cache,
		events:   events,
		policy:   policy,
		plans:    plans,
		treasury: treasury,
		now:      time.Now,
		log:      log,
	}
}

// Create создаёт запись подписки по адресу (owner, plan_id) и списывает
// стартовый платёж в трезори одним атомарным шагом.
func (s *SubscriptionService) Create(ctx context.Context, owner address.Address, req models.CreateRequest) (address.Address, *models.Record, error) {
	duration, amount := req.DurationSeconds, req.Amount
	if s.policy == PolicyFixed {
		plan, ok := s.plans[req.PlanID]
		if !ok {
			return address.Address{}, nil, ErrUnknownPlan
		}
		duration, amount = plan.DurationSeconds, plan.Amount
	}

	now := s.now().Unix()
	rec := &models.Record{
		Owner:     owner,
		PlanID:    req.PlanID,
		StartTime: now,
		Duration:  duration,
		Amount:    amount,
		Active:    true,
		History:   []int64{now},
	}
	addr := address.Derive(owner, req.PlanID)

	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertRecord(ctx, addr, rec); err != nil {
			return err
		}
		return tx.Transfer(ctx, owner, s.treasury, amount)
	})
	metrics.ObserveOperation("create", err)
	if err != nil {
		return address.Address{}, nil, err
	}

	s.log.Info("created subscription",
		slog.String("address", addr.String()), slog.Uint64("plan_id", req.PlanID))
	s.cacheSet(addr, rec)
	s.publish("subscription.created", addr, rec)
	return addr, rec, nil
}

// Read возвращает запись подписки вызывающего по плану, используя кеш чтения.
func (s *SubscriptionService) Read(ctx context.Context, owner address.Address, planID uint64) (address.Address, *models.Record, error) {
	addr := address.Derive(owner, planID)

	var cached *models.Record
	if found, err := s.cacheGet(addr, &cached); err == nil && found {
		return addr, cached, nil
	}

	rec, err := s.ledger.GetRecord(ctx, addr)
	if err != nil {
		return addr, nil, err
	}
	s.cacheSet(addr, rec)
	return addr, rec, nil
}

// Update заменяет duration и amount записи. Требует активной подписки;
// при фиксированной политике возвращает ErrFixedParameters, но существование
// записи и право владения проверяются раньше политики.
// Журнал не пополняется, платёж не выполняется.
func (s *SubscriptionService) Update(ctx context.Context, owner address.Address, planID uint64, req models.UpdateRequest) (*models.Record, error) {
	addr := address.Derive(owner, planID)

	var rec *models.Record
	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, addr)
		if err != nil {
			return err
		}
		if rec.Owner != owner {
			return ErrUnauthorized
		}
		if s.policy == PolicyFixed {
			return ErrFixedParameters
		}
		if !rec.Active {
			return ErrInactiveSubscription
		}
		rec.Duration = req.DurationSeconds
		rec.Amount = req.Amount
		return tx.UpdateRecord(ctx, addr, rec)
	})
	metrics.ObserveOperation("update", err)
	if err != nil {
		return nil, err
	}

	s.log.Info("updated subscription", slog.String("address", addr.String()))
	s.cacheSet(addr, rec)
	s.publish("subscription.updated", addr, rec)
	return rec, nil
}

// Renew продлевает истёкшую подписку: списывает текущую цену записи,
// сдвигает начало периода и дописывает метку в журнал (с вытеснением
// самой старой при заполненном журнале).
func (s *SubscriptionService) Renew(ctx context.Context, owner address.Address, planID uint64) (*models.Record, error) {
	addr := address.Derive(owner, planID)

	var rec *models.Record
	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, addr)
		if err != nil {
			return err
		}
		if rec.Owner != owner {
			return ErrUnauthorized
		}
		if !rec.Active {
			return ErrInactiveSubscription
		}
		now := s.now().Unix()
		if now < rec.StartTime+int64(rec.Duration) {
			return ErrNotYetExpired
		}
		if err := tx.Transfer(ctx, owner, s.treasury, rec.Amount); err != nil {
			return err
		}
		rec.History = history.Append(rec.History, now)
		rec.StartTime = now
		return tx.UpdateRecord(ctx, addr, rec)
	})
	metrics.ObserveOperation("renew", err)
	if err != nil {
		return nil, err
	}

	s.log.Info("renewed subscription",
		slog.String("address", addr.String()), slog.Int64("start_time", rec.StartTime))
	s.cacheSet(addr, rec)
	s.publish("subscription.renewed", addr, rec)
	return rec, nil
}

// Cancel деактивирует подписку. Повторная отмена уже неактивной записи —
// успешный no-op. Платёж не выполняется, журнал не изменяется.
func (s *SubscriptionService) Cancel(ctx context.Context, owner address.Address, planID uint64) error {
	addr := address.Derive(owner, planID)

	changed := false
	var rec *models.Record
	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, addr)
		if err != nil {
			return err
		}
		if rec.Owner != owner {
			return ErrUnauthorized
		}
		if !rec.Active {
			return nil
		}
		rec.Active = false
		changed = true
		return tx.UpdateRecord(ctx, addr, rec)
	})
	metrics.ObserveOperation("cancel", err)
	if err != nil {
		return err
	}

	if changed {
		s.log.Info("cancelled subscription", slog.String("address", addr.String()))
		s.cacheSet(addr, rec)
		s.publish("subscription.cancelled", addr, rec)
	}
	return nil
}

// Close удаляет запись неактивной подписки; адрес снова становится свободным.
func (s *SubscriptionService) Close(ctx context.Context, owner address.Address, planID uint64) error {
	addr := address.Derive(owner, planID)

	var rec *models.Record
	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, addr)
		if err != nil {
			return err
		}
		if rec.Owner != owner {
			return ErrUnauthorized
		}
		if rec.Active {
			return ErrActiveSubscription
		}
		return tx.DeleteRecord(ctx, addr)
	})
	metrics.ObserveOperation("close", err)
	if err != nil {
		return err
	}

	s.log.Info("closed subscription", slog.String("address", addr.String()))
	s.cacheInvalidate(addr)
	s.publish("subscription.closed", addr, rec)
	return nil
}

// Deposit зачисляет средства на баланс владельца.
func (s *SubscriptionService) Deposit(ctx context.Context, owner address.Address, amount uint64) error {
	err := s.ledger.ExecTx(ctx, func(tx storage.Tx) error {
		return tx.Deposit(ctx, owner, amount)
	})
	metrics.ObserveOperation("deposit", err)
	return err
}

// Balance возвращает баланс владельца и последние квитанции переводов.
func (s *SubscriptionService) Balance(ctx context.Context, owner address.Address) (uint64, []models.Transfer, error) {
	balance, err := s.ledger.Balance(ctx, owner)
	if err != nil {
		return 0, nil, err
	}
	transfers, err := s.ledger.ListTransfers(ctx, owner, 20)
	if err != nil {
		return 0, nil, err
	}
	return balance, transfers, nil
}

func cacheKey(addr address.Address) string {
	return fmt.Sprintf("record:%s", addr)
}

func (s *SubscriptionService) cacheGet(addr address.Address, result any) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.Get(cacheKey(addr), result)
}

func (s *SubscriptionService) cacheSet(addr address.Address, rec *models.Record) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(cacheKey(addr), rec, cacheTTL); err != nil {
		s.log.Warn("failed to cache record", slog.String("key", cacheKey(addr)), sl.Err(err))
	}
}

func (s *SubscriptionService) cacheInvalidate(addr address.Address) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(cacheKey(addr)); err != nil {
		s.log.Warn("failed to invalidate cached record", slog.String("key", cacheKey(addr)), sl.Err(err))
	}
}

// publish отправляет событие жизненного цикла; ошибка публикации
// логируется и не влияет на результат операции.
func (s *SubscriptionService) publish(eventType string, addr address.Address, rec *models.Record) {
	if s.events == nil || rec == nil {
		return
	}
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Address:   addr.String(),
		Owner:     rec.Owner.String(),
		PlanID:    rec.PlanID,
		Timestamp: s.now().Unix(),
	}
	if err := s.events.Publish(event); err != nil {
		s.log.Warn("failed to publish event", slog.String("type", eventType), sl.Err(err))
	}
}
