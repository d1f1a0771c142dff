package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/producer"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher получает события только после успешного коммита.
type EventPublisher interface {
	Publish(ctx context.Context, events ...producer.LedgerEvent) error
}

type AvailabilityCache interface {
	Lookup(ctx context.Context, productID uuid.UUID, r models.DateRange) ([]availability.Day, string, error)
	Store(ctx context.Context, key string, days []availability.Day) error
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

// Верхние границы количества в одном запросе. HTTP-слой проверяет те же
// значения в тегах binding.
const (
	DefaultMaxBatch    int32 = 10_000
	DefaultMaxQuantity int32 = 1_000_000
)

type Options struct {
	MaxRetries   int           // повторы при Contended/Timeout сверх первой попытки
	TxTimeout    time.Duration // на одну попытку
	MaxRangeDays int
	RetryBackoff time.Duration
	MaxBatch     int32 // tracked единиц за один Convert/AddTracked
	MaxQuantity  int32 // |delta| bulk и bulk в одном резерве
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		TxTimeout:    5 * time.Second,
		MaxRangeDays: 366,
		RetryBackoff: 20 * time.Millisecond,
		MaxBatch:     DefaultMaxBatch,
		MaxQuantity:  DefaultMaxQuantity,
	}
}

type ledgerService struct {
	repo   *repository.Repository
	log    *zap.Logger
	opt    Options
	events EventPublisher
	cache  AvailabilityCache
	now    func() time.Time
}

var _ LedgerService = (*ledgerService)(nil)

func NewLedgerService(repo *repository.Repository, log *zap.Logger, opt Options) *ledgerService {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.MaxBatch <= 0 {
		opt.MaxBatch = DefaultMaxBatch
	}
	if opt.MaxQuantity <= 0 {
		opt.MaxQuantity = DefaultMaxQuantity
	}
	return &ledgerService{
		repo: repo,
		log:  log,
		opt:  opt,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *ledgerService) WithEvents(p EventPublisher) *ledgerService {
	s.events = p
	return s
}

func (s *ledgerService) WithCache(c AvailabilityCache) *ledgerService {
	s.cache = c
	return s
}

func (s *ledgerService) WithClock(now func() time.Time) *ledgerService {
	s.now = now
	return s
}

// inProductTx runs fn as one product transaction, retrying transient
// failures with exponential backoff. fn must not leak state between attempts.
func (s *ledgerService) inProductTx(ctx context.Context, op string, productID uuid.UUID, fn func(tx *repository.Repository) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.attemptTx(ctx, productID, fn)
		if err == nil || !IsRetryable(err) || attempt >= s.opt.MaxRetries {
			break
		}

		wait := s.opt.RetryBackoff << attempt
		s.log.Warn("Повтор транзакции склада",
			zap.String("op", op),
			zap.String("product_id", productID.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
	}

	s.logFailure(op, productID, err)
	return err
}

func (s *ledgerService) attemptTx(ctx context.Context, productID uuid.UUID, fn func(tx *repository.Repository) error) error {
	txCtx := ctx
	if s.opt.TxTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.opt.TxTimeout)
		defer cancel()
	}

	err := s.repo.WithProductTx(txCtx, productID, fn)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProductNotFound
	}
	return mapStoreError(err)
}

func (s *ledgerService) inSnapshot(ctx context.Context, productID uuid.UUID, fn func(tx *repository.Repository) error) error {
	return mapStoreError(s.repo.WithSnapshot(ctx, productID, fn))
}

func (s *ledgerService) logFailure(op string, productID uuid.UUID, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("op", op), zap.String("product_id", productID.String()), zap.Error(err)}

	var cv *ConstraintViolationError
	switch class := Classify(err); {
	case errors.As(err, &cv):
		s.log.Error("Нарушен инвариант склада", append(fields, zap.String("invariant", cv.Invariant))...)
	case class == ClassCapacity || class == ClassValidation || class == ClassNotFound:
		s.log.Info("Операция склада отклонена", append(fields, zap.String("class", class.String()))...)
	case class == ClassTransient:
		s.log.Warn("Повторы транзакции исчерпаны", fields...)
	default:
		s.log.Error("Ошибка операции склада", fields...)
	}
}

// afterCommit drops cached availability and publishes events. Failures here
// never undo a committed write.
func (s *ledgerService) afterCommit(ctx context.Context, productID uuid.UUID, events ...producer.LedgerEvent) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, productID); err != nil {
			s.log.Warn("Не удалось сбросить кэш доступности", zap.String("product_id", productID.String()), zap.Error(err))
		}
	}
	if s.events != nil && len(events) > 0 {
		if err := s.events.Publish(ctx, events...); err != nil {
			s.log.Warn("Не удалось отправить события склада", zap.String("product_id", productID.String()), zap.Int("count", len(events)), zap.Error(err))
		}
	}
}

func (s *ledgerService) today() time.Time {
	return models.Day(s.now())
}

func loadStock(ctx context.Context, tx *repository.Repository, productID uuid.UUID) (*models.MasterStock, error) {
	st, err := tx.Stocks.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrProductNotFound
	}
	return st, nil
}

// checkQuantity требует 0 < n <= limit.
func checkQuantity(n, limit int32) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if n > limit {
		return fmt.Errorf("%w: %d exceeds the per-request limit of %d", ErrInvalidQuantity, n, limit)
	}
	return nil
}

// addCounts applies deltas to the stock counters without int32 overflow.
func addCounts(st *models.MasterStock, bulkDelta, trackedDelta int32) error {
	bulk := int64(st.BulkPoolCount) + int64(bulkDelta)
	tracked := int64(st.TrackedItemCount) + int64(trackedDelta)
	if bulk+tracked > math.MaxInt32 {
		return fmt.Errorf("%w: stock of %d units would overflow", ErrInvalidQuantity, bulk+tracked)
	}
	st.BulkPoolCount = int32(bulk)
	st.TrackedItemCount = int32(tracked)
	return nil
}

func (s *ledgerService) validateRange(r models.DateRange) (models.DateRange, error) {
	if err := r.Validate(); err != nil {
		return models.DateRange{}, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	r = models.DateRange{Start: models.Day(r.Start), End: models.Day(r.End)}
	if s.opt.MaxRangeDays > 0 && r.Days() > s.opt.MaxRangeDays {
		return models.DateRange{}, fmt.Errorf("%w: %d days exceeds limit of %d", ErrInvalidDateRange, r.Days(), s.opt.MaxRangeDays)
	}
	return r, nil
}

func stockEvent(adj models.StockAdjustment, occurredAt time.Time) producer.LedgerEvent {
	ev := producer.LedgerEvent{
		Type:             producer.EventStockAdjusted,
		ProductID:        adj.ProductID,
		OccurredAt:       occurredAt,
		Actor:            adj.Actor,
		OperationType:    string(adj.OperationType),
		Delta:            adj.Delta,
		BulkPoolCount:    adj.BulkAfter,
		TrackedItemCount: adj.TrackedAfter,
		Reason:           adj.Reason,
	}
	if adj.ReferenceID != nil {
		ref := *adj.ReferenceID
		ev.ItemID = &ref
	}
	return ev
}

func assignmentEvent(typ producer.EventType, a models.Assignment, actor string, occurredAt time.Time) producer.LedgerEvent {
	id, job := a.ID, a.JobID
	ev := producer.LedgerEvent{
		Type:         typ,
		ProductID:    a.ProductID,
		OccurredAt:   occurredAt,
		Actor:        actor,
		AssignmentID: &id,
		JobID:        &job,
		Kind:         string(a.Kind),
		StartDate:    a.StartDate.Format(models.DateLayout),
		EndDate:      a.EndDate.Format(models.DateLayout),
	}
	if q, ok := a.Bulk(); ok {
		ev.Quantity = q
	}
	return ev
}
