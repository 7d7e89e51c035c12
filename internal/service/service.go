// Package service реализует бизнес-логику хранилища заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/repository"
	"github.com/mmeshcher/quickorder/internal/validation"
)

const (
	sweepInterval  = time.Minute
	sweepBatchSize = 100

	expiredPaymentError = "order expired before payment"
)

var (
	// ErrInvalidOrder возвращается для запроса на создание заказа с некорректными данными.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrCustomerCannotOrder возвращается, если статус клиента не допускает оформления заказа.
	ErrCustomerCannotOrder = errors.New("customer cannot place orders")
	// ErrUnknownService возвращается для позиции с услугой, которой нет в каталоге.
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidPaymentTransition возвращается при недопустимой смене статуса оплаты.
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
)

var orderReferencePattern = regexp.MustCompile(`^ORD-\d{6}-\d{4}$`)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	ListServices(ctx context.Context) ([]model.Service, error)
	GetServices(ctx context.Context, ids []string) (map[string]model.Service, error)
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	SaveOrder(ctx context.Context, o *model.Order) (bool, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrderPayment(ctx context.Context, id string, expected model.PaymentStatus, upd model.OrderUpdate) error
	GetStaleUnpaidOrders(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// Service содержит бизнес-логику хранилища заказов.
type Service struct {
	repo      Repository
	unpaidTTL time.Duration
	logger    *zap.Logger
}

// NewService создаёт новый сервис. Неоплаченные заказы старше unpaidTTL отменяются
// фоновым процессом; нулевое значение отключает отмену.
func NewService(repo Repository, unpaidTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		unpaidTTL: unpaidTTL,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ListServices возвращает каталог услуг.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.repo.ListServices(ctx)
}

// GetCustomer возвращает клиента по идентификатору.
func (s *Service) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CreateOrder проверяет запрос, пересчитывает цены и суммы по каталогу и сохраняет заказ.
// Повторный запрос с тем же номером заказа от того же клиента заменяет неоплаченный заказ.
func (s *Service) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer is required", ErrInvalidOrder)
	}
	if len(req.Services) == 0 {
		return nil, fmt.Errorf("%w: no services", ErrInvalidOrder)
	}
	if !orderReferencePattern.MatchString(req.OrderReference) {
		return nil, fmt.Errorf("%w: malformed order reference %q", ErrInvalidOrder, req.OrderReference)
	}

	meta, err := normalizeMeta(req.OrderMeta)
	if err != nil {
		return nil, err
	}

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if !customer.CanOrder() {
		return nil, fmt.Errorf("%w: %s", ErrCustomerCannotOrder, customer.Status)
	}

	ids := make([]string, 0, len(req.Services))
	for _, it := range req.Services {
		ids = append(ids, it.ServiceID)
	}
	catalog, err := s.repo.GetServices(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		OrderReference: req.OrderReference,
		CustomerID:     customer.ID,
		Items:          make([]model.OrderItem, 0, len(req.Services)),
		OrderMeta:      meta,
	}
	for _, it := range req.Services {
		svc, ok := catalog[it.ServiceID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownService, it.ServiceID)
		}
		if err := validation.Validate(svc.Category, it.Details); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOrder, it.ServiceID, err)
		}
		order.Items = append(order.Items, model.OrderItem{
			ServiceID:   svc.ID,
			ServiceType: svc.Category.ServiceType(),
			Price:       svc.Price,
			Details:     it.Details,
		})
		order.ItemsTotal = order.ItemsTotal.Add(svc.Price)
	}
	order.GrandTotalToPay = order.ItemsTotal

	existed, err := s.repo.SaveOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if existed {
		s.logger.Info("order replaced", zap.String("order", order.OrderReference))
	}

	return s.repo.GetOrder(ctx, order.ID)
}

func normalizeMeta(meta model.OrderMeta) (model.OrderMeta, error) {
	if meta.Status == "" {
		meta.Status = model.OrderStatusPending
	}
	if meta.Priority == "" {
		meta.Priority = model.PriorityNormal
	}

	switch meta.Status {
	case model.OrderStatusPending, model.OrderStatusConfirmed, model.OrderStatusInProgress,
		model.OrderStatusCompleted, model.OrderStatusCancelled:
	default:
		return meta, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, meta.Status)
	}

	switch meta.Priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return meta, fmt.Errorf("%w: unknown priority %q", ErrInvalidOrder, meta.Priority)
	}

	return meta, nil
}

// UpdateOrder меняет статус оплаты заказа. Допустимы переходы из неоплаченного состояния
// в оплаченное или отменённое; оплаченный заказ больше не меняется. Повтор того же
// перехода с тем же платёжным намерением считается успешным.
func (s *Service) UpdateOrder(ctx context.Context, id string, upd model.OrderUpdate) error {
	if !upd.PaymentStatus.Valid() || upd.PaymentStatus == model.PaymentStatusPending {
		return fmt.Errorf("%w: to %d", ErrInvalidPaymentTransition, upd.PaymentStatus)
	}

	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	if current.PaymentStatus != model.PaymentStatusPending {
		if current.PaymentStatus == upd.PaymentStatus && current.PaymentIntentID == upd.PaymentIntentID {
			return nil
		}
		return fmt.Errorf("%w: %s to %s", ErrInvalidPaymentTransition, current.PaymentStatus, upd.PaymentStatus)
	}

	for _, ref := range upd.ServiceReferences {
		if !hasItem(current, ref.ServiceID) {
			return fmt.Errorf("%w: %s", ErrUnknownService, ref.ServiceID)
		}
	}

	return s.repo.UpdateOrderPayment(ctx, id, model.PaymentStatusPending, upd)
}

func hasItem(o *model.Order, serviceID string) bool {
	for _, it := range o.Items {
		if it.ServiceID == serviceID {
			return true
		}
	}
	return false
}

// StartUnpaidOrderSweep запускает фоновую отмену неоплаченных заказов, созданных раньше
// заданного времени жизни.
func (s *Service) StartUnpaidOrderSweep(ctx context.Context) {
	if s.unpaidTTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cancelStaleOrders(ctx)
			}
		}
	}()
}

func (s *Service) cancelStaleOrders(ctx context.Context) int {
	ids, err := s.repo.GetStaleUnpaidOrders(ctx, time.Now().Add(-s.unpaidTTL), sweepBatchSize)
	if err != nil {
		s.logger.Error("select stale orders error", zap.Error(err))
		return 0
	}

	cancelled := 0
	for _, id := range ids {
		err := s.repo.UpdateOrderPayment(ctx, id, model.PaymentStatusPending, model.OrderUpdate{
			PaymentStatus: model.PaymentStatusCancelled,
			PaymentError:  expiredPaymentError,
		})
		if errors.Is(err, repository.ErrPaymentStatusChanged) {
			continue
		}
		if err != nil {
			s.logger.Error("cancel stale order error", zap.Error(err), zap.String("order", id))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		s.logger.Info("stale unpaid orders cancelled", zap.Int("count", cancelled))
	}
	return cancelled
}
