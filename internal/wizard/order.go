package wizard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
)

var now = time.Now

// GenerateOrderReference возвращает номер заказа вида ORD-<6 цифр времени>-<4 случайные цифры>.
func GenerateOrderReference() string {
	suffix := now().UnixMilli() % 1_000_000
	return fmt.Sprintf("ORD-%06d-%04d", suffix, 1000+rand.Intn(9000))
}

// CreateOrder создаёт заказ в хранилище по выбранным услугам и переводит мастер
// на шаг сводки. Номер заказа берётся из черновика, поэтому повторные вызовы
// отправляют один и тот же номер. Вызов допустим на шагах данных и сводки, когда
// клиент подтверждён и данные по всем услугам заполнены.
func (c *Controller) CreateOrder(ctx context.Context) (*model.Order, error) {
	return c.createOrder(ctx, StepSummary, StepDetails, StepSummary)
}

// createOrder сохраняет созданный заказ и шаг target одним изменением состояния.
// Создание допустимо только на шагах from. Шаг меняется, только если мастер
// остался на том шаге, с которого начато создание.
func (c *Controller) createOrder(ctx context.Context, target Step, from ...Step) (*model.Order, error) {
	c.mu.Lock()
	if c.customer == nil || c.customer.ID == "" {
		c.mu.Unlock()
		c.notify(notify.SeverityError, "No customer selected")
		return nil, ErrNoCustomer
	}
	if len(c.selected) == 0 {
		c.mu.Unlock()
		c.notify(notify.SeverityError, "No services selected")
		return nil, ErrNoServices
	}
	if c.paidLocked() {
		c.mu.Unlock()
		return nil, ErrAlreadyPaid
	}
	if c.loading.Order || c.loading.Payment {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	if err := c.orderGuardLocked(from); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.loading.Order = true
	origin := c.step
	draft := c.buildDraftLocked()
	req := c.orderRequestLocked(draft)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading.Order = false
		c.mu.Unlock()
	}()

	order, err := c.orders.CreateOrder(ctx, req)
	if err == nil && order == nil {
		err = errors.New("order store returned no order")
	}
	if err != nil {
		c.logger.Error("create order error", zap.Error(err), zap.String("order", draft.OrderReference))
		c.notify(notify.SeverityError, "Failed to create order: "+errorMessage(err))
		return nil, fmt.Errorf("create order: %w", err)
	}

	created := cloneOrder(order)

	c.mu.Lock()
	c.order = created
	if c.step == origin {
		c.step = target
	}
	c.mu.Unlock()

	c.notify(notify.SeveritySuccess, fmt.Sprintf("Order %s created successfully", created.OrderReference))
	return cloneOrder(created), nil
}

// orderGuardLocked проверяет условия, при которых заказ можно отправить в хранилище.
func (c *Controller) orderGuardLocked(from []Step) error {
	if !slices.Contains(from, c.step) {
		return ErrWrongStep
	}
	if !c.customerConfirmed {
		return ErrCustomerNotConfirmed
	}
	if !c.detailsCompleteLocked() {
		return ErrIncompleteDetails
	}
	return nil
}

// buildDraftLocked пересобирает черновик по текущему выбору, сохраняя номер
// заказа, если черновик уже существовал.
func (c *Controller) buildDraftLocked() model.OrderDraft {
	ref := ""
	if c.draft != nil {
		ref = c.draft.OrderReference
	}
	if ref == "" {
		ref = GenerateOrderReference()
	}

	items := make([]model.DraftItem, 0, len(c.selected))
	for _, s := range c.selected {
		items = append(items, model.DraftItem{
			ServiceID: s.ID,
			Price:     s.Price,
			Details:   c.details[s.ID].Clone(),
		})
	}

	draft := model.OrderDraft{
		OrderReference: ref,
		CustomerID:     c.customer.ID,
		Items:          items,
		OrderMeta:      c.orderMeta,
	}
	c.draft = &draft
	return draft
}

func (c *Controller) orderRequestLocked(draft model.OrderDraft) model.OrderRequest {
	req := model.OrderRequest{
		CustomerID:     draft.CustomerID,
		Services:       make([]model.OrderRequestItem, 0, len(c.selected)),
		OrderReference: draft.OrderReference,
		OrderMeta:      draft.OrderMeta,
	}

	for i, s := range c.selected {
		req.Services = append(req.Services, model.OrderRequestItem{
			ServiceID:   s.ID,
			Price:       s.Price,
			ServiceType: s.Category.ServiceType(),
			Details:     draft.Items[i].Details,
		})
		req.ItemsTotal = req.ItemsTotal.Add(s.Price)
	}
	req.GrandTotalToPay = req.ItemsTotal
	return req
}
