package wizard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
	"github.com/mmeshcher/quickorder/internal/payment"
)

const (
	resultStatusFailed = "failed"
	errorIntentID      = "error"
	paymentCurrency    = "gbp"

	compensationTimeout = 5 * time.Second
)

// PaymentResult содержит итог обработки платежа. Возвращается всегда, в том числе при ошибке.
type PaymentResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ConfirmPayment подтверждает оплату заказа через платёжный клиент указанным
// способом оплаты и затем сверяет результат с хранилищем так же, как HandlePayment.
func (c *Controller) ConfirmPayment(ctx context.Context, paymentMethod string) PaymentResult {
	c.mu.Lock()
	if err := c.clientErrLocked(); err != nil {
		return c.rejectPayment(errorIntentID, err)
	}
	c.mu.Unlock()

	if err := c.reopenCancelledOrder(ctx); err != nil {
		return c.failPayment(errorIntentID, err)
	}

	c.mu.Lock()
	if err := c.paymentPreconditionsLocked(); err != nil {
		return c.rejectPayment(errorIntentID, err)
	}
	c.loading.Payment = true
	client := c.paymentClient
	req := payment.ConfirmRequest{
		Amount:        c.order.GrandTotalToPay,
		Currency:      paymentCurrency,
		PaymentMethod: paymentMethod,
		Reference:     c.order.OrderReference,
	}
	if c.customer != nil {
		req.ReceiptEmail = c.customer.Email
	}
	c.mu.Unlock()

	defer c.clearPaymentLoading()

	intent, err := client.Confirm(ctx, req)
	if err != nil {
		msg := errorMessage(err)
		c.logger.Error("confirm payment error", zap.Error(err), zap.String("order", req.Reference))

		c.mu.Lock()
		c.paymentErr = msg
		c.mu.Unlock()

		c.notify(notify.SeverityError, "Payment failed: "+msg)

		id := intent.ID
		if id == "" {
			id = errorIntentID
		}
		return PaymentResult{ID: id, Status: resultStatusFailed, Error: msg}
	}

	return c.reconcile(ctx, intent)
}

// HandlePayment сверяет подтверждённое платёжное намерение с заказом: отмечает
// заказ оплаченным, перечитывает его из хранилища и переводит мастер на шаг
// подтверждения. При ошибке заказ отмечается отменённым; сбой этой отметки
// только журналируется. После отмены следующая попытка создаёт заказ заново
// под прежним номером.
func (c *Controller) HandlePayment(ctx context.Context, intent payment.Intent) PaymentResult {
	c.mu.Lock()
	if err := c.clientErrLocked(); err != nil {
		return c.rejectPayment(errorIntentID, err)
	}
	if intent.ID == "" {
		return c.rejectPayment(errorIntentID, ErrMissingIntent)
	}
	c.mu.Unlock()

	if err := c.reopenCancelledOrder(ctx); err != nil {
		return c.failPayment(intent.ID, err)
	}

	c.mu.Lock()
	if err := c.paymentPreconditionsLocked(); err != nil {
		return c.rejectPayment(intent.ID, err)
	}
	c.loading.Payment = true
	c.mu.Unlock()

	defer c.clearPaymentLoading()

	return c.reconcile(ctx, intent)
}

// paymentPreconditionsLocked проверяет, можно ли начинать оплату.
func (c *Controller) paymentPreconditionsLocked() error {
	if err := c.clientErrLocked(); err != nil {
		return err
	}
	if c.loading.Payment || c.loading.Order {
		return ErrInFlight
	}
	if c.paidLocked() {
		return ErrAlreadyPaid
	}
	if c.step != StepPayment {
		return ErrWrongStep
	}
	if c.order == nil {
		return ErrNoOrder
	}
	return nil
}

// reopenCancelledOrder заново создаёт заказ под прежним номером, если на шаге оплаты
// заказ был отменён после неудачной попытки оплаты и остался только черновик.
func (c *Controller) reopenCancelledOrder(ctx context.Context) error {
	c.mu.Lock()
	reopen := c.step == StepPayment && c.order == nil && c.draft != nil &&
		!c.loading.Order && !c.loading.Payment
	c.mu.Unlock()

	if !reopen {
		return nil
	}
	_, err := c.createOrder(ctx, StepPayment, StepPayment)
	return err
}

func (c *Controller) clientErrLocked() error {
	if c.paymentClient != nil {
		return nil
	}
	if c.paymentClientErr != nil {
		return fmt.Errorf("%w: %v", ErrPaymentClient, c.paymentClientErr)
	}
	return ErrPaymentClient
}

// rejectPayment вызывается под блокировкой и снимает её.
func (c *Controller) rejectPayment(id string, err error) PaymentResult {
	c.mu.Unlock()
	return c.failPayment(id, err)
}

func (c *Controller) failPayment(id string, err error) PaymentResult {
	msg := errorMessage(err)

	c.mu.Lock()
	c.paymentErr = msg
	c.mu.Unlock()

	c.notify(notify.SeverityError, "Payment failed: "+msg)
	return PaymentResult{ID: id, Status: resultStatusFailed, Error: msg}
}

func (c *Controller) clearPaymentLoading() {
	c.mu.Lock()
	c.loading.Payment = false
	c.mu.Unlock()
}

func (c *Controller) reconcile(ctx context.Context, intent payment.Intent) PaymentResult {
	c.mu.Lock()
	current := cloneOrder(c.order)
	ref := current.OrderReference
	if ref == "" && c.draft != nil {
		ref = c.draft.OrderReference
	}
	refs := make([]model.ServiceReference, 0, len(c.selected))
	for i, s := range c.selected {
		refs = append(refs, model.ServiceReference{
			ServiceID: s.ID,
			Reference: fmt.Sprintf("%s-S%d", ref, i+1),
		})
	}
	c.mu.Unlock()

	upd := model.OrderUpdate{
		PaymentStatus:     model.PaymentStatusPaid,
		PaymentIntentID:   intent.ID,
		ServiceReferences: refs,
	}
	if err := c.orders.UpdateOrder(ctx, current.ID, upd); err != nil {
		return c.paymentFailed(ctx, current, intent, err)
	}

	complete, err := c.orders.GetOrder(ctx, current.ID)
	if err != nil || complete == nil {
		c.logger.Warn("reload paid order error", zap.Error(err), zap.String("order", ref))
		complete = applyUpdate(current, upd)
	}
	complete = cloneOrder(complete)

	c.mu.Lock()
	c.order = complete
	c.paymentErr = ""
	c.step = StepConfirmation
	onSuccess := c.onSuccess
	c.mu.Unlock()

	c.notify(notify.SeveritySuccess, fmt.Sprintf("Payment for order %s completed", complete.OrderReference))
	if onSuccess != nil {
		onSuccess(*cloneOrder(complete))
	}

	status := intent.Status
	if status == "" {
		status = payment.StatusSucceeded
	}
	return PaymentResult{ID: intent.ID, Status: status}
}

func (c *Controller) paymentFailed(ctx context.Context, order *model.Order, intent payment.Intent, err error) PaymentResult {
	msg := errorMessage(err)
	c.logger.Error("update paid order error", zap.Error(err), zap.String("order", order.OrderReference))

	c.mu.Lock()
	c.paymentErr = msg
	c.mu.Unlock()

	c.notify(notify.SeverityError, "Payment processing failed: "+msg)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	cancelUpd := model.OrderUpdate{
		PaymentStatus:   model.PaymentStatusCancelled,
		PaymentIntentID: intent.ID,
		PaymentError:    msg,
	}
	if cerr := c.orders.UpdateOrder(cctx, order.ID, cancelUpd); cerr != nil {
		c.logger.Warn("cancel order after payment error failed", zap.Error(cerr), zap.String("order", order.OrderReference))
		return PaymentResult{ID: intent.ID, Status: resultStatusFailed, Error: msg}
	}

	// Отменённый заказ больше не принимает оплату. Следующая попытка создаст его
	// заново под тем же номером из черновика.
	c.mu.Lock()
	if c.order != nil && c.order.ID == order.ID {
		c.order = nil
	}
	c.mu.Unlock()

	return PaymentResult{ID: intent.ID, Status: resultStatusFailed, Error: msg}
}

// applyUpdate применяет обновление оплаты к локальной копии заказа.
func applyUpdate(o *model.Order, upd model.OrderUpdate) *model.Order {
	out := cloneOrder(o)
	out.PaymentStatus = upd.PaymentStatus
	out.PaymentIntentID = upd.PaymentIntentID
	out.PaymentError = upd.PaymentError
	for _, ref := range upd.ServiceReferences {
		for i := range out.Items {
			if out.Items[i].ServiceID == ref.ServiceID && out.Items[i].ServiceReference == "" {
				out.Items[i].ServiceReference = ref.Reference
				break
			}
		}
	}
	return out
}
