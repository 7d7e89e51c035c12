package wizard

import (
	"errors"
	"strings"
)

var (
	// ErrNoCustomer возвращается, если клиент не выбран.
	ErrNoCustomer = errors.New("no customer selected")
	// ErrCustomerNotConfirmed возвращается при переходе дальше без подтверждения клиента.
	ErrCustomerNotConfirmed = errors.New("customer is not confirmed")
	// ErrCustomerCannotOrder возвращается, если статус клиента не допускает оформления заказа.
	ErrCustomerCannotOrder = errors.New("customer cannot place orders")
	// ErrNoServices возвращается, если не выбрано ни одной услуги.
	ErrNoServices = errors.New("no services selected")
	// ErrUnknownService возвращается для услуги, которой нет в каталоге.
	ErrUnknownService = errors.New("service not found in catalog")
	// ErrServiceNotSelected возвращается при заполнении данных по невыбранной услуге.
	ErrServiceNotSelected = errors.New("service is not selected")
	// ErrIncompleteDetails возвращается, если данные по услугам заполнены не полностью.
	ErrIncompleteDetails = errors.New("service details are incomplete")
	// ErrFirstStep возвращается при попытке вернуться с первого шага.
	ErrFirstStep = errors.New("already at the first step")
	// ErrLastStep возвращается при попытке перейти дальше последнего шага.
	ErrLastStep = errors.New("already at the last step")
	// ErrOrderPending возвращается, пока заказ ещё создаётся в хранилище.
	ErrOrderPending = errors.New("order is still being created")
	// ErrNoOrder возвращается, если заказ ещё не создан.
	ErrNoOrder = errors.New("order has not been created")
	// ErrNotPaid возвращается при переходе к подтверждению неоплаченного заказа.
	ErrNotPaid = errors.New("order is not paid")
	// ErrAlreadyPaid возвращается при повторной оплате заказа.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrWrongStep возвращается для операции, недоступной на текущем шаге.
	ErrWrongStep = errors.New("operation is not available at the current step")
	// ErrInFlight возвращается, если такая же операция уже выполняется.
	ErrInFlight = errors.New("operation already in progress")
	// ErrPaymentClient возвращается, если платёжный клиент не инициализирован.
	ErrPaymentClient = errors.New("payment client not initialized")
	// ErrMissingIntent возвращается для платёжного намерения без идентификатора.
	ErrMissingIntent = errors.New("payment intent id is missing")
)

// RemoteError реализуется ошибками хранилища, несущими сообщение для пользователя.
type RemoteError interface {
	RemoteMessage() string
}

// errorMessage возвращает сообщение удалённой стороны, а при его отсутствии текст ошибки.
func errorMessage(err error) string {
	var remote RemoteError
	if errors.As(err, &remote) {
		if msg := strings.TrimSpace(remote.RemoteMessage()); msg != "" {
			return msg
		}
	}
	return err.Error()
}
