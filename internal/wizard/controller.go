// Package wizard реализует пошаговое оформление заказа: выбор клиента и услуг,
// сбор данных по услугам, создание заказа в хранилище и проведение оплаты.
//
// Состояние мастера принадлежит Controller и изменяется только его методами.
// Удалённые вызовы выполняются вне блокировки; повторный запуск уже выполняющейся
// операции отклоняется с ErrInFlight.
package wizard

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/catalog"
	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
	"github.com/mmeshcher/quickorder/internal/payment"
	"github.com/mmeshcher/quickorder/internal/validation"
)

// CatalogProvider возвращает каталог услуг.
type CatalogProvider interface {
	ListServices(ctx context.Context) ([]model.Service, error)
}

// OrderStore описывает хранилище заказов.
type OrderStore interface {
	CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	UpdateOrder(ctx context.Context, id string, upd model.OrderUpdate) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// CustomerDirectory возвращает актуальные данные клиента.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}

// Options содержит входные данные и зависимости мастера.
type Options struct {
	// Customer содержит клиента, выбранного вызывающей стороной.
	Customer *model.Customer
	// Services содержит каталог, переданный вызывающей стороной. Если пуст, каталог
	// загружается через Catalog при монтировании.
	Services []model.Service

	Catalog   CatalogProvider
	Orders    OrderStore
	Customers CustomerDirectory
	Payments  payment.Provider
	Notifier  notify.Sink
	Logger    *zap.Logger

	// OnCustomerNeeded вызывается, когда оператор хочет сменить клиента.
	OnCustomerNeeded func()
	// OnSuccess вызывается один раз после успешной оплаты с полной записью заказа.
	OnSuccess func(order model.Order)
}

// Loading содержит признаки выполняющихся асинхронных операций.
type Loading struct {
	Customer bool `json:"customer"`
	Services bool `json:"services"`
	Order    bool `json:"order"`
	Payment  bool `json:"payment"`
}

func (l Loading) any() bool {
	return l.Customer || l.Services || l.Order || l.Payment
}

// Controller управляет шагами мастера и хранит всё его состояние.
type Controller struct {
	mu sync.Mutex

	catalogProvider  CatalogProvider
	orders           OrderStore
	customers        CustomerDirectory
	payments         payment.Provider
	notifier         notify.Sink
	logger           *zap.Logger
	onCustomerNeeded func()
	onSuccess        func(model.Order)

	step              Step
	customer          *model.Customer
	customerConfirmed bool

	services    []model.Service
	catalogMeta catalog.Metadata
	selected    []model.Service
	details     map[string]model.Details
	orderMeta   model.OrderMeta

	draft *model.OrderDraft
	order *model.Order

	paymentClient    payment.Client
	paymentClientErr error
	paymentErr       string

	loading Loading
}

// New создаёт мастер на первом шаге. Побочные эффекты монтирования выполняет Mount.
func New(opts Options) *Controller {
	c := &Controller{
		catalogProvider:  opts.Catalog,
		orders:           opts.Orders,
		customers:        opts.Customers,
		payments:         opts.Payments,
		notifier:         opts.Notifier,
		logger:           opts.Logger,
		onCustomerNeeded: opts.OnCustomerNeeded,
		onSuccess:        opts.OnSuccess,
		step:             StepCustomer,
		details:          make(map[string]model.Details),
		orderMeta:        model.DefaultOrderMeta(),
	}
	if c.notifier == nil {
		c.notifier = notify.Multi{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.Customer != nil {
		cust := *opts.Customer
		c.customer = &cust
	}
	if len(opts.Services) > 0 {
		c.services = append([]model.Service(nil), opts.Services...)
	}
	c.catalogMeta = catalog.BuildMetadata(c.services)
	return c
}

// Mount загружает каталог, если он не был передан, и инициализирует платёжный клиент.
// Ошибки не возвращаются: они сохраняются в состоянии и показываются уведомлениями.
func (c *Controller) Mount(ctx context.Context) {
	c.loadCatalog(ctx)
	c.initPaymentClient(ctx)
}

func (c *Controller) loadCatalog(ctx context.Context) {
	c.mu.Lock()
	if len(c.services) > 0 || c.catalogProvider == nil || c.loading.Services {
		c.mu.Unlock()
		return
	}
	c.loading.Services = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading.Services = false
		c.mu.Unlock()
	}()

	services, err := c.catalogProvider.ListServices(ctx)
	if err != nil {
		c.logger.Error("load services error", zap.Error(err))
		c.notify(notify.SeverityError, "Failed to load services: "+errorMessage(err))
		return
	}

	c.mu.Lock()
	c.services = services
	c.catalogMeta = catalog.BuildMetadata(services)
	c.mu.Unlock()
}

func (c *Controller) initPaymentClient(ctx context.Context) {
	var (
		client payment.Client
		err    error
	)
	if c.payments == nil {
		err = payment.ErrNotConfigured
	} else {
		client, err = c.payments.NewClient(ctx)
	}
	if err != nil {
		c.logger.Warn("payment client unavailable", zap.Error(err))
	}

	c.mu.Lock()
	c.paymentClient = client
	c.paymentClientErr = err
	c.mu.Unlock()
}

// ConfirmCustomer подтверждает выбранного клиента. Если задан справочник клиентов,
// данные клиента перечитываются и проверяется его статус.
func (c *Controller) ConfirmCustomer(ctx context.Context) error {
	c.mu.Lock()
	if c.customer == nil || c.customer.ID == "" {
		c.mu.Unlock()
		c.notify(notify.SeverityError, "Please select a customer first")
		return ErrNoCustomer
	}
	if c.loading.Customer {
		c.mu.Unlock()
		return ErrInFlight
	}
	current := *c.customer
	if c.customers == nil {
		if !current.CanOrder() {
			c.mu.Unlock()
			c.notify(notify.SeverityError, fmt.Sprintf("Customer %s is %s", current.FullName(), current.Status))
			return ErrCustomerCannotOrder
		}
		c.customerConfirmed = true
		c.mu.Unlock()
		return nil
	}
	c.loading.Customer = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading.Customer = false
		c.mu.Unlock()
	}()

	fresh, err := c.customers.GetCustomer(ctx, current.ID)
	if err != nil {
		c.logger.Error("validate customer error", zap.Error(err), zap.String("customer", current.ID))
		c.notify(notify.SeverityError, "Failed to validate customer: "+errorMessage(err))
		return fmt.Errorf("validate customer: %w", err)
	}
	if fresh == nil {
		fresh = &current
	}
	if !fresh.CanOrder() {
		c.notify(notify.SeverityError, fmt.Sprintf("Customer %s is %s", fresh.FullName(), fresh.Status))
		return ErrCustomerCannotOrder
	}

	c.mu.Lock()
	c.customer = fresh
	c.customerConfirmed = true
	c.mu.Unlock()
	return nil
}

// ChangeCustomer снимает подтверждение клиента и возвращает мастер на первый шаг.
// Если передан новый клиент, он заменяет текущего.
func (c *Controller) ChangeCustomer(customer *model.Customer) error {
	c.mu.Lock()
	if c.loading.any() {
		c.mu.Unlock()
		return ErrInFlight
	}
	if c.order != nil && c.order.PaymentStatus == model.PaymentStatusPaid {
		c.mu.Unlock()
		return ErrAlreadyPaid
	}
	if customer != nil {
		cust := *customer
		c.customer = &cust
	}
	c.customerConfirmed = false
	c.draft = nil
	c.order = nil
	c.step = StepCustomer
	cb := c.onCustomerNeeded
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Services возвращает услуги каталога, прошедшие фильтр.
func (c *Controller) Services(f catalog.Filters) []model.Service {
	c.mu.Lock()
	services := c.services
	c.mu.Unlock()

	return catalog.Filter(services, f)
}

// CatalogMetadata возвращает сведения о каталоге для построения фильтров.
func (c *Controller) CatalogMetadata() catalog.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalogMeta
}

// ToggleService добавляет услугу в выбор или убирает её, если она уже выбрана.
func (c *Controller) ToggleService(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableLocked(); err != nil {
		return err
	}

	for i, s := range c.selected {
		if s.ID == id {
			c.selected = append(c.selected[:i:i], c.selected[i+1:]...)
			c.invalidateOrderLocked()
			return nil
		}
	}

	for _, s := range c.services {
		if s.ID == id {
			c.selected = append(c.selected, s)
			c.invalidateOrderLocked()
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnknownService, id)
}

// Selected возвращает выбранные услуги в порядке выбора.
func (c *Controller) Selected() []model.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Service(nil), c.selected...)
}

// SetDetails сохраняет данные по выбранной услуге.
func (c *Controller) SetDetails(serviceID string, d model.Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableLocked(); err != nil {
		return err
	}

	svc, ok := c.selectedLocked(serviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotSelected, serviceID)
	}
	if err := validation.Validate(svc.Category, d); err != nil {
		return err
	}

	c.details[serviceID] = d.Clone()
	c.invalidateOrderLocked()
	return nil
}

// Completion возвращает процент заполнения данных по выбранной услуге.
func (c *Controller) Completion(serviceID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	svc, ok := c.selectedLocked(serviceID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrServiceNotSelected, serviceID)
	}
	return validation.Completion(svc.Category, c.details[serviceID]), nil
}

// SetMeta задаёт примечания, статус, приоритет и плановую дату заказа.
func (c *Controller) SetMeta(meta model.OrderMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableLocked(); err != nil {
		return err
	}

	if meta.Status == "" {
		meta.Status = model.OrderStatusPending
	}
	if meta.Priority == "" {
		meta.Priority = model.PriorityNormal
	}
	c.orderMeta = meta
	c.invalidateOrderLocked()
	return nil
}

// Next переходит на следующий шаг, если выполнено условие перехода.
// С шага данных по услугам переход создаёт заказ в хранилище.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()

	switch c.step {
	case StepCustomer:
		if !c.customerConfirmed {
			c.mu.Unlock()
			return ErrCustomerNotConfirmed
		}

	case StepServices:
		if len(c.selected) == 0 {
			c.mu.Unlock()
			return ErrNoServices
		}

	case StepDetails:
		if !c.detailsCompleteLocked() {
			c.mu.Unlock()
			return ErrIncompleteDetails
		}
		if !c.paidLocked() {
			c.mu.Unlock()
			_, err := c.createOrder(ctx, StepSummary, StepDetails)
			return err
		}

	case StepSummary:
		if c.order == nil {
			if c.loading.Order {
				c.mu.Unlock()
				return ErrOrderPending
			}
			if c.draft == nil {
				c.mu.Unlock()
				return ErrNoOrder
			}
			c.mu.Unlock()
			_, err := c.createOrder(ctx, StepPayment, StepSummary)
			return err
		}

	case StepPayment:
		if !c.paidLocked() {
			c.mu.Unlock()
			return ErrNotPaid
		}

	default:
		c.mu.Unlock()
		return ErrLastStep
	}

	c.step++
	c.mu.Unlock()
	return nil
}

// Back возвращает мастер на предыдущий шаг без проверок и побочных эффектов.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepCustomer {
		return ErrFirstStep
	}
	c.step--
	return nil
}

// Reset очищает выбор услуг, данные и заказ, сохраняя клиента.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading.any() {
		return ErrInFlight
	}

	c.selected = nil
	c.details = make(map[string]model.Details)
	c.orderMeta = model.DefaultOrderMeta()
	c.draft = nil
	c.order = nil
	c.paymentErr = ""
	c.step = StepCustomer
	if c.customerConfirmed {
		c.step = StepServices
	}
	return nil
}

// Busy сообщает, выполняется ли сейчас какая-либо асинхронная операция.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading.any()
}

// Step возвращает текущий шаг.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Controller) notify(severity notify.Severity, message string) {
	c.notifier.Notify(notify.New(severity, message))
}

func (c *Controller) mutableLocked() error {
	if c.loading.Order || c.loading.Payment {
		return ErrInFlight
	}
	if c.paidLocked() {
		return ErrAlreadyPaid
	}
	return nil
}

// invalidateOrderLocked сбрасывает неоплаченный заказ после изменения его содержимого.
// Черновик сохраняется, поэтому повторное создание использует прежний номер.
func (c *Controller) invalidateOrderLocked() {
	if c.order != nil && c.order.PaymentStatus != model.PaymentStatusPaid {
		c.order = nil
	}
}

func (c *Controller) paidLocked() bool {
	return c.order != nil && c.order.PaymentStatus == model.PaymentStatusPaid
}

func (c *Controller) selectedLocked(id string) (model.Service, bool) {
	for _, s := range c.selected {
		if s.ID == id {
			return s, true
		}
	}
	return model.Service{}, false
}

func (c *Controller) detailsCompleteLocked() bool {
	for _, s := range c.selected {
		if !validation.IsComplete(s.Category, c.details[s.ID]) {
			return false
		}
	}
	return true
}
