package wizard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/quickorder/internal/catalog"
	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
	"github.com/mmeshcher/quickorder/internal/payment"
)

type remoteErr struct {
	status int
	msg    string
}

func (e *remoteErr) Error() string         { return "unexpected status" }
func (e *remoteErr) RemoteMessage() string { return e.msg }

type stubCatalog struct {
	services []model.Service
	err      error
	calls    int
}

func (s *stubCatalog) ListServices(ctx context.Context) ([]model.Service, error) {
	s.calls++
	return s.services, s.err
}

type stubOrders struct {
	mu sync.Mutex

	createReqs  []model.OrderRequest
	createErr   error
	createPanic bool
	grandTotal  *decimal.Decimal

	updateIDs  []string
	updates    []model.OrderUpdate
	updateErrs []error

	getCalls int
	getErr   error

	// strict отклоняет смену статуса оплаты у заказа, который уже не ожидает оплаты.
	strict bool
	status model.PaymentStatus
}

func (s *stubOrders) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createPanic {
		panic("order store exploded")
	}
	s.createReqs = append(s.createReqs, req)
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.status = model.PaymentStatusPending
	return s.buildOrder(req), nil
}

func (s *stubOrders) buildOrder(req model.OrderRequest) *model.Order {
	o := &model.Order{
		ID:              "ord-1",
		OrderReference:  req.OrderReference,
		CustomerID:      req.CustomerID,
		ItemsTotal:      req.ItemsTotal,
		GrandTotalToPay: req.GrandTotalToPay,
		CreatedAt:       time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		OrderMeta:       req.OrderMeta,
	}
	if s.grandTotal != nil {
		o.GrandTotalToPay = *s.grandTotal
	}
	for _, it := range req.Services {
		o.Items = append(o.Items, model.OrderItem{
			ServiceID:   it.ServiceID,
			ServiceType: it.ServiceType,
			Price:       it.Price,
			Details:     it.Details,
		})
	}
	return o
}

func (s *stubOrders) UpdateOrder(ctx context.Context, id string, upd model.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.updates)
	s.updateIDs = append(s.updateIDs, id)
	s.updates = append(s.updates, upd)
	if idx < len(s.updateErrs) && s.updateErrs[idx] != nil {
		return s.updateErrs[idx]
	}
	if s.strict && s.status != model.PaymentStatusPending {
		return fmt.Errorf("invalid payment status transition: %s to %s", s.status, upd.PaymentStatus)
	}
	s.status = upd.PaymentStatus
	return nil
}

func (s *stubOrders) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	o := s.buildOrder(s.createReqs[len(s.createReqs)-1])
	if n := len(s.updates); n > 0 {
		upd := s.updates[n-1]
		o.PaymentStatus = upd.PaymentStatus
		o.PaymentIntentID = upd.PaymentIntentID
		for i, ref := range upd.ServiceReferences {
			o.Items[i].ServiceReference = ref.Reference
		}
	}
	return o, nil
}

type stubPaymentClient struct {
	intent payment.Intent
	err    error
	reqs   []payment.ConfirmRequest
}

func (c *stubPaymentClient) Confirm(ctx context.Context, req payment.ConfirmRequest) (payment.Intent, error) {
	c.reqs = append(c.reqs, req)
	return c.intent, c.err
}

type stubPayments struct {
	client *stubPaymentClient
	err    error
}

func (p *stubPayments) NewClient(ctx context.Context) (payment.Client, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

type stubDirectory struct {
	customer *model.Customer
	err      error
}

func (d *stubDirectory) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	return d.customer, d.err
}

var (
	cardService = model.Service{
		ID: "svc-card", Category: model.CategoryCards, Title: "CSCS Green Card",
		Price: decimal.NewFromInt(50), Status: "active",
	}
	courseService = model.Service{
		ID: "svc-course", Category: model.CategoryCourses, Title: "SSSTS",
		Price: decimal.NewFromInt(150), Status: "active",
	}
	testService = model.Service{
		ID: "svc-test", Category: model.CategoryTests, Title: "CITB HS&E",
		Status: "active",
	}
)

var (
	cardDetails   = model.Details{"cardType": "New"}
	courseDetails = model.Details{"startDate": "2026-11-10", "location": "Manchester", "courseType": "SSSTS"}
	testDetails   = model.Details{"testDate": "2026-11-04", "testTime": "09:30", "testCentre": "Leeds"}
)

type fixture struct {
	ctrl      *Controller
	orders    *stubOrders
	client    *stubPaymentClient
	notes     *notify.Recorder
	successes []model.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders: &stubOrders{},
		client: &stubPaymentClient{intent: payment.Intent{ID: "pi_123", Status: payment.StatusSucceeded}},
		notes:  notify.NewRecorder(100),
	}
	f.ctrl = New(Options{
		Customer: &model.Customer{ID: "cust-1", FirstName: "Jo", LastName: "Bloggs", Email: "jo@example.com", Status: model.CustomerStatusActive},
		Services: []model.Service{cardService, courseService, testService},
		Orders:   f.orders,
		Payments: &stubPayments{client: f.client},
		Notifier: f.notes,
		OnSuccess: func(o model.Order) {
			f.successes = append(f.successes, o)
		},
	})
	f.ctrl.Mount(context.Background())
	return f
}

// toDetails проводит мастер до шага данных с выбранными картой и курсом.
func (f *fixture) toDetails(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.ctrl.ConfirmCustomer(ctx))
	require.NoError(t, f.ctrl.Next(ctx))
	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	require.NoError(t, f.ctrl.ToggleService(courseService.ID))
	require.NoError(t, f.ctrl.Next(ctx))
	require.Equal(t, StepDetails, f.ctrl.Step())
}

// toSummary проводит мастер до шага сводки с созданным заказом.
func (f *fixture) toSummary(t *testing.T) {
	t.Helper()

	f.toDetails(t)
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, courseDetails))
	require.NoError(t, f.ctrl.Next(context.Background()))
	require.Equal(t, StepSummary, f.ctrl.Step())
}

// toPayment проводит мастер до шага оплаты.
func (f *fixture) toPayment(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	f.toSummary(t)
	require.NoError(t, f.ctrl.Next(ctx))
	require.Equal(t, StepPayment, f.ctrl.Step())
}

func hasNotification(notes []notify.Notification, severity notify.Severity) bool {
	for _, n := range notes {
		if n.Severity == severity {
			return true
		}
	}
	return false
}

func TestGenerateOrderReference(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{6}-\d{4}$`)

	orig := now
	t.Cleanup(func() { now = orig })

	now = func() time.Time { return time.UnixMilli(1760000000123) }
	first := GenerateOrderReference()
	now = func() time.Time { return time.UnixMilli(1760000000456) }
	second := GenerateOrderReference()

	assert.Regexp(t, pattern, first)
	assert.Regexp(t, pattern, second)
	assert.Equal(t, "ORD-000123-", first[:11])
	assert.NotEqual(t, first, second)
}

func TestToggleService(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	assert.Empty(t, f.ctrl.Selected())

	require.NoError(t, f.ctrl.ToggleService(courseService.ID))
	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	selected := f.ctrl.Selected()
	require.Len(t, selected, 2)
	assert.Equal(t, courseService.ID, selected[0].ID)
	assert.Equal(t, cardService.ID, selected[1].ID)

	err := f.ctrl.ToggleService("missing")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestNext_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.ctrl.Back(), ErrFirstStep)
	assert.ErrorIs(t, f.ctrl.Next(ctx), ErrCustomerNotConfirmed)
	assert.False(t, f.ctrl.State().CanProceed)

	require.NoError(t, f.ctrl.ConfirmCustomer(ctx))
	assert.True(t, f.ctrl.State().CanProceed)
	require.NoError(t, f.ctrl.Next(ctx))

	assert.False(t, f.ctrl.State().CanProceed, "next must be disabled without services")
	assert.ErrorIs(t, f.ctrl.Next(ctx), ErrNoServices)

	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	require.NoError(t, f.ctrl.Next(ctx))
	assert.ErrorIs(t, f.ctrl.Next(ctx), ErrIncompleteDetails)
	assert.Empty(t, f.orders.createReqs)

	require.NoError(t, f.ctrl.Back())
	assert.Equal(t, StepServices, f.ctrl.Step())
}

func TestSetDetails(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.SetDetails(cardService.ID, cardDetails)
	assert.ErrorIs(t, err, ErrServiceNotSelected)

	require.NoError(t, f.ctrl.ToggleService(cardService.ID))
	err = f.ctrl.SetDetails(cardService.ID, model.Details{"cardType": "Gold"})
	assert.Error(t, err)

	require.NoError(t, f.ctrl.SetDetails(cardService.ID, model.Details{}))
	pct, err := f.ctrl.Completion(cardService.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pct)

	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	pct, err = f.ctrl.Completion(cardService.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)
	assert.Equal(t, 100, f.ctrl.State().Completion[cardService.ID])
}

func TestCreateOrder_NoServices(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.CreateOrder(context.Background())

	assert.ErrorIs(t, err, ErrNoServices)
	assert.Empty(t, f.orders.createReqs)
	notes := f.notes.Peek()
	require.NotEmpty(t, notes)
	assert.Equal(t, "No services selected", notes[len(notes)-1].Message)
}

func TestCreateOrder_NoCustomer(t *testing.T) {
	orders := &stubOrders{}
	ctrl := New(Options{Services: []model.Service{cardService}, Orders: orders})
	require.NoError(t, ctrl.ToggleService(cardService.ID))

	_, err := ctrl.CreateOrder(context.Background())

	assert.ErrorIs(t, err, ErrNoCustomer)
	assert.Empty(t, orders.createReqs)
}

func TestCreateOrder_BuildsRequest(t *testing.T) {
	f := newFixture(t)
	f.toDetails(t)
	require.NoError(t, f.ctrl.ToggleService(testService.ID))
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, courseDetails))
	require.NoError(t, f.ctrl.SetDetails(testService.ID, testDetails))
	require.NoError(t, f.ctrl.SetMeta(model.OrderMeta{Notes: "call before delivery", Priority: model.PriorityHigh}))

	order, err := f.ctrl.CreateOrder(context.Background())
	require.NoError(t, err)
	require.NotNil(t, order)

	require.Len(t, f.orders.createReqs, 1)
	req := f.orders.createReqs[0]
	assert.Equal(t, "cust-1", req.CustomerID)
	assert.Equal(t, "call before delivery", req.Notes)
	assert.Equal(t, model.PriorityHigh, req.Priority)
	assert.Equal(t, model.OrderStatusPending, req.Status)
	require.Len(t, req.Services, 3)
	assert.Equal(t, "card", req.Services[0].ServiceType)
	assert.Equal(t, "course", req.Services[1].ServiceType)
	assert.Equal(t, "test", req.Services[2].ServiceType)
	assert.Equal(t, "New", req.Services[0].Details["cardType"])
	assert.True(t, req.ItemsTotal.Equal(decimal.NewFromInt(200)), "itemsTotal = %s", req.ItemsTotal)
	assert.True(t, req.GrandTotalToPay.Equal(decimal.NewFromInt(200)), "grandTotalToPay = %s", req.GrandTotalToPay)

	st := f.ctrl.State()
	assert.Equal(t, StepSummary, st.Step)
	require.NotNil(t, st.Draft)
	assert.Equal(t, st.Draft.OrderReference, req.OrderReference)
	assert.False(t, st.Loading.Order)
	assert.True(t, hasNotification(f.notes.Peek(), notify.SeveritySuccess))
}

func TestCreateOrder_ReusesReference(t *testing.T) {
	f := newFixture(t)
	f.toSummary(t)

	_, err := f.ctrl.CreateOrder(context.Background())
	require.NoError(t, err)

	require.Len(t, f.orders.createReqs, 2)
	assert.Equal(t, f.orders.createReqs[0].OrderReference, f.orders.createReqs[1].OrderReference)
	assert.Equal(t, StepSummary, f.ctrl.Step())
}

func TestCreateOrder_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.ctrl.ToggleService(cardService.ID))

	_, err := f.ctrl.CreateOrder(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)
	st := f.ctrl.State()
	assert.Equal(t, StepCustomer, st.Step)
	assert.False(t, st.CustomerConfirmed)
	assert.Equal(t, 0, st.Completion[cardService.ID])

	require.NoError(t, f.ctrl.ConfirmCustomer(ctx))
	require.NoError(t, f.ctrl.Next(ctx))
	_, err = f.ctrl.CreateOrder(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)

	require.NoError(t, f.ctrl.Next(ctx))
	_, err = f.ctrl.CreateOrder(ctx)
	assert.ErrorIs(t, err, ErrIncompleteDetails)

	require.NoError(t, f.ctrl.ChangeCustomer(&model.Customer{ID: "cust-2"}))
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	_, err = f.ctrl.CreateOrder(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)

	assert.Empty(t, f.orders.createReqs)
	assert.Nil(t, f.ctrl.State().Order)
}

func TestCreateOrder_RefusedWhilePaying(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)
	before := f.ctrl.State().Order

	f.ctrl.mu.Lock()
	f.ctrl.loading.Payment = true
	f.ctrl.step = StepSummary
	f.ctrl.mu.Unlock()

	_, err := f.ctrl.CreateOrder(context.Background())

	assert.ErrorIs(t, err, ErrInFlight)
	assert.Len(t, f.orders.createReqs, 1)
	assert.Equal(t, before, f.ctrl.State().Order)
}

func TestCreateOrder_FailureKeepsStep(t *testing.T) {
	f := newFixture(t)
	f.orders.createErr = &remoteErr{status: 422, msg: "Customer account is on hold"}
	f.toDetails(t)
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, courseDetails))

	err := f.ctrl.Next(context.Background())

	require.Error(t, err)
	st := f.ctrl.State()
	assert.Equal(t, StepDetails, st.Step)
	assert.Nil(t, st.Order)
	assert.False(t, st.Loading.Order)
	notes := f.notes.Peek()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, notify.SeverityError, last.Severity)
	assert.Equal(t, "Failed to create order: Customer account is on hold", last.Message)
}

func TestCreateOrder_PanicClearsLoading(t *testing.T) {
	f := newFixture(t)
	f.toDetails(t)
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, courseDetails))
	f.orders.createPanic = true

	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		_, _ = f.ctrl.CreateOrder(context.Background())
	}()

	assert.False(t, f.ctrl.Busy())
}

func TestSummaryWithDraftOnly_CreatesOrderAndAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.toDetails(t)
	require.NoError(t, f.ctrl.SetDetails(cardService.ID, cardDetails))
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, courseDetails))
	require.NoError(t, f.ctrl.Next(ctx))
	ref := f.ctrl.State().Draft.OrderReference

	// Изменение примечаний сбрасывает неоплаченный заказ, черновик остаётся.
	require.NoError(t, f.ctrl.SetMeta(model.OrderMeta{Notes: "updated"}))
	st := f.ctrl.State()
	require.Nil(t, st.Order)
	require.NotNil(t, st.Draft)
	assert.True(t, st.CanProceed)

	require.NoError(t, f.ctrl.Next(ctx))

	st = f.ctrl.State()
	assert.Equal(t, StepPayment, st.Step)
	require.NotNil(t, st.Order)
	require.Len(t, f.orders.createReqs, 2)
	assert.Equal(t, ref, f.orders.createReqs[1].OrderReference)
	assert.Equal(t, "updated", f.orders.createReqs[1].Notes)
}

func TestPaymentScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	total := decimal.NewFromInt(200)
	f.orders.grandTotal = &total

	f.toPayment(t)
	st := f.ctrl.State()
	require.NotNil(t, st.Order)
	assert.True(t, st.Order.GrandTotalToPay.Equal(total))
	ref := st.Order.OrderReference

	res := f.ctrl.HandlePayment(ctx, payment.Intent{ID: "pi_123", Status: payment.StatusSucceeded})

	assert.Equal(t, PaymentResult{ID: "pi_123", Status: payment.StatusSucceeded}, res)
	require.Len(t, f.orders.updates, 1)
	upd := f.orders.updates[0]
	assert.Equal(t, "ord-1", f.orders.updateIDs[0])
	assert.Equal(t, model.PaymentStatusPaid, upd.PaymentStatus)
	assert.Equal(t, 2, int(upd.PaymentStatus))
	assert.Equal(t, "pi_123", upd.PaymentIntentID)
	assert.Equal(t, []model.ServiceReference{
		{ServiceID: cardService.ID, Reference: ref + "-S1"},
		{ServiceID: courseService.ID, Reference: ref + "-S2"},
	}, upd.ServiceReferences)
	assert.Equal(t, 1, f.orders.getCalls)

	st = f.ctrl.State()
	assert.Equal(t, StepConfirmation, st.Step)
	assert.Equal(t, model.PaymentStatusPaid, st.Order.PaymentStatus)
	assert.Equal(t, ref+"-S2", st.Order.Items[1].ServiceReference)
	assert.Empty(t, st.PaymentError)
	assert.False(t, st.Loading.Payment)

	require.Len(t, f.successes, 1)
	assert.Equal(t, "pi_123", f.successes[0].PaymentIntentID)

	again := f.ctrl.HandlePayment(ctx, payment.Intent{ID: "pi_123"})
	assert.Equal(t, resultStatusFailed, again.Status)
	assert.Len(t, f.successes, 1)
	assert.ErrorIs(t, f.ctrl.Next(ctx), ErrLastStep)
}

func TestHandlePayment_MissingIntentID(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)

	res := f.ctrl.HandlePayment(context.Background(), payment.Intent{Status: payment.StatusSucceeded})

	assert.Equal(t, "error", res.ID)
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, ErrMissingIntent.Error(), res.Error)
	assert.Empty(t, f.orders.updates)
	assert.Equal(t, StepPayment, f.ctrl.Step())
}

func TestHandlePayment_UpdateFailsCompensates(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)
	f.orders.updateErrs = []error{
		&remoteErr{status: 500, msg: "Database unavailable"},
		errors.New("still unavailable"),
	}

	res := f.ctrl.HandlePayment(context.Background(), payment.Intent{ID: "pi_999", Status: payment.StatusSucceeded})

	assert.Equal(t, PaymentResult{ID: "pi_999", Status: "failed", Error: "Database unavailable"}, res)
	st := f.ctrl.State()
	assert.Equal(t, StepPayment, st.Step)
	assert.Equal(t, "Database unavailable", st.PaymentError)
	assert.False(t, st.Loading.Payment)
	assert.Empty(t, f.successes)
	assert.Equal(t, 0, f.orders.getCalls)
	require.NotNil(t, st.Order, "order must stay when it could not be cancelled")

	require.Len(t, f.orders.updates, 2)
	comp := f.orders.updates[1]
	assert.Equal(t, model.PaymentStatusCancelled, comp.PaymentStatus)
	assert.Equal(t, 3, int(comp.PaymentStatus))
	assert.Equal(t, "Database unavailable", comp.PaymentError)
}

func TestHandlePayment_RetryAfterCancelledOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.orders.strict = true
	f.toPayment(t)
	ref := f.ctrl.State().Order.OrderReference
	f.orders.updateErrs = []error{errors.New("connection reset")}

	first := f.ctrl.HandlePayment(ctx, payment.Intent{ID: "pi_1", Status: payment.StatusSucceeded})

	assert.Equal(t, PaymentResult{ID: "pi_1", Status: "failed", Error: "connection reset"}, first)
	assert.Equal(t, model.PaymentStatusCancelled, f.orders.status)
	st := f.ctrl.State()
	assert.Equal(t, StepPayment, st.Step)
	assert.Nil(t, st.Order)
	require.NotNil(t, st.Draft)

	second := f.ctrl.HandlePayment(ctx, payment.Intent{ID: "pi_2", Status: payment.StatusSucceeded})

	assert.Equal(t, PaymentResult{ID: "pi_2", Status: payment.StatusSucceeded}, second)
	require.Len(t, f.orders.createReqs, 2)
	assert.Equal(t, ref, f.orders.createReqs[1].OrderReference)
	st = f.ctrl.State()
	assert.Equal(t, StepConfirmation, st.Step)
	assert.Equal(t, model.PaymentStatusPaid, st.Order.PaymentStatus)
	assert.Empty(t, st.PaymentError)
	require.Len(t, f.successes, 1)
	assert.Equal(t, "pi_2", f.successes[0].PaymentIntentID)
}

func TestPayment_RequiresPaymentStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.toSummary(t)

	res := f.ctrl.ConfirmPayment(ctx, "pm_card_visa")
	assert.Equal(t, resultStatusFailed, res.Status)
	assert.Equal(t, ErrWrongStep.Error(), res.Error)
	assert.Empty(t, f.client.reqs)

	res = f.ctrl.HandlePayment(ctx, payment.Intent{ID: "pi_123"})
	assert.Equal(t, resultStatusFailed, res.Status)
	assert.Empty(t, f.orders.updates)

	require.NoError(t, f.ctrl.Next(ctx))
	require.NoError(t, f.ctrl.Back())
	require.NoError(t, f.ctrl.Back())
	require.Equal(t, StepDetails, f.ctrl.Step())

	res = f.ctrl.ConfirmPayment(ctx, "pm_card_visa")
	assert.Equal(t, ErrWrongStep.Error(), res.Error)
	assert.Empty(t, f.client.reqs)
	assert.Empty(t, f.successes)

	require.NoError(t, f.ctrl.Next(ctx))
	require.NoError(t, f.ctrl.Next(ctx))
	res = f.ctrl.ConfirmPayment(ctx, "pm_card_visa")
	assert.Empty(t, res.Error)
	assert.Equal(t, StepConfirmation, f.ctrl.Step())
}

func TestState_IsolatedFromNestedDetails(t *testing.T) {
	f := newFixture(t)
	f.toDetails(t)
	attendee := map[string]any{"name": "Sam Carter", "email": "sam@example.com"}
	require.NoError(t, f.ctrl.SetDetails(courseService.ID, model.Details{
		"startDate": "2026-11-10", "location": "Manchester", "courseType": "SSSTS",
		"differentAttendee": true, "attendee": attendee,
	}))

	attendee["name"] = ""
	st := f.ctrl.State()
	st.Details[courseService.ID]["attendee"].(map[string]any)["email"] = ""

	pct, err := f.ctrl.Completion(courseService.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)
	name, _ := f.ctrl.State().Details[courseService.ID].Lookup("attendee.name")
	assert.Equal(t, "Sam Carter", name)
}

func TestHandlePayment_ReloadFailureUsesLocalCopy(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)
	f.orders.getErr = errors.New("timeout")

	res := f.ctrl.HandlePayment(context.Background(), payment.Intent{ID: "pi_123", Status: payment.StatusSucceeded})

	assert.Empty(t, res.Error)
	st := f.ctrl.State()
	assert.Equal(t, StepConfirmation, st.Step)
	assert.Equal(t, model.PaymentStatusPaid, st.Order.PaymentStatus)
	assert.Equal(t, "pi_123", st.Order.PaymentIntentID)
	assert.Len(t, f.orders.updates, 1)
	assert.Len(t, f.successes, 1)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)

	res := f.ctrl.ConfirmPayment(context.Background(), "pm_card_visa")

	assert.Equal(t, "pi_123", res.ID)
	assert.Empty(t, res.Error)
	require.Len(t, f.client.reqs, 1)
	req := f.client.reqs[0]
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "gbp", req.Currency)
	assert.Equal(t, "jo@example.com", req.ReceiptEmail)
	assert.Equal(t, StepConfirmation, f.ctrl.Step())
}

func TestConfirmPayment_Declined(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)
	f.client.intent = payment.Intent{}
	f.client.err = errors.New("payment confirmation failed: Your card was declined.")

	res := f.ctrl.ConfirmPayment(context.Background(), "pm_card_chargeDeclined")

	assert.Equal(t, PaymentResult{ID: "error", Status: "failed", Error: "payment confirmation failed: Your card was declined."}, res)
	assert.Empty(t, f.orders.updates)
	assert.Equal(t, StepPayment, f.ctrl.Step())
}

func TestMount_PaymentClientFailure(t *testing.T) {
	ctrl := New(Options{
		Customer: &model.Customer{ID: "cust-1"},
		Services: []model.Service{cardService},
		Orders:   &stubOrders{},
		Payments: &stubPayments{err: payment.ErrNotConfigured},
	})
	ctrl.Mount(context.Background())

	st := ctrl.State()
	assert.Contains(t, st.PaymentClientError, "not configured")

	res := ctrl.HandlePayment(context.Background(), payment.Intent{ID: "pi_1"})
	assert.Equal(t, "error", res.ID)
	assert.Equal(t, "failed", res.Status)
	assert.Contains(t, res.Error, ErrPaymentClient.Error())
}

func TestMount_LoadsCatalog(t *testing.T) {
	provider := &stubCatalog{services: []model.Service{cardService, courseService}}
	ctrl := New(Options{Catalog: provider, Orders: &stubOrders{}})

	ctrl.Mount(context.Background())

	assert.Equal(t, 1, provider.calls)
	meta := ctrl.CatalogMetadata()
	assert.Equal(t, []model.Category{model.CategoryCards, model.CategoryCourses}, meta.Categories)
	assert.True(t, meta.MaxPrice.Equal(decimal.NewFromInt(150)))
	assert.Len(t, ctrl.Services(catalog.DefaultFilters(meta)), 2)
}

func TestMount_SuppliedCatalogSkipsProvider(t *testing.T) {
	provider := &stubCatalog{}
	ctrl := New(Options{Services: []model.Service{cardService}, Catalog: provider, Orders: &stubOrders{}})

	ctrl.Mount(context.Background())

	assert.Equal(t, 0, provider.calls)
}

func TestMount_CatalogFailureNotifies(t *testing.T) {
	rec := notify.NewRecorder(10)
	ctrl := New(Options{
		Catalog:  &stubCatalog{err: &remoteErr{status: 503, msg: "Service catalogue offline"}},
		Orders:   &stubOrders{},
		Notifier: rec,
	})

	ctrl.Mount(context.Background())

	assert.False(t, ctrl.State().Loading.Services)
	notes := rec.Peek()
	require.NotEmpty(t, notes)
	assert.Equal(t, "Failed to load services: Service catalogue offline", notes[0].Message)
}

func TestConfirmCustomer_Directory(t *testing.T) {
	ctx := context.Background()

	blocked := New(Options{
		Customer:  &model.Customer{ID: "cust-1", Status: model.CustomerStatusActive},
		Customers: &stubDirectory{customer: &model.Customer{ID: "cust-1", Status: model.CustomerStatusBlocked}},
		Orders:    &stubOrders{},
	})
	assert.ErrorIs(t, blocked.ConfirmCustomer(ctx), ErrCustomerCannotOrder)
	assert.False(t, blocked.State().CustomerConfirmed)

	active := New(Options{
		Customer:  &model.Customer{ID: "cust-1"},
		Customers: &stubDirectory{customer: &model.Customer{ID: "cust-1", FirstName: "Jo", Status: model.CustomerStatusActive}},
		Orders:    &stubOrders{},
	})
	require.NoError(t, active.ConfirmCustomer(ctx))
	st := active.State()
	assert.True(t, st.CustomerConfirmed)
	assert.Equal(t, "Jo", st.Customer.FirstName)
	assert.False(t, st.Loading.Customer)

	none := New(Options{Orders: &stubOrders{}})
	assert.ErrorIs(t, none.ConfirmCustomer(ctx), ErrNoCustomer)
}

func TestChangeCustomer(t *testing.T) {
	f := newFixture(t)
	called := 0
	f.ctrl.onCustomerNeeded = func() { called++ }
	f.toDetails(t)

	require.NoError(t, f.ctrl.ChangeCustomer(&model.Customer{ID: "cust-2"}))

	st := f.ctrl.State()
	assert.Equal(t, 1, called)
	assert.Equal(t, StepCustomer, st.Step)
	assert.False(t, st.CustomerConfirmed)
	assert.Equal(t, "cust-2", st.Customer.ID)
	assert.Len(t, st.Selected, 2)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.toPayment(t)

	require.NoError(t, f.ctrl.Reset())

	st := f.ctrl.State()
	assert.Equal(t, StepServices, st.Step)
	assert.Empty(t, st.Selected)
	assert.Nil(t, st.Draft)
	assert.Nil(t, st.Order)
}
