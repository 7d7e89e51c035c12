package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/catalog"
	"github.com/mmeshcher/quickorder/internal/middleware"
	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
	"github.com/mmeshcher/quickorder/internal/payment"
	"github.com/mmeshcher/quickorder/internal/repository"
	"github.com/mmeshcher/quickorder/internal/validation"
	"github.com/mmeshcher/quickorder/internal/wizard"
)

type customerRequest struct {
	CustomerID string `json:"customerId"`
}

type servicesResponse struct {
	Services []model.Service  `json:"services"`
	Metadata catalog.Metadata `json:"metadata"`
	Filters  catalog.Filters  `json:"filters"`
}

type paymentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

// StartWizard открывает сессию мастера для клиента и устанавливает cookie сессии.
func (h *Handler) StartWizard(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	customer, ok := h.lookupCustomer(w, r, req.CustomerID)
	if !ok {
		return
	}

	s := h.registry.Start(r.Context(), customer)
	h.sessions.SetSessionCookie(w, s.ID)

	writeJSON(w, http.StatusCreated, s.Controller.State())
}

// lookupCustomer возвращает клиента по идентификатору; пустой идентификатор означает
// отсутствие клиента. При ошибке ответ уже записан.
func (h *Handler) lookupCustomer(w http.ResponseWriter, r *http.Request, id string) (*model.Customer, bool) {
	if id == "" {
		return nil, true
	}

	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		if isCustomerNotFound(err) {
			writeError(w, http.StatusNotFound, repository.ErrCustomerNotFound.Error())
			return nil, false
		}
		h.logger.Error("get customer error", zap.Error(err), zap.String("customer", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return customer, true
}

// session возвращает сессию мастера текущего запроса. При ошибке ответ уже записан.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	id, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	s, ok := h.registry.Get(id)
	if !ok {
		h.sessions.ClearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "wizard session expired")
		return nil, false
	}
	return s, true
}

// GetWizard возвращает состояние мастера.
func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.State())
}

// CloseWizard закрывает сессию мастера.
func (h *Handler) CloseWizard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.registry.Remove(s.ID)
	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmCustomer подтверждает клиента мастера.
func (h *Handler) ConfirmCustomer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller.ConfirmCustomer(r.Context()))
}

// ChangeCustomer возвращает мастер к выбору клиента, при необходимости заменяя клиента.
func (h *Handler) ChangeCustomer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req customerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	customer, ok := h.lookupCustomer(w, r, req.CustomerID)
	if !ok {
		return
	}

	h.respond(w, s, s.Controller.ChangeCustomer(customer))
}

// ListWizardServices возвращает каталог мастера с учётом фильтров из строки запроса.
func (h *Handler) ListWizardServices(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	meta := s.Controller.CatalogMetadata()
	filters, err := parseFilters(r, catalog.DefaultFilters(meta))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	services := s.Controller.Services(filters)
	if services == nil {
		services = []model.Service{}
	}

	writeJSON(w, http.StatusOK, servicesResponse{
		Services: services,
		Metadata: meta,
		Filters:  filters,
	})
}

func parseFilters(r *http.Request, f catalog.Filters) (catalog.Filters, error) {
	q := r.URL.Query()

	if v := q.Get("category"); v != "" {
		f.Category = v
	}
	if v := q.Get("search"); v != "" {
		f.Search = v
	}
	if v := q.Get("location"); v != "" {
		f.Location = v
	}
	if v := q.Get("deliveryMethod"); v != "" {
		f.DeliveryMethod = v
	}
	if v := q.Get("status"); v != "" {
		f.Status = v
	}
	if v := q.Get("prerequisites"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("prerequisites must be a boolean")
		}
		f.Prerequisites = b
	}
	if v := q.Get("minPrice"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.New("minPrice must be a number")
		}
		f.MinPrice = d
	}
	if v := q.Get("maxPrice"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.New("maxPrice must be a number")
		}
		f.MaxPrice = d
	}

	return f, nil
}

// ToggleService добавляет услугу в выбор или убирает её.
func (h *Handler) ToggleService(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller.ToggleService(chi.URLParam(r, "serviceID")))
}

// SetDetails сохраняет данные по выбранной услуге.
func (h *Handler) SetDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var details model.Details
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.respond(w, s, s.Controller.SetDetails(chi.URLParam(r, "serviceID"), details))
}

// SetMeta сохраняет параметры заказа.
func (h *Handler) SetMeta(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var meta model.OrderMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.respond(w, s, s.Controller.SetMeta(meta))
}

// Next переводит мастер на следующий шаг.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller.Next(r.Context()))
}

// Back возвращает мастер на предыдущий шаг.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller.Back())
}

// Reset начинает новый заказ для того же клиента.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller.Reset())
}

// CreateWizardOrder создаёт заказ по текущему выбору мастера.
func (h *Handler) CreateWizardOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	order, err := s.Controller.CreateOrder(r.Context())
	if err != nil {
		h.writeWizardError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// ConfirmPayment подтверждает оплату заказа мастера указанным способом оплаты.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentMethod == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	writePaymentResult(w, s.Controller.ConfirmPayment(r.Context(), req.PaymentMethod))
}

// HandlePaymentIntent сверяет подтверждённое на клиенте платёжное намерение с заказом мастера.
func (h *Handler) HandlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var intent payment.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	writePaymentResult(w, s.Controller.HandlePayment(r.Context(), intent))
}

func writePaymentResult(w http.ResponseWriter, res wizard.PaymentResult) {
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, res)
}

// Notifications возвращает и очищает накопленные уведомления сессии.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	notes := s.Notifications.Drain()
	if notes == nil {
		notes = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// CompletedOrders возвращает заказы, оплаченные в текущей сессии.
func (h *Handler) CompletedOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	orders := s.Completed()
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// respond возвращает состояние мастера или ошибку операции.
func (h *Handler) respond(w http.ResponseWriter, s *wizard.Session, err error) {
	if err != nil {
		h.writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.State())
}

func (h *Handler) writeWizardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wizard.ErrUnknownService),
		errors.Is(err, wizard.ErrServiceNotSelected):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, wizard.ErrInFlight),
		errors.Is(err, wizard.ErrAlreadyPaid),
		errors.Is(err, wizard.ErrOrderPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrNoCustomer),
		errors.Is(err, wizard.ErrCustomerNotConfirmed),
		errors.Is(err, wizard.ErrCustomerCannotOrder),
		errors.Is(err, wizard.ErrNoServices),
		errors.Is(err, wizard.ErrIncompleteDetails),
		errors.Is(err, wizard.ErrFirstStep),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrNoOrder),
		errors.Is(err, wizard.ErrNotPaid),
		errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, validation.ErrInvalidDetails):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Warn("wizard remote call error", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
