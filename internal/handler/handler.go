// Package handler содержит HTTP-обработчики API сервиса оформления заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/middleware"
	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/orderapi"
	"github.com/mmeshcher/quickorder/internal/repository"
	"github.com/mmeshcher/quickorder/internal/service"
	"github.com/mmeshcher/quickorder/internal/wizard"
)

// Service определяет контракт хранилища заказов, используемый HTTP-обработчиками.
type Service interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	UpdateOrder(ctx context.Context, id string, upd model.OrderUpdate) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса оформления заказов.
type Handler struct {
	service  Service
	registry *wizard.Registry
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, registry *wizard.Registry, logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service:  s,
		registry: registry,
		logger:   logger,
		sessions: sessions,
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отвечает кодом и сообщением ошибки в JSON.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Message: msg})
}

// ListServices возвращает каталог услуг.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// GetCustomer возвращает клиента по идентификатору.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		if isCustomerNotFound(err) {
			writeError(w, http.StatusNotFound, repository.ErrCustomerNotFound.Error())
			return
		}
		h.logger.Error("get customer error", zap.Error(err), zap.String("customer", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

// CreateOrder создаёт заказ. Повторный запрос с тем же номером заменяет неоплаченный заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, "create order error", req.OrderReference, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "get order error", id, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// UpdateOrder меняет статус оплаты заказа и возвращает обновлённый заказ.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var upd model.OrderUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrder(r.Context(), id, upd); err != nil {
		h.writeStoreError(w, "update order error", id, err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "get order error", id, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// isCustomerNotFound сообщает, что клиент не найден в базе или в удалённом API.
func isCustomerNotFound(err error) bool {
	var apiErr *orderapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return errors.Is(err, repository.ErrCustomerNotFound)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, msg, order string, err error) {
	var apiErr *orderapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		message := apiErr.RemoteMessage()
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}
		writeError(w, apiErr.StatusCode, message)
		return
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderReferenceConflict),
		errors.Is(err, repository.ErrPaymentStatusChanged),
		errors.Is(err, service.ErrInvalidPaymentTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrUnknownService),
		errors.Is(err, service.ErrCustomerCannotOrder),
		errors.Is(err, repository.ErrCustomerNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("order", order))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
