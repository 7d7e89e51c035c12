package orderapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/quickorder/internal/model"
)

// ref принимает идентификатор, который сервер присылает строкой либо вложенным объектом с id/_id.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ref(s)
		return nil
	}
	var obj struct {
		ID    string `json:"id"`
		OldID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = ref(firstNonEmpty(obj.ID, obj.OldID))
	return nil
}

type serviceWire struct {
	ID             string          `json:"id"`
	OldID          string          `json:"_id"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
	DeliveryMethod string          `json:"deliveryMethod"`
	Prerequisites  bool            `json:"prerequisites"`
	Status         string          `json:"status"`
}

func (w serviceWire) model() model.Service {
	return model.Service{
		ID:             firstNonEmpty(w.ID, w.OldID),
		Category:       model.Category(strings.ToLower(w.Category)),
		Title:          firstNonEmpty(w.Title, w.Name),
		Price:          w.Price,
		Description:    w.Description,
		Location:       w.Location,
		DeliveryMethod: w.DeliveryMethod,
		Prerequisites:  w.Prerequisites,
		Status:         w.Status,
	}
}

type customerWire struct {
	ID        string `json:"id"`
	OldID     string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
}

func (w customerWire) model() model.Customer {
	return model.Customer{
		ID:        firstNonEmpty(w.ID, w.OldID),
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Email:     w.Email,
		Phone:     w.Phone,
		Status:    model.CustomerStatus(strings.ToLower(w.Status)),
	}
}

type itemWire struct {
	ServiceID        ref             `json:"serviceId"`
	Service          ref             `json:"service"`
	ServiceType      string          `json:"serviceType"`
	Price            decimal.Decimal `json:"price"`
	Details          model.Details   `json:"details"`
	ServiceReference string          `json:"serviceReference"`
}

type orderWire struct {
	ID              string            `json:"id"`
	OldID           string            `json:"_id"`
	OrderReference  string            `json:"orderReference"`
	Customer        ref               `json:"customer"`
	Services        []itemWire        `json:"services"`
	ItemsTotal      *decimal.Decimal  `json:"itemsTotal"`
	Subtotal        *decimal.Decimal  `json:"subtotal"`
	GrandTotalToPay *decimal.Decimal  `json:"grandTotalToPay"`
	TotalAmount     *decimal.Decimal  `json:"totalAmount"`
	Total           *decimal.Decimal  `json:"total"`
	Amount          *decimal.Decimal  `json:"amount"`
	PaymentStatus   *int              `json:"paymentStatus"`
	PaymentIntentID string            `json:"paymentIntentId"`
	PaymentError    string            `json:"paymentError"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	Notes           string            `json:"notes"`
	Status          model.OrderStatus `json:"status"`
	Priority        model.Priority    `json:"priority"`
	ScheduledDate   *time.Time        `json:"scheduledDate"`
}

// model приводит ответ сервера к канонической записи заказа.
func (w orderWire) model() *model.Order {
	o := &model.Order{
		ID:              firstNonEmpty(w.ID, w.OldID),
		OrderReference:  w.OrderReference,
		CustomerID:      string(w.Customer),
		PaymentIntentID: w.PaymentIntentID,
		PaymentError:    w.PaymentError,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
		OrderMeta: model.OrderMeta{
			Notes:         w.Notes,
			Status:        w.Status,
			Priority:      w.Priority,
			ScheduledDate: w.ScheduledDate,
		},
	}
	if w.PaymentStatus != nil {
		o.PaymentStatus = model.PaymentStatus(*w.PaymentStatus)
	}

	prices := make([]decimal.Decimal, 0, len(w.Services))
	for _, it := range w.Services {
		o.Items = append(o.Items, model.OrderItem{
			ServiceID:        firstNonEmpty(string(it.ServiceID), string(it.Service)),
			ServiceType:      it.ServiceType,
			Price:            it.Price,
			Details:          it.Details,
			ServiceReference: it.ServiceReference,
		})
		prices = append(prices, it.Price)
	}
	sum := model.SumPrices(prices...)

	o.ItemsTotal = firstDecimal(sum, w.ItemsTotal, w.Subtotal)
	o.GrandTotalToPay = firstDecimal(o.ItemsTotal, w.GrandTotalToPay, w.TotalAmount, w.Total, w.Amount)
	return o
}

func firstDecimal(fallback decimal.Decimal, values ...*decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
