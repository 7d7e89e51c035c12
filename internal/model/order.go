package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает статус оплаты заказа.
// Числовые значения совпадают с хранимыми в базе и не должны меняться.
type PaymentStatus int

const (
	PaymentStatusPending   PaymentStatus = 0
	PaymentStatusPaid      PaymentStatus = 2
	PaymentStatusCancelled PaymentStatus = 3
)

// String возвращает название статуса оплаты.
func (s PaymentStatus) String() string {
	switch s {
	case PaymentStatusPending:
		return "PENDING"
	case PaymentStatusPaid:
		return "PAID"
	case PaymentStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Valid сообщает, является ли значение известным статусом оплаты.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusCancelled
}

// OrderStatus описывает статус выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Priority описывает срочность заказа.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// OrderMeta содержит параметры заказа, заполняемые оператором.
type OrderMeta struct {
	Notes         string      `json:"notes"`
	Status        OrderStatus `json:"status"`
	Priority      Priority    `json:"priority"`
	ScheduledDate *time.Time  `json:"scheduledDate,omitempty"`
}

// DefaultOrderMeta возвращает параметры нового заказа по умолчанию.
func DefaultOrderMeta() OrderMeta {
	return OrderMeta{
		Status:   OrderStatusPending,
		Priority: PriorityNormal,
	}
}

// DraftItem описывает позицию черновика заказа.
type DraftItem struct {
	ServiceID string          `json:"serviceId"`
	Price     decimal.Decimal `json:"price"`
	Details   Details         `json:"details,omitempty"`
}

// OrderDraft описывает локальный черновик заказа, существующий до ответа хранилища.
type OrderDraft struct {
	OrderReference string      `json:"orderReference"`
	CustomerID     string      `json:"customerId"`
	Items          []DraftItem `json:"items"`
	OrderMeta
}

// OrderRequestItem описывает позицию в запросе на создание заказа.
type OrderRequestItem struct {
	ServiceID   string          `json:"serviceId"`
	Price       decimal.Decimal `json:"price"`
	ServiceType string          `json:"serviceType"`
	Details     Details         `json:"details,omitempty"`
}

// OrderRequest описывает тело запроса на создание заказа в хранилище.
type OrderRequest struct {
	CustomerID      string             `json:"customer"`
	Services        []OrderRequestItem `json:"services"`
	OrderReference  string             `json:"orderReference"`
	ItemsTotal      decimal.Decimal    `json:"itemsTotal"`
	GrandTotalToPay decimal.Decimal    `json:"grandTotalToPay"`
	OrderMeta
}

// OrderItem описывает позицию сохранённого заказа.
type OrderItem struct {
	ServiceID        string          `json:"serviceId"`
	ServiceType      string          `json:"serviceType"`
	Price            decimal.Decimal `json:"price"`
	Details          Details         `json:"details,omitempty"`
	ServiceReference string          `json:"serviceReference,omitempty"`
}

// Order описывает каноническую запись заказа, возвращаемая хранилищем.
type Order struct {
	ID              string          `json:"id"`
	OrderReference  string          `json:"orderReference"`
	CustomerID      string          `json:"customer"`
	Items           []OrderItem     `json:"services"`
	ItemsTotal      decimal.Decimal `json:"itemsTotal"`
	GrandTotalToPay decimal.Decimal `json:"grandTotalToPay"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	PaymentError    string          `json:"paymentError,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	OrderMeta
}

// ServiceReference связывает позицию заказа с её внешним номером.
type ServiceReference struct {
	ServiceID string `json:"serviceId"`
	Reference string `json:"reference"`
}

// OrderUpdate описывает тело запроса на обновление статуса оплаты заказа.
type OrderUpdate struct {
	PaymentStatus     PaymentStatus      `json:"paymentStatus"`
	PaymentIntentID   string             `json:"paymentIntentId,omitempty"`
	ServiceReferences []ServiceReference `json:"serviceReferences,omitempty"`
	PaymentError      string             `json:"paymentError,omitempty"`
}

// SumPrices возвращает сумму цен позиций.
func SumPrices(prices ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p)
	}
	return total
}
