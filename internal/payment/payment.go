// Package payment предоставляет клиент платёжного шлюза.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured возвращается, если для шлюза не задан секретный ключ.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrInitFailed возвращается, если клиент шлюза не удалось инициализировать.
	ErrInitFailed = errors.New("payment client initialization failed")
	// ErrConfirmFailed возвращается, если шлюз отклонил подтверждение платежа.
	ErrConfirmFailed = errors.New("payment confirmation failed")
)

// Intent описывает платёжное намерение, созданное шлюзом.
type Intent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ConfirmRequest описывает платёж, который нужно подтвердить.
type ConfirmRequest struct {
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Reference     string
	ReceiptEmail  string
}

// Client подтверждает платежи.
type Client interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Intent, error)
}

// Provider создаёт клиентов платёжного шлюза.
type Provider interface {
	NewClient(ctx context.Context) (Client, error)
}
