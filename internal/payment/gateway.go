package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Статусы намерения, при которых платёж считается принятым.
const (
	StatusSucceeded  = "succeeded"
	StatusProcessing = "processing"
)

const defaultCurrency = "gbp"

// Gateway обращается к платёжному шлюзу по HTTP.
type Gateway struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewGateway создаёт поставщика клиентов шлюза по адресу и секретному ключу.
func NewGateway(baseURL, secretKey string) *Gateway {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Gateway{
		baseURL:   base,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewClient проверяет ключ шлюза и возвращает готовый к работе клиент.
func (g *Gateway) NewClient(ctx context.Context) (Client, error) {
	if g == nil || g.secretKey == "" || g.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/balance", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInitFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrInitFailed, gatewayMessage(resp))
	}

	return g, nil
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Confirm создаёт и сразу подтверждает платёжное намерение на сумму заказа.
func (g *Gateway) Confirm(ctx context.Context, r ConfirmRequest) (Intent, error) {
	if r.PaymentMethod == "" {
		return Intent{}, fmt.Errorf("%w: payment method is required", ErrConfirmFailed)
	}
	pence := r.Amount.Shift(2).Round(0).IntPart()
	if pence <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrConfirmFailed)
	}

	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", pence))
	form.Set("currency", currency)
	form.Set("payment_method", r.PaymentMethod)
	form.Set("confirm", "true")
	if r.Reference != "" {
		form.Set("metadata[order_reference]", r.Reference)
	}
	if r.ReceiptEmail != "" {
		form.Set("receipt_email", r.ReceiptEmail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return Intent{}, fmt.Errorf("%w: create request: %v", ErrConfirmFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", idempotencyKey(r.Reference))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrConfirmFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Intent{}, fmt.Errorf("%w: %s", ErrConfirmFailed, gatewayMessage(resp))
	}

	var result intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Intent{}, fmt.Errorf("%w: decode response: %v", ErrConfirmFailed, err)
	}

	if result.Status != StatusSucceeded && result.Status != StatusProcessing {
		return Intent{ID: result.ID, Status: result.Status},
			fmt.Errorf("%w: payment intent %s is %s", ErrConfirmFailed, result.ID, result.Status)
	}

	return Intent{ID: result.ID, Status: result.Status}, nil
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func gatewayMessage(resp *http.Response) string {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return fmt.Sprintf("unexpected status: %d", resp.StatusCode)
}

// idempotencyKey возвращает ключ одной попытки подтверждения. Повторная попытка
// по тому же заказу получает новый ключ, иначе шлюз вернёт сохранённый отказ.
func idempotencyKey(reference string) string {
	if reference == "" {
		return uuid.NewString()
	}
	return reference + "-" + uuid.NewString()
}
