// Package orderapi предоставляет клиент для удалённого API заказов.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/quickorder/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с API заказов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError описывает ответ API заказов с кодом, отличным от успешного.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.StatusCode, e.Message)
}

// RemoteMessage возвращает сообщение, присланное сервером.
func (e *APIError) RemoteMessage() string {
	return e.Message
}

// NewClient создаёт HTTP-клиент для обращения к API заказов по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ListServices возвращает каталог услуг.
func (c *Client) ListServices(ctx context.Context) ([]model.Service, error) {
	var wire []serviceWire
	if err := c.do(ctx, http.MethodGet, "/api/services", nil, &wire); err != nil {
		return nil, err
	}

	services := make([]model.Service, 0, len(wire))
	for _, w := range wire {
		services = append(services, w.model())
	}
	return services, nil
}

// GetCustomer возвращает клиента по идентификатору.
func (c *Client) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var wire customerWire
	if err := c.do(ctx, http.MethodGet, "/api/customers/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, err
	}
	cust := wire.model()
	return &cust, nil
}

// CreateOrder создаёт заказ и возвращает его каноническую запись.
func (c *Client) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	var wire orderWire
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &wire); err != nil {
		return nil, err
	}
	return wire.model(), nil
}

// UpdateOrder обновляет статус оплаты заказа.
func (c *Client) UpdateOrder(ctx context.Context, id string, upd model.OrderUpdate) error {
	return c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id), upd, nil)
}

// GetOrder возвращает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var wire orderWire
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, err
	}
	return wire.model(), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("order api client not configured")
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				apiErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			switch e := payload.Error.(type) {
			case string:
				apiErr.Message = e
			case map[string]any:
				if msg, ok := e["message"].(string); ok {
					apiErr.Message = msg
				}
			}
		}
	} else if len(raw) > 0 && !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("<")) {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
