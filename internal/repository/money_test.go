package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/quickorder/internal/model"
)

func TestToPence(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"36", 3600},
		{"22.5", 2250},
		{"49.99", 4999},
		{"0.005", 0},
		{"0.015", 2},
	}

	for _, tt := range tests {
		got := toPence(decimal.RequireFromString(tt.in))
		if got != tt.want {
			t.Fatalf("toPence(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromPence(t *testing.T) {
	if got := fromPence(4999); got.String() != "49.99" {
		t.Fatalf("fromPence(4999) = %s, want 49.99", got)
	}
	if got := fromPence(toPence(decimal.NewFromInt(150))); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("round trip = %s, want 150", got)
	}
}

func TestPaymentStatusColumn(t *testing.T) {
	if v := paymentStatusValue(model.PaymentStatusPending); v != nil {
		t.Fatalf("pending must be stored as NULL, got %d", *v)
	}
	if v := paymentStatusValue(model.PaymentStatusPaid); v == nil || *v != 2 {
		t.Fatalf("paid must be stored as 2, got %v", v)
	}
	if v := paymentStatusValue(model.PaymentStatusCancelled); v == nil || *v != 3 {
		t.Fatalf("cancelled must be stored as 3, got %v", v)
	}
	if s := paymentStatusFrom(nil); s != model.PaymentStatusPending {
		t.Fatalf("NULL must read as pending, got %v", s)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"deadlock", fmt.Errorf("wrap: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), true},
		{"unique", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{"connection", errors.New("dial tcp: connection refused"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Fatalf("%s: isRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWithRetry(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })

	r := &PostgresRepository{}

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("withRetry = %v after %d calls, want success after 3", err, calls)
	}

	calls = 0
	err = r.withRetry(context.Background(), func() error {
		calls++
		return ErrOrderReferenceConflict
	})
	if !errors.Is(err, ErrOrderReferenceConflict) || calls != 1 {
		t.Fatalf("non-retryable error must not be retried: %v after %d calls", err, calls)
	}
}
