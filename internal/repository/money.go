package repository

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/quickorder/internal/model"
)

// toPence переводит сумму в фунтах в целое число пенсов с банковским округлением.
func toPence(d decimal.Decimal) int64 {
	return d.Shift(2).RoundBank(0).IntPart()
}

// fromPence переводит сумму в пенсах в фунты.
func fromPence(p int64) decimal.Decimal {
	return decimal.New(p, -2)
}

// paymentStatusValue возвращает значение колонки payment_status: NULL для неоплаченного заказа.
func paymentStatusValue(s model.PaymentStatus) *int16 {
	if s == model.PaymentStatusPending {
		return nil
	}
	v := int16(s)
	return &v
}

func paymentStatusFrom(v *int16) model.PaymentStatus {
	if v == nil {
		return model.PaymentStatusPending
	}
	return model.PaymentStatus(*v)
}
