package model

import "github.com/shopspring/decimal"

func init() {
	// Суммы уходят в JSON числами, а не строками.
	decimal.MarshalJSONWithoutQuotes = true
}

// Category описывает раздел каталога услуг.
type Category string

const (
	CategoryCards          Category = "cards"
	CategoryTests          Category = "tests"
	CategoryCourses        Category = "courses"
	CategoryQualifications Category = "qualifications"
)

// ServiceType возвращает тип позиции заказа, соответствующий разделу каталога.
func (c Category) ServiceType() string {
	switch c {
	case CategoryCards:
		return "card"
	case CategoryTests:
		return "test"
	case CategoryCourses:
		return "course"
	case CategoryQualifications:
		return "qualification"
	default:
		return "service"
	}
}

// Service описывает неизменяемую позицию каталога: карту, тест, курс или квалификацию.
type Service struct {
	ID             string          `json:"id"`
	Category       Category        `json:"category"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	Description    string          `json:"description,omitempty"`
	Location       string          `json:"location,omitempty"`
	DeliveryMethod string          `json:"deliveryMethod,omitempty"`
	Prerequisites  bool            `json:"prerequisites"`
	Status         string          `json:"status,omitempty"`
}
