// Package catalog содержит фильтрацию каталога услуг.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/quickorder/internal/model"
)

// All обозначает значение фильтра, которое не ограничивает выборку.
const All = "all"

// Filters описывает условия отбора услуг каталога.
type Filters struct {
	Category       string          `json:"category"`
	Search         string          `json:"search"`
	MinPrice       decimal.Decimal `json:"minPrice"`
	MaxPrice       decimal.Decimal `json:"maxPrice"`
	Location       string          `json:"location"`
	DeliveryMethod string          `json:"deliveryMethod"`
	Status         string          `json:"status"`
	Prerequisites  bool            `json:"prerequisites"`
}

// Metadata содержит сведения о каталоге, нужные для построения фильтров.
type Metadata struct {
	Categories []model.Category `json:"categories"`
	MaxPrice   decimal.Decimal  `json:"maxPrice"`
}

// BuildMetadata собирает уникальные разделы каталога в порядке появления и максимальную цену.
func BuildMetadata(services []model.Service) Metadata {
	meta := Metadata{
		Categories: make([]model.Category, 0, 4),
		MaxPrice:   decimal.Zero,
	}
	seen := make(map[model.Category]struct{}, 4)
	for _, s := range services {
		if _, ok := seen[s.Category]; !ok {
			seen[s.Category] = struct{}{}
			meta.Categories = append(meta.Categories, s.Category)
		}
		if s.Price.GreaterThan(meta.MaxPrice) {
			meta.MaxPrice = s.Price
		}
	}
	return meta
}

// DefaultFilters возвращает фильтры, пропускающие весь каталог.
func DefaultFilters(meta Metadata) Filters {
	return Filters{
		Category:       All,
		MinPrice:       decimal.Zero,
		MaxPrice:       meta.MaxPrice,
		Location:       All,
		DeliveryMethod: All,
		Status:         All,
	}
}

// Filter возвращает услуги, удовлетворяющие всем условиям, сохраняя исходный порядок.
func Filter(services []model.Service, f Filters) []model.Service {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	res := make([]model.Service, 0, len(services))
	for _, s := range services {
		if !matches(f.Category, string(s.Category)) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(s.Title), search) &&
			!strings.Contains(strings.ToLower(s.Description), search) {
			continue
		}
		if s.Price.LessThan(f.MinPrice) || s.Price.GreaterThan(f.MaxPrice) {
			continue
		}
		if !matches(f.Location, s.Location) || !matches(f.DeliveryMethod, s.DeliveryMethod) {
			continue
		}
		if !matches(f.Status, s.Status) {
			continue
		}
		if f.Prerequisites && !s.Prerequisites {
			continue
		}
		res = append(res, s)
	}
	return res
}

func matches(want, got string) bool {
	return want == "" || want == All || want == got
}
