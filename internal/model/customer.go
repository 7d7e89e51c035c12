// Package model содержит доменные сущности сервиса быстрого оформления заказов.
package model

import "strings"

// CustomerStatus описывает статус клиента.
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusPending  CustomerStatus = "pending"
	CustomerStatusInactive CustomerStatus = "inactive"
	CustomerStatusBlocked  CustomerStatus = "blocked"
)

// Customer представляет клиента, для которого оформляется заказ.
type Customer struct {
	ID        string         `json:"id"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Status    CustomerStatus `json:"status"`
}

// FullName возвращает имя и фамилию клиента через пробел.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CanOrder сообщает, можно ли оформлять заказ на клиента с таким статусом.
func (c Customer) CanOrder() bool {
	switch c.Status {
	case CustomerStatusActive, CustomerStatusPending, "":
		return true
	default:
		return false
	}
}
