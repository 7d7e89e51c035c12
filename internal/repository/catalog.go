package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/quickorder/internal/model"
)

const serviceColumns = `id, category, title, price, description, location, delivery_method, prerequisites, status`

// ListServices возвращает каталог услуг в порядке отображения.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services ORDER BY sort_order, title`,
	)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	return scanServices(rows)
}

// GetServices возвращает услуги каталога по идентификаторам.
func (r *PostgresRepository) GetServices(ctx context.Context, ids []string) (map[string]model.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	services, err := scanServices(rows)
	if err != nil {
		return nil, err
	}

	res := make(map[string]model.Service, len(services))
	for _, s := range services {
		res[s.ID] = s
	}
	return res, nil
}

func scanServices(rows pgx.Rows) ([]model.Service, error) {
	var res []model.Service
	for rows.Next() {
		var (
			s        model.Service
			category string
			pence    int64
		)
		if err := rows.Scan(&s.ID, &category, &s.Title, &pence, &s.Description,
			&s.Location, &s.DeliveryMethod, &s.Prerequisites, &s.Status); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.Category = model.Category(category)
		s.Price = fromPence(pence)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetCustomer возвращает клиента по идентификатору.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, phone, status FROM customers WHERE id = $1`,
		id,
	)

	var (
		c      model.Customer
		status string
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Status = model.CustomerStatus(status)

	return &c, nil
}
