package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/quickorder/internal/model"
)

// SaveOrder сохраняет заказ по его номеру. Если заказ с таким номером уже есть у того же
// клиента и ещё не оплачен, его позиции и суммы заменяются, а o.ID принимает идентификатор
// существующего заказа; возвращаемый признак в этом случае равен true.
func (r *PostgresRepository) SaveOrder(ctx context.Context, o *model.Order) (bool, error) {
	var existed bool
	err := r.withRetry(ctx, func() error {
		var err error
		existed, err = r.saveOrder(ctx, o)
		return err
	})
	return existed, err
}

func (r *PostgresRepository) saveOrder(ctx context.Context, o *model.Order) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO orders (id, order_reference, customer_id, notes, status, priority, scheduled_date,
		                     items_total, grand_total_to_pay)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (order_reference) DO NOTHING`,
		o.ID, o.OrderReference, o.CustomerID, o.Notes, string(o.Status), string(o.Priority), o.ScheduledDate,
		toPence(o.ItemsTotal), toPence(o.GrandTotalToPay),
	)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	inserted := cmdTag.RowsAffected() == 1

	var (
		existingID       string
		existingCustomer string
		existingStatus   *int16
	)
	err = tx.QueryRow(ctx,
		`SELECT id, customer_id, payment_status FROM orders WHERE order_reference = $1 FOR UPDATE`,
		o.OrderReference,
	).Scan(&existingID, &existingCustomer, &existingStatus)
	if err != nil {
		return false, fmt.Errorf("select existing order: %w", err)
	}

	if existingCustomer != o.CustomerID || paymentStatusFrom(existingStatus) == model.PaymentStatusPaid {
		return false, ErrOrderReferenceConflict
	}

	if !inserted {
		o.ID = existingID
		_, err = tx.Exec(ctx,
			`UPDATE orders
			 SET notes = $2, status = $3, priority = $4, scheduled_date = $5,
			     items_total = $6, grand_total_to_pay = $7,
			     payment_status = NULL, payment_intent_id = '', payment_error = '', updated_at = now()
			 WHERE id = $1`,
			o.ID, o.Notes, string(o.Status), string(o.Priority), o.ScheduledDate,
			toPence(o.ItemsTotal), toPence(o.GrandTotalToPay),
		)
		if err != nil {
			return false, fmt.Errorf("update order: %w", err)
		}

		if _, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return false, fmt.Errorf("delete order items: %w", err)
		}
	}

	for i, it := range o.Items {
		details := it.Details
		if details == nil {
			details = model.Details{}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, service_id, service_type, price, details)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, it.ServiceID, it.ServiceType, toPence(it.Price), details,
		)
		if err != nil {
			return false, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return !inserted, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_reference, customer_id, notes, status, priority, scheduled_date,
		        items_total, grand_total_to_pay, payment_status, payment_intent_id, payment_error,
		        created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	)

	var (
		o                      model.Order
		status, priority       string
		itemsTotal, grandTotal int64
		paymentStatus          *int16
	)
	err := row.Scan(&o.ID, &o.OrderReference, &o.CustomerID, &o.Notes, &status, &priority, &o.ScheduledDate,
		&itemsTotal, &grandTotal, &paymentStatus, &o.PaymentIntentID, &o.PaymentError,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)
	o.Priority = model.Priority(priority)
	o.ItemsTotal = fromPence(itemsTotal)
	o.GrandTotalToPay = fromPence(grandTotal)
	o.PaymentStatus = paymentStatusFrom(paymentStatus)

	rows, err := r.pool.Query(ctx,
		`SELECT service_id, service_type, price, details, service_reference
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it    model.OrderItem
			pence int64
		)
		if err := rows.Scan(&it.ServiceID, &it.ServiceType, &pence, &it.Details, &it.ServiceReference); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Price = fromPence(pence)
		o.Items = append(o.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &o, nil
}

// UpdateOrderPayment записывает результат оплаты, если текущий статус оплаты равен expected,
// и проставляет внешние номера позиций.
func (r *PostgresRepository) UpdateOrderPayment(ctx context.Context, id string, expected model.PaymentStatus, upd model.OrderUpdate) error {
	return r.withRetry(ctx, func() error {
		return r.updateOrderPayment(ctx, id, expected, upd)
	})
}

func (r *PostgresRepository) updateOrderPayment(ctx context.Context, id string, expected model.PaymentStatus, upd model.OrderUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2,
		     payment_intent_id = COALESCE(NULLIF($3, ''), payment_intent_id),
		     payment_error = $4,
		     updated_at = now()
		 WHERE id = $1 AND payment_status IS NOT DISTINCT FROM $5`,
		id, paymentStatusValue(upd.PaymentStatus), upd.PaymentIntentID, upd.PaymentError,
		paymentStatusValue(expected),
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrPaymentStatusChanged
	}

	for _, ref := range upd.ServiceReferences {
		_, err = tx.Exec(ctx,
			`UPDATE order_items SET service_reference = $3
			 WHERE order_id = $1 AND position = (
			     SELECT position FROM order_items
			     WHERE order_id = $1 AND service_id = $2 AND service_reference = ''
			     ORDER BY position
			     LIMIT 1
			 )`,
			id, ref.ServiceID, ref.Reference,
		)
		if err != nil {
			return fmt.Errorf("update service reference: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetStaleUnpaidOrders возвращает идентификаторы неоплаченных заказов, созданных раньше before.
func (r *PostgresRepository) GetStaleUnpaidOrders(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM orders
		 WHERE payment_status IS NULL AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stale orders: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
