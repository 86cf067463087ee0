package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on postgres. All checkout writes go through
// pgTx; reads and conditional updates run on the pool directly.
type PgStore struct{ DB *pgxpool.Pool }

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// ---- shared reads (pool or tx) ----

func cartItemsByIDs(ctx context.Context, q pgQuerier, userID string, ids []string) ([]CartItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, sku_id, quantity
		FROM cart_items
		WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CartItem
	for rows.Next() {
		var ci CartItem
		if err := rows.Scan(&ci.ID, &ci.UserID, &ci.SKUID, &ci.Quantity); err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

func skusByIDs(ctx context.Context, q pgQuerier, ids []string) (map[string]SKU, error) {
	rows, err := q.Query(ctx, `
		SELECT s.id, s.stock, s.price, s.updated_at, s.value,
		       p.id, p.name, p.shop_id, p.published,
		       (p.deleted_at IS NOT NULL),
		       COALESCE(p.translations, '{}'::jsonb)
		FROM skus s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]SKU, len(ids))
	for rows.Next() {
		var sku SKU
		if err := rows.Scan(&sku.ID, &sku.Stock, &sku.Price, &sku.UpdatedAt, &sku.Value,
			&sku.ProductID, &sku.ProductName, &sku.ShopID, &sku.Published,
			&sku.Deleted, &sku.Translations); err != nil {
			return nil, err
		}
		out[sku.ID] = sku
	}
	return out, rows.Err()
}

func (s *PgStore) CartItemsByIDs(ctx context.Context, userID string, ids []string) ([]CartItem, error) {
	return cartItemsByIDs(ctx, s.DB, userID, ids)
}

func (t *pgTx) CartItemsByIDs(ctx context.Context, userID string, ids []string) ([]CartItem, error) {
	return cartItemsByIDs(ctx, t.tx, userID, ids)
}

func (s *PgStore) SKUsByIDs(ctx context.Context, ids []string) (map[string]SKU, error) {
	return skusByIDs(ctx, s.DB, ids)
}

func (t *pgTx) SKUsByIDs(ctx context.Context, ids []string) (map[string]SKU, error) {
	return skusByIDs(ctx, t.tx, ids)
}

// ---- checkout writes ----

func (t *pgTx) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, status, amount, created_at)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.Status, p.Amount, p.CreatedAt)
	return err
}

func (t *pgTx) CreateOrder(ctx context.Context, o *Order, items []OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, shop_id, status, payment_id, is_cod,
		                    receiver_name, receiver_phone, receiver_address,
		                    item_cost, shipping_fee, voucher_discount,
		                    platform_discount, payment_total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)`,
		o.ID, o.UserID, o.ShopID, o.Status, o.PaymentID, o.IsCOD,
		o.Receiver.Name, o.Receiver.Phone, o.Receiver.Address,
		o.ItemCost, o.ShippingFee, o.VoucherDiscount,
		o.PlatformDiscount, o.PaymentTotal, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_name, sku_id,
			                         sku_value, sku_price, quantity, translations)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.OrderID, it.ProductName, it.SKUID,
			it.SKUValue, it.SKUPrice, it.Quantity, it.Translations)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreateShipping(ctx context.Context, sh *OrderShipping) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_shipping (order_id, status, receiver_name, receiver_phone,
		                            address, weight_grams, length_cm, width_cm, height_cm,
		                            shipping_fee, cod_amount, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())`,
		sh.OrderID, sh.Status, sh.ReceiverName, sh.ReceiverPhone,
		sh.Address, sh.WeightGrams, sh.LengthCM, sh.WidthCM, sh.HeightCM,
		sh.ShippingFee, sh.CODAmount)
	return err
}

func (t *pgTx) DecrementStock(ctx context.Context, skuID string, qty int, seenUpdatedAt time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE skus
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND updated_at = $3 AND stock >= $2`,
		skuID, qty, seenUpdatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) DeleteCartItems(ctx context.Context, ids []string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE id = ANY($1)`, ids)
	return err
}

func (t *pgTx) RecordDiscountUsage(ctx context.Context, userID string, discountIDs []string) error {
	for _, id := range discountIDs {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO discount_usages (discount_id, user_id, used_at)
			VALUES ($1, $2, now())`, id, userID); err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `
			UPDATE discounts SET uses_count = uses_count + 1 WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return nil
}

// ---- reads & conditional updates outside the checkout tx ----

const orderColumns = `id, user_id, shop_id, status, payment_id, is_cod,
	receiver_name, receiver_phone, receiver_address,
	item_cost, shipping_fee, voucher_discount, platform_discount,
	payment_total, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.ShopID, &o.Status, &o.PaymentID, &o.IsCOD,
		&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Address,
		&o.ItemCost, &o.ShippingFee, &o.VoucherDiscount, &o.PlatformDiscount,
		&o.PaymentTotal, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *PgStore) OrderByID(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_name, sku_id, sku_value, sku_price, quantity, translations
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order items for %s: %w", orderID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.SKUID,
			&it.SKUValue, &it.SKUPrice, &it.Quantity, &it.Translations); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sh, err := s.ShippingByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Shipping = sh
	return o, nil
}

func (s *PgStore) ListOrders(ctx context.Context, q ListQuery) ([]Order, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0
	if !q.Scope.Admin {
		if q.Scope.ShopID != "" {
			n++
			where += fmt.Sprintf(` AND shop_id = $%d`, n)
			args = append(args, q.Scope.ShopID)
		} else {
			n++
			where += fmt.Sprintf(` AND user_id = $%d`, n)
			args = append(args, q.Scope.UserID)
		}
	}
	if q.Status != "" {
		n++
		where += fmt.Sprintf(` AND status = $%d`, n)
		args = append(args, q.Status)
	}

	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, n+1, n+2)
	args = append(args, q.Limit, q.Offset)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShopID, &o.Status, &o.PaymentID, &o.IsCOD,
			&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Address,
			&o.ItemCost, &o.ShippingFee, &o.VoucherDiscount, &o.PlatformDiscount,
			&o.PaymentTotal, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *PgStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to Status) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, orderID, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PgStore) PaymentByID(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	err := s.DB.QueryRow(ctx, `
		SELECT id, status, amount, created_at FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.Status, &p.Amount, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) OrdersByPaymentID(ctx context.Context, paymentID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShopID, &o.Status, &o.PaymentID, &o.IsCOD,
			&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Address,
			&o.ItemCost, &o.ShippingFee, &o.VoucherDiscount, &o.PlatformDiscount,
			&o.PaymentTotal, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payments SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PgStore) ShippingByOrderID(ctx context.Context, orderID string) (*OrderShipping, error) {
	var sh OrderShipping
	err := s.DB.QueryRow(ctx, `
		SELECT order_id, status, receiver_name, receiver_phone, address,
		       weight_grams, length_cm, width_cm, height_cm,
		       shipping_fee, cod_amount,
		       COALESCE(carrier_order_code, ''), COALESCE(fail_reason, ''), updated_at
		FROM order_shipping WHERE order_id = $1`, orderID).
		Scan(&sh.OrderID, &sh.Status, &sh.ReceiverName, &sh.ReceiverPhone, &sh.Address,
			&sh.WeightGrams, &sh.LengthCM, &sh.WidthCM, &sh.HeightCM,
			&sh.ShippingFee, &sh.CODAmount,
			&sh.CarrierOrderCode, &sh.FailReason, &sh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // shipping is optional per order
		}
		return nil, err
	}
	return &sh, nil
}

func (s *PgStore) UpdateShippingStatus(ctx context.Context, upd ShippingUpdate) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE order_shipping
		SET status = $3,
		    carrier_order_code = COALESCE(NULLIF($4, ''), carrier_order_code),
		    fail_reason = $5,
		    updated_at = now()
		WHERE order_id = $1 AND status = $2`,
		upd.OrderID, upd.From, upd.To, upd.CarrierOrderCode, upd.FailReason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
