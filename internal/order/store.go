package order

import (
	"context"
	"time"
)

// Store is the persistence boundary of the order subsystem. The checkout
// write path runs entirely through a Tx; everything else is a plain read or
// a conditional single-row update.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	CartItemsByIDs(ctx context.Context, userID string, ids []string) ([]CartItem, error)
	SKUsByIDs(ctx context.Context, ids []string) (map[string]SKU, error)

	// OrderByID loads the order with items and shipping, nil scope checks.
	OrderByID(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, q ListQuery) ([]Order, int, error)
	// UpdateOrderStatus is conditional on the current status; false means
	// the order was not in `from` anymore (or does not exist).
	UpdateOrderStatus(ctx context.Context, orderID string, from, to Status) (bool, error)

	PaymentByID(ctx context.Context, id string) (*Payment, error)
	OrdersByPaymentID(ctx context.Context, paymentID string) ([]Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (bool, error)

	ShippingByOrderID(ctx context.Context, orderID string) (*OrderShipping, error)
	UpdateShippingStatus(ctx context.Context, upd ShippingUpdate) (bool, error)
}

// Tx is the unit of work for one checkout request. Commit and Rollback are
// the only ways out; Rollback after Commit is a no-op so it can sit in a
// defer.
type Tx interface {
	CartItemsByIDs(ctx context.Context, userID string, ids []string) ([]CartItem, error)
	SKUsByIDs(ctx context.Context, ids []string) (map[string]SKU, error)

	CreatePayment(ctx context.Context, p *Payment) error
	CreateOrder(ctx context.Context, o *Order, items []OrderItem) error
	CreateShipping(ctx context.Context, s *OrderShipping) error

	// DecrementStock is the optimistic guard: the update is keyed on
	// (id, last-seen updated_at, stock >= qty). False means zero rows
	// matched because the row moved underneath us.
	DecrementStock(ctx context.Context, skuID string, qty int, seenUpdatedAt time.Time) (bool, error)

	DeleteCartItems(ctx context.Context, ids []string) error
	RecordDiscountUsage(ctx context.Context, userID string, discountIDs []string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type ShippingUpdate struct {
	OrderID          string
	From, To         ShippingStatus
	CarrierOrderCode string
	FailReason       string
}

// Scope restricts reads to what the caller may see: a buyer sees their own
// orders, a seller their shop's, an admin everything.
type Scope struct {
	UserID string
	ShopID string
	Admin  bool
}

type ListQuery struct {
	Scope  Scope
	Status Status // optional filter
	Limit  int
	Offset int
}
