package order

import (
	"encoding/json"
	"time"
)

type CartItem struct {
	ID       string
	UserID   string
	SKUID    string
	Quantity int
}

// SKU is the purchasable variant joined with the fields of its owning
// product that checkout needs: ownership, publication state and the
// snapshot data copied onto order items.
type SKU struct {
	ID        string
	Stock     int
	Price     int64
	UpdatedAt time.Time // optimistic version for the stock decrement

	ShopID       string
	ProductID    string
	ProductName  string
	Value        string
	Published    bool
	Deleted      bool
	Translations json.RawMessage
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Payment aggregates every per-shop order of one checkout request.
type Payment struct {
	ID        string
	Status    PaymentStatus
	Amount    int64
	CreatedAt time.Time
}

type Receiver struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Order struct {
	ID        string
	UserID    string
	ShopID    string
	Status    Status
	Receiver  Receiver
	PaymentID string
	IsCOD     bool

	// Pricing stored at creation time; the voucher amounts are
	// authoritative, never back-solved from the COD amount.
	ItemCost         int64
	ShippingFee      int64
	VoucherDiscount  int64
	PlatformDiscount int64
	PaymentTotal     int64

	Items    []OrderItem
	Shipping *OrderShipping

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is an immutable snapshot taken at order creation. It must not
// change even if the SKU or product later does: it is the audit record of
// what was sold at which price.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductName  string
	SKUID        string
	SKUValue     string
	SKUPrice     int64
	Quantity     int
	Translations json.RawMessage
}

type ShippingStatus string

const (
	ShippingDraft    ShippingStatus = "DRAFT"
	ShippingEnqueued ShippingStatus = "ENQUEUED"
	ShippingCreated  ShippingStatus = "CREATED"
	ShippingFailed   ShippingStatus = "FAILED"
)

// OrderShipping is one-to-one with Order. Created DRAFT inside the checkout
// transaction; ENQUEUED/CREATED/FAILED transitions happen asynchronously.
type OrderShipping struct {
	OrderID string
	Status  ShippingStatus

	ReceiverName  string
	ReceiverPhone string
	Address       string

	WeightGrams int
	LengthCM    int
	WidthCM     int
	HeightCM    int

	ShippingFee int64
	// Amount the carrier collects on delivery. Zero for prepaid orders.
	CODAmount int64

	CarrierOrderCode string
	FailReason       string
	UpdatedAt        time.Time
}
