package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nguyenphat006/shopsifu-orders/internal/discount"
	"github.com/nguyenphat006/shopsifu-orders/internal/jobs"
	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
)

// DiscountValidator is the fail-fast gate run before any stock is touched.
type DiscountValidator interface {
	Validate(ctx context.Context, userID string, codes []string) ([]discount.Discount, error)
}

// Dispatcher is invoked after the checkout transaction commits, for COD
// orders only. Prepaid orders are dispatched by the payment-confirmed
// worker instead.
type Dispatcher interface {
	DispatchOrder(ctx context.Context, orderID string) error
}

type ShippingInput struct {
	WeightGrams int `json:"weight_grams"`
	LengthCM    int `json:"length_cm"`
	WidthCM     int `json:"width_cm"`
	HeightCM    int `json:"height_cm"`
}

type ShopCheckoutInput struct {
	ShopID        string         `json:"shop_id"`
	CartItemIDs   []string       `json:"cart_item_ids"`
	ShippingFee   int64          `json:"shipping_fee"`
	DiscountCodes []string       `json:"discount_codes"`
	Shipping      *ShippingInput `json:"shipping"`
}

type CreateOrderInput struct {
	UserID                string              `json:"-"`
	Receiver              Receiver            `json:"receiver"`
	IsCOD                 bool                `json:"is_cod"`
	Shops                 []ShopCheckoutInput `json:"shops"`
	PlatformDiscountCodes []string            `json:"platform_discount_codes"`
}

type CreateOrderResult struct {
	PaymentID string  `json:"payment_id"`
	Orders    []Order `json:"orders"`
	Pricing   Pricing `json:"pricing"`
}

type Checkout struct {
	Store     Store
	Locker    redisx.Locker
	Discounts DiscountValidator
	Queue     jobs.Queue
	Dispatch  Dispatcher

	LockTTL        time.Duration
	PaymentTimeout time.Duration
}

// Calculate is the side-effect-free preview: same discount validation, same
// pricing computation as CreateOrder, no locks, no transaction.
func (c *Checkout) Calculate(ctx context.Context, in CreateOrderInput) (Pricing, error) {
	prep, err := c.prepare(ctx, in, c.Store.CartItemsByIDs, c.Store.SKUsByIDs)
	if err != nil {
		return Pricing{}, err
	}
	return computePricing(prep.shops, prep.platformDiscounts), nil
}

// CreateOrder turns the selected cart items into durable order records:
// one Payment, one Order per shop with immutable item snapshots, stock
// decrements under per-SKU locks and cart-item deletion, all inside a
// single transaction. Any failure aborts the whole request; no shop
// commits alone.
func (c *Checkout) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Shops) == 0 {
		return nil, fmt.Errorf("%w: empty checkout", ErrCartItemNotFound)
	}

	// Pre-read outside the transaction only to learn the lock keys; every
	// value used for the write is re-fetched under the lock.
	preItems, err := c.Store.CartItemsByIDs(ctx, in.UserID, allCartItemIDs(in))
	if err != nil {
		return nil, fmt.Errorf("prefetch cart items: %w", err)
	}
	if len(preItems) != len(allCartItemIDs(in)) {
		return nil, ErrCartItemNotFound
	}
	lockKeys := make([]string, 0, len(preItems))
	for _, ci := range preItems {
		lockKeys = append(lockKeys, fmt.Sprintf(redisx.KeySKULock, ci.SKUID))
	}

	lease, err := c.Locker.Acquire(ctx, lockKeys, c.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release(ctx) }()

	tx, err := c.Store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prep, err := c.prepare(ctx, in, tx.CartItemsByIDs, tx.SKUsByIDs)
	if err != nil {
		return nil, err
	}
	pricing := computePricing(prep.shops, prep.platformDiscounts)

	payment := &Payment{
		ID:        uuid.NewString(),
		Status:    PaymentPending,
		Amount:    pricing.TotalPayment,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	orders := make([]Order, 0, len(in.Shops))
	for i, shop := range in.Shops {
		sp := pricing.Shops[i]
		o := Order{
			ID:               uuid.NewString(),
			UserID:           in.UserID,
			ShopID:           shop.ShopID,
			Status:           InitialStatus(in.IsCOD),
			Receiver:         in.Receiver,
			PaymentID:        payment.ID,
			IsCOD:            in.IsCOD,
			ItemCost:         sp.ItemCost,
			ShippingFee:      sp.ShippingFee,
			VoucherDiscount:  sp.VoucherDiscount,
			PlatformDiscount: sp.PlatformVoucherDiscount,
			PaymentTotal:     sp.Payment,
			CreatedAt:        time.Now().UTC(),
		}
		items := make([]OrderItem, 0, len(shop.CartItemIDs))
		for _, ciID := range shop.CartItemIDs {
			ci := prep.cartItems[ciID]
			sku := prep.skus[ci.SKUID]
			items = append(items, OrderItem{
				ID:           uuid.NewString(),
				OrderID:      o.ID,
				ProductName:  sku.ProductName,
				SKUID:        sku.ID,
				SKUValue:     sku.Value,
				SKUPrice:     sku.Price,
				Quantity:     ci.Quantity,
				Translations: sku.Translations,
			})
		}
		if err := tx.CreateOrder(ctx, &o, items); err != nil {
			return nil, fmt.Errorf("create order for shop %s: %w", shop.ShopID, err)
		}
		if shop.Shipping != nil {
			sh := &OrderShipping{
				OrderID:       o.ID,
				Status:        ShippingDraft,
				ReceiverName:  in.Receiver.Name,
				ReceiverPhone: in.Receiver.Phone,
				Address:       in.Receiver.Address,
				WeightGrams:   shop.Shipping.WeightGrams,
				LengthCM:      shop.Shipping.LengthCM,
				WidthCM:       shop.Shipping.WidthCM,
				HeightCM:      shop.Shipping.HeightCM,
				ShippingFee:   sp.ShippingFee,
			}
			if in.IsCOD {
				sh.CODAmount = sp.Payment - sp.ShippingFee
			}
			if err := tx.CreateShipping(ctx, sh); err != nil {
				return nil, fmt.Errorf("create shipping for order %s: %w", o.ID, err)
			}
			o.Shipping = sh
		}
		o.Items = items
		orders = append(orders, o)
	}

	// The per-SKU lock serializes checkouts; the conditional update is the
	// second net, catching writers that bypass the lock. One decrement per
	// SKU with the aggregated quantity, so a SKU spread over several cart
	// items never races against its own earlier update.
	for _, skuID := range prep.skuOrder {
		sku := prep.skus[skuID]
		ok, err := tx.DecrementStock(ctx, sku.ID, prep.skuQty[skuID], sku.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("decrement stock for sku %s: %w", sku.ID, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: sku %s", ErrVersionConflict, sku.ID)
		}
	}

	if err := tx.DeleteCartItems(ctx, allCartItemIDs(in)); err != nil {
		return nil, fmt.Errorf("delete cart items: %w", err)
	}
	if len(prep.discountIDs) > 0 {
		if err := tx.RecordDiscountUsage(ctx, in.UserID, prep.discountIDs); err != nil {
			return nil, fmt.Errorf("record discount usage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	// Post-commit side effects are best effort: the orders exist, a queue
	// hiccup must not fail the request.
	if c.Queue != nil && !in.IsCOD {
		// COD payments settle on delivery; only prepaid ones can time out.
		err := c.Queue.Enqueue(ctx, jobs.TypePaymentTimeout,
			jobs.PaymentTimeoutPayload{PaymentID: payment.ID}, c.PaymentTimeout)
		if err != nil {
			log.Error().Err(err).Str("payment_id", payment.ID).Msg("checkout: enqueue payment timeout failed")
		}
	}
	if in.IsCOD && c.Dispatch != nil {
		for _, o := range orders {
			if o.Shipping == nil {
				continue
			}
			if err := c.Dispatch.DispatchOrder(ctx, o.ID); err != nil {
				log.Error().Err(err).Str("order_id", o.ID).Msg("checkout: cod dispatch failed")
			}
		}
	}

	return &CreateOrderResult{PaymentID: payment.ID, Orders: orders, Pricing: pricing}, nil
}

type checkoutPrep struct {
	cartItems map[string]CartItem
	skus      map[string]SKU
	shops     []shopPricingInput

	// Quantities aggregated per SKU: the same SKU may appear on several
	// cart items, but the stock check and the decrement see one total.
	skuQty   map[string]int
	skuOrder []string // first-seen order, for deterministic decrements

	platformDiscounts []discount.Discount
	discountIDs       []string
}

type cartItemFetch func(ctx context.Context, userID string, ids []string) ([]CartItem, error)
type skuFetch func(ctx context.Context, ids []string) (map[string]SKU, error)

// prepare validates the full request (discounts, cart contents, stock,
// ownership) and assembles the pricing input. Ran against the plain store
// for Calculate, against the open Tx for CreateOrder.
func (c *Checkout) prepare(ctx context.Context, in CreateOrderInput, fetchItems cartItemFetch, fetchSKUs skuFetch) (*checkoutPrep, error) {
	codes := append([]string{}, in.PlatformDiscountCodes...)
	for _, s := range in.Shops {
		codes = append(codes, s.DiscountCodes...)
	}
	discounts, err := c.Discounts.Validate(ctx, in.UserID, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]discount.Discount, len(discounts))
	prep := &checkoutPrep{
		cartItems: map[string]CartItem{},
		skuQty:    map[string]int{},
	}
	for _, d := range discounts {
		byCode[d.Code] = d
		prep.discountIDs = append(prep.discountIDs, d.ID)
	}
	platformCodes := make(map[string]bool, len(in.PlatformDiscountCodes))
	for _, code := range in.PlatformDiscountCodes {
		if d, ok := byCode[code]; ok && !platformCodes[code] {
			platformCodes[code] = true
			prep.platformDiscounts = append(prep.platformDiscounts, d)
		}
	}

	ids := allCartItemIDs(in)
	fetched, err := fetchItems(ctx, in.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch cart items: %w", err)
	}
	if len(fetched) != len(ids) {
		return nil, ErrCartItemNotFound
	}
	skuIDs := make([]string, 0, len(fetched))
	for _, ci := range fetched {
		prep.cartItems[ci.ID] = ci
		skuIDs = append(skuIDs, ci.SKUID)
	}
	prep.skus, err = fetchSKUs(ctx, skuIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch skus: %w", err)
	}

	shopUsedCodes := map[string]bool{}
	for _, shop := range in.Shops {
		var itemCost int64
		for _, ciID := range shop.CartItemIDs {
			ci, ok := prep.cartItems[ciID]
			if !ok {
				return nil, ErrCartItemNotFound
			}
			sku, ok := prep.skus[ci.SKUID]
			if !ok {
				return nil, fmt.Errorf("%w: sku %s", ErrProductNotFound, ci.SKUID)
			}
			already, tracked := prep.skuQty[sku.ID]
			need := already + ci.Quantity
			if sku.Stock < need {
				return nil, fmt.Errorf("%w: sku %s has %d, need %d", ErrOutOfStockSKU, sku.ID, sku.Stock, need)
			}
			if sku.Deleted || !sku.Published {
				return nil, fmt.Errorf("%w: product %s", ErrProductNotFound, sku.ProductID)
			}
			if sku.ShopID != shop.ShopID {
				return nil, fmt.Errorf("%w: sku %s, shop %s", ErrSKUNotBelongToShop, sku.ID, shop.ShopID)
			}
			itemCost += sku.Price * int64(ci.Quantity)
			if !tracked {
				prep.skuOrder = append(prep.skuOrder, sku.ID)
			}
			prep.skuQty[sku.ID] = need
		}

		var shopDiscounts []discount.Discount
		for _, code := range shop.DiscountCodes {
			d, ok := byCode[code]
			if !ok {
				continue
			}
			// A code is consumed in exactly one role. Usage is recorded
			// once per code, so applying it again would double the voucher
			// for free.
			if platformCodes[code] || shopUsedCodes[code] {
				return nil, fmt.Errorf("%w: code %s applied more than once", discount.ErrInvalid, code)
			}
			if d.ShopID != "" && d.ShopID != shop.ShopID {
				return nil, fmt.Errorf("%w: code %s", discount.ErrInvalid, code)
			}
			shopUsedCodes[code] = true
			shopDiscounts = append(shopDiscounts, d)
		}
		prep.shops = append(prep.shops, shopPricingInput{
			shopID:      shop.ShopID,
			itemCost:    itemCost,
			shippingFee: shop.ShippingFee,
			discounts:   shopDiscounts,
		})
	}
	return prep, nil
}

func allCartItemIDs(in CreateOrderInput) []string {
	var ids []string
	for _, s := range in.Shops {
		ids = append(ids, s.CartItemIDs...)
	}
	return ids
}
