package order

import (
	"github.com/nguyenphat006/shopsifu-orders/internal/discount"
)

// Pricing is the breakdown returned by Calculate and stored by CreateOrder.
// Both run the same computation, so a previewed total always matches the
// committed one.
type Pricing struct {
	TotalItemCost        int64        `json:"total_item_cost"`
	TotalShippingFee     int64        `json:"total_shipping_fee"`
	TotalVoucherDiscount int64        `json:"total_voucher_discount"`
	TotalPayment         int64        `json:"total_payment"`
	Shops                []ShopPricing `json:"shops"`
}

type ShopPricing struct {
	ShopID                  string `json:"shop_id"`
	ItemCost                int64  `json:"item_cost"`
	ShippingFee             int64  `json:"shipping_fee"`
	VoucherDiscount         int64  `json:"voucher_discount"`
	PlatformVoucherDiscount int64  `json:"platform_voucher_discount"`
	Payment                 int64  `json:"payment"`
}

type shopPricingInput struct {
	shopID      string
	itemCost    int64
	shippingFee int64
	discounts   []discount.Discount
}

// computePricing applies shop vouchers to each shop's item cost, then
// apportions the platform voucher across shops proportionally to item cost
// (remainder to the last shop), so per-shop rows always sum to the totals.
// Discounts only ever reduce item cost, never the shipping fee, which keeps
// every per-shop payment non-negative without a separate clamp.
func computePricing(shops []shopPricingInput, platform []discount.Discount) Pricing {
	var totalItem int64
	for _, s := range shops {
		totalItem += s.itemCost
	}

	var platformTotal int64
	remaining := totalItem
	for _, d := range platform {
		a := d.Amount(remaining)
		platformTotal += a
		remaining -= a
	}

	p := Pricing{Shops: make([]ShopPricing, 0, len(shops))}
	var apportioned int64
	for i, s := range shops {
		var voucher int64
		base := s.itemCost
		for _, d := range s.discounts {
			a := d.Amount(base)
			voucher += a
			base -= a
		}

		var platformShare int64
		if totalItem > 0 {
			if i == len(shops)-1 {
				platformShare = platformTotal - apportioned
			} else {
				platformShare = platformTotal * s.itemCost / totalItem
				apportioned += platformShare
			}
		}
		if rest := s.itemCost - voucher; platformShare > rest {
			platformShare = rest
		}

		sp := ShopPricing{
			ShopID:                  s.shopID,
			ItemCost:                s.itemCost,
			ShippingFee:             s.shippingFee,
			VoucherDiscount:         voucher,
			PlatformVoucherDiscount: platformShare,
			Payment:                 s.itemCost - voucher - platformShare + s.shippingFee,
		}
		p.Shops = append(p.Shops, sp)

		p.TotalItemCost += sp.ItemCost
		p.TotalShippingFee += sp.ShippingFee
		p.TotalVoucherDiscount += sp.VoucherDiscount + sp.PlatformVoucherDiscount
		p.TotalPayment += sp.Payment
	}
	return p
}
