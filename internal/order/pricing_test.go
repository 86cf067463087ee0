package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenphat006/shopsifu-orders/internal/discount"
)

func activeDiscount(code string, typ discount.Type, value int64) discount.Discount {
	return discount.Discount{
		ID:        "d-" + code,
		Code:      code,
		Type:      typ,
		Value:     value,
		Status:    discount.StatusActive,
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now().Add(time.Hour),
	}
}

func TestComputePricingNoDiscounts(t *testing.T) {
	p := computePricing([]shopPricingInput{
		{shopID: "shop-1", itemCost: 1000, shippingFee: 150},
		{shopID: "shop-2", itemCost: 500, shippingFee: 100},
	}, nil)

	assert.Equal(t, int64(1500), p.TotalItemCost)
	assert.Equal(t, int64(250), p.TotalShippingFee)
	assert.Equal(t, int64(0), p.TotalVoucherDiscount)
	assert.Equal(t, int64(1750), p.TotalPayment)
	require.Len(t, p.Shops, 2)
	assert.Equal(t, int64(1150), p.Shops[0].Payment)
	assert.Equal(t, int64(600), p.Shops[1].Payment)
}

func TestComputePricingShopVouchers(t *testing.T) {
	p := computePricing([]shopPricingInput{
		{
			shopID:      "shop-1",
			itemCost:    1000,
			shippingFee: 150,
			discounts:   []discount.Discount{activeDiscount("TENOFF", discount.TypePercentage, 10)},
		},
	}, nil)

	assert.Equal(t, int64(100), p.Shops[0].VoucherDiscount)
	assert.Equal(t, int64(1050), p.Shops[0].Payment)
	assert.Equal(t, p.TotalPayment, p.TotalItemCost+p.TotalShippingFee-p.TotalVoucherDiscount)
}

func TestComputePricingVoucherNeverExceedsItemCost(t *testing.T) {
	p := computePricing([]shopPricingInput{
		{
			shopID:    "shop-1",
			itemCost:  300,
			discounts: []discount.Discount{activeDiscount("HUGE", discount.TypeFixAmount, 10_000)},
		},
	}, nil)

	assert.Equal(t, int64(300), p.Shops[0].VoucherDiscount)
	assert.Equal(t, int64(0), p.Shops[0].Payment)
	assert.Equal(t, int64(0), p.TotalPayment)
}

func TestComputePricingPlatformApportionment(t *testing.T) {
	platform := []discount.Discount{activeDiscount("PLAT", discount.TypeFixAmount, 300)}
	p := computePricing([]shopPricingInput{
		{shopID: "shop-1", itemCost: 2000, shippingFee: 100},
		{shopID: "shop-2", itemCost: 1000, shippingFee: 100},
	}, platform)

	// proportional to item cost: 200 / 100
	assert.Equal(t, int64(200), p.Shops[0].PlatformVoucherDiscount)
	assert.Equal(t, int64(100), p.Shops[1].PlatformVoucherDiscount)
	assert.Equal(t, int64(300), p.TotalVoucherDiscount)

	// per-shop rows always sum to the totals
	var sumPayment, sumVoucher int64
	for _, sp := range p.Shops {
		sumPayment += sp.Payment
		sumVoucher += sp.VoucherDiscount + sp.PlatformVoucherDiscount
	}
	assert.Equal(t, p.TotalPayment, sumPayment)
	assert.Equal(t, p.TotalVoucherDiscount, sumVoucher)
	assert.Equal(t, p.TotalPayment, p.TotalItemCost+p.TotalShippingFee-p.TotalVoucherDiscount)
}

func TestComputePricingApportionRemainderGoesToLastShop(t *testing.T) {
	platform := []discount.Discount{activeDiscount("PLAT", discount.TypeFixAmount, 100)}
	p := computePricing([]shopPricingInput{
		{shopID: "shop-1", itemCost: 333},
		{shopID: "shop-2", itemCost: 333},
		{shopID: "shop-3", itemCost: 334},
	}, platform)

	var applied int64
	for _, sp := range p.Shops {
		applied += sp.PlatformVoucherDiscount
	}
	assert.Equal(t, int64(100), applied)
	assert.Equal(t, p.TotalPayment, p.TotalItemCost+p.TotalShippingFee-p.TotalVoucherDiscount)
}

func TestDiscountAmountPercentage(t *testing.T) {
	d := activeDiscount("P25", discount.TypePercentage, 25)
	assert.Equal(t, int64(250), d.Amount(1000))
	assert.Equal(t, int64(0), d.Amount(0))
}
