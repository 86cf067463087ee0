package order

import "errors"

var (
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrOutOfStockSKU      = errors.New("sku out of stock")
	ErrProductNotFound    = errors.New("product not found or not published")
	ErrSKUNotBelongToShop = errors.New("sku does not belong to shop")
	ErrVersionConflict    = errors.New("sku was modified concurrently, retry checkout")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCannotCancelOrder  = errors.New("order can no longer be cancelled")
	ErrPaymentNotFound    = errors.New("payment not found")
)
