package order

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
)

// CarrierCanceller is the single carrier capability the cancel flow needs.
type CarrierCanceller interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// Service covers the read paths and cancellation. Checkout handles the
// write path.
type Service struct {
	Store   Store
	Carrier CarrierCanceller
	Redis   *redis.Client // optional status cache; nil disables it
}

type ListResult struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	orders, total, err := s.Store.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &ListResult{Orders: orders, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *Service) Detail(ctx context.Context, scope Scope, orderID string) (*Order, error) {
	o, err := s.Store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !visible(scope, o) {
		return nil, ErrOrderNotFound
	}
	s.cacheStatus(ctx, o.ID, o.Status)
	return o, nil
}

// Cancel moves the order to CANCELLED if its status still allows it and
// best-effort undoes an already-created carrier order. A carrier failure is
// logged, never blocks the local cancellation: local state is authoritative,
// the carrier side is reconciled later.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.Store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if !Cancellable(o.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrCannotCancelOrder, o.Status)
	}

	if o.Shipping != nil && o.Shipping.Status == ShippingCreated {
		if s.Carrier != nil {
			if err := s.Carrier.CancelOrder(ctx, o.ID); err != nil {
				log.Warn().Err(err).Str("order_id", o.ID).Msg("cancel: carrier cancel failed, continuing")
			}
		}
		if _, err := s.Store.UpdateShippingStatus(ctx, ShippingUpdate{
			OrderID:    o.ID,
			From:       ShippingCreated,
			To:         ShippingFailed,
			FailReason: "order cancelled by buyer",
		}); err != nil {
			log.Error().Err(err).Str("order_id", o.ID).Msg("cancel: shipping status update failed")
		}
	}

	// Conditional on the status we just checked, so a concurrent
	// transition (e.g. delivery) wins over a late cancel.
	ok, err := s.Store.UpdateOrderStatus(ctx, o.ID, o.Status, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	if !ok {
		return nil, ErrCannotCancelOrder
	}
	o.Status = StatusCancelled
	s.cacheStatus(ctx, o.ID, o.Status)
	return o, nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := s.Redis.Set(ctx, key, string(st), redisx.TTLStatusCache).Err(); err != nil {
		log.Debug().Err(err).Str("order_id", orderID).Msg("status cache set failed")
	}
}

func visible(scope Scope, o *Order) bool {
	if scope.Admin {
		return true
	}
	if scope.ShopID != "" && scope.ShopID == o.ShopID {
		return true
	}
	return scope.UserID != "" && scope.UserID == o.UserID
}
