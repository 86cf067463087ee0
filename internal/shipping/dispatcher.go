package shipping

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nguyenphat006/shopsifu-orders/internal/jobs"
	"github.com/nguyenphat006/shopsifu-orders/internal/order"
)

// Dispatcher moves an order's shipping record from DRAFT to ENQUEUED and
// hands carrier-order creation to the job queue. For COD orders checkout
// calls it synchronously after commit; for prepaid orders the
// payment-confirmed worker does.
type Dispatcher struct {
	Store order.Store
	Queue jobs.Queue
}

// DispatchOrder is idempotent: a shipping row that is no longer DRAFT (or
// does not exist) is left alone. If the enqueue fails after the row was
// marked ENQUEUED, the error is only logged. A reconcile worker can pick
// stale ENQUEUED rows up later, and the committed order must not fail.
func (d *Dispatcher) DispatchOrder(ctx context.Context, orderID string) error {
	ok, err := d.Store.UpdateShippingStatus(ctx, order.ShippingUpdate{
		OrderID: orderID,
		From:    order.ShippingDraft,
		To:      order.ShippingEnqueued,
	})
	if err != nil {
		return fmt.Errorf("mark shipping enqueued for %s: %w", orderID, err)
	}
	if !ok {
		return nil
	}
	err = d.Queue.Enqueue(ctx, jobs.TypeCarrierDispatch,
		jobs.CarrierDispatchPayload{OrderID: orderID}, 0)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("dispatch: enqueue carrier job failed, row stays ENQUEUED")
	}
	return nil
}

// CreateCarrierOrder performs the actual carrier call for an ENQUEUED
// shipping row. Run by the carrier-dispatch worker.
func (d *Dispatcher) CreateCarrierOrder(ctx context.Context, carrier CarrierClient, orderID string) error {
	o, err := d.Store.OrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	sh := o.Shipping
	if sh == nil {
		log.Warn().Str("order_id", orderID).Msg("dispatch: order has no shipping record")
		return nil
	}
	if sh.Status != order.ShippingEnqueued {
		// already processed, redelivery is a no-op
		return nil
	}
	if o.Status == order.StatusCancelled {
		// The buyer cancelled between enqueue and dispatch. Booking a
		// carrier order now would ship a dead order with nothing left to
		// cancel it remotely.
		if _, err := d.Store.UpdateShippingStatus(ctx, order.ShippingUpdate{
			OrderID:    o.ID,
			From:       order.ShippingEnqueued,
			To:         order.ShippingFailed,
			FailReason: "order cancelled before dispatch",
		}); err != nil {
			log.Error().Err(err).Str("order_id", o.ID).Msg("dispatch: mark cancelled shipping failed")
		}
		return nil
	}

	from, err := carrier.GetShopAddress(ctx, o.ShopID)
	if err != nil {
		return fmt.Errorf("shop address for %s: %w", o.ShopID, err)
	}

	code, err := carrier.CreateOrder(ctx, CarrierOrderRequest{
		OrderID:     o.ID,
		From:        *from,
		ToName:      sh.ReceiverName,
		ToPhone:     sh.ReceiverPhone,
		ToAddr:      sh.Address,
		WeightGrams: sh.WeightGrams,
		LengthCM:    sh.LengthCM,
		WidthCM:     sh.WidthCM,
		HeightCM:    sh.HeightCM,
		CODAmount:   sh.CODAmount,
	})
	if err != nil {
		if _, uerr := d.Store.UpdateShippingStatus(ctx, order.ShippingUpdate{
			OrderID:    o.ID,
			From:       order.ShippingEnqueued,
			To:         order.ShippingFailed,
			FailReason: err.Error(),
		}); uerr != nil {
			log.Error().Err(uerr).Str("order_id", o.ID).Msg("dispatch: mark shipping failed failed")
		}
		return fmt.Errorf("carrier order for %s: %w", o.ID, err)
	}

	if _, err := d.Store.UpdateShippingStatus(ctx, order.ShippingUpdate{
		OrderID:          o.ID,
		From:             order.ShippingEnqueued,
		To:               order.ShippingCreated,
		CarrierOrderCode: code,
	}); err != nil {
		return fmt.Errorf("mark shipping created for %s: %w", o.ID, err)
	}

	// Carrier accepted the pickup booking.
	if _, err := d.Store.UpdateOrderStatus(ctx, o.ID, order.StatusPendingPackaging, order.StatusPickuped); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("dispatch: advance order status failed")
	}
	return nil
}
