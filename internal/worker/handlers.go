package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/nguyenphat006/shopsifu-orders/internal/jobs"
	"github.com/nguyenphat006/shopsifu-orders/internal/order"
	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
	"github.com/nguyenphat006/shopsifu-orders/internal/shipping"
)

// Handlers holds the job consumers. Every handler is idempotent: jobs are
// redelivered at least once and the status guards make replays no-ops.
type Handlers struct {
	Store      order.Store
	Dispatcher *shipping.Dispatcher
	Carrier    shipping.CarrierClient
	Redis      *redis.Client
	Name       string
}

// HandlePaymentTimeout cancels a checkout whose prepaid payment never
// arrived. Already-paid and already-cancelled payments are no-ops.
func (h *Handlers) HandlePaymentTimeout(ctx context.Context, m kafka.Message) error {
	var env jobs.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if err := jobs.WaitUntilDue(ctx, env); err != nil {
		return err
	}
	if h.seen(ctx, env.JobID) {
		return nil
	}
	p, err := jobs.UnwrapPayload[jobs.PaymentTimeoutPayload](env.Payload)
	if err != nil {
		return err
	}

	pay, err := h.Store.PaymentByID(ctx, p.PaymentID)
	if err != nil {
		if errors.Is(err, order.ErrPaymentNotFound) {
			log.Warn().Str("payment_id", p.PaymentID).Msg("worker: timeout for unknown payment")
			return nil
		}
		return err
	}
	if pay.Status != order.PaymentPending {
		return nil
	}
	if ok, err := h.Store.UpdatePaymentStatus(ctx, pay.ID, order.PaymentPending, order.PaymentCancelled); err != nil || !ok {
		return err
	}

	ords, err := h.Store.OrdersByPaymentID(ctx, pay.ID)
	if err != nil {
		return fmt.Errorf("orders for payment %s: %w", pay.ID, err)
	}
	for _, o := range ords {
		if o.Status != order.StatusPendingPayment {
			continue
		}
		ok, err := h.Store.UpdateOrderStatus(ctx, o.ID, order.StatusPendingPayment, order.StatusCancelled)
		if err != nil {
			return err
		}
		if ok {
			log.Info().Str("order_id", o.ID).Str("payment_id", pay.ID).Msg("worker: order cancelled, payment timed out")
		}
	}
	h.markSeen(ctx, env.JobID)
	return nil
}

// HandleCarrierDispatch creates the carrier order for an ENQUEUED shipping
// row. Redeliveries short-circuit on the shipping status.
func (h *Handlers) HandleCarrierDispatch(ctx context.Context, m kafka.Message) error {
	var env jobs.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	p, err := jobs.UnwrapPayload[jobs.CarrierDispatchPayload](env.Payload)
	if err != nil {
		return err
	}
	return h.Dispatcher.CreateCarrierOrder(ctx, h.Carrier, p.OrderID)
}

// HandlePaymentConfirmed marks the payment PAID, advances every order of
// the checkout to packaging and triggers the deferred carrier dispatch for
// prepaid shipping rows still in DRAFT.
func (h *Handlers) HandlePaymentConfirmed(ctx context.Context, m kafka.Message) error {
	var env jobs.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	p, err := jobs.UnwrapPayload[jobs.PaymentConfirmedPayload](env.Payload)
	if err != nil {
		return err
	}

	ok, err := h.Store.UpdatePaymentStatus(ctx, p.PaymentID, order.PaymentPending, order.PaymentPaid)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("payment_id", p.PaymentID).Msg("worker: payment not pending, replay or timeout race")
	}

	ords, err := h.Store.OrdersByPaymentID(ctx, p.PaymentID)
	if err != nil {
		return fmt.Errorf("orders for payment %s: %w", p.PaymentID, err)
	}
	for _, o := range ords {
		if _, err := h.Store.UpdateOrderStatus(ctx, o.ID, order.StatusPendingPayment, order.StatusVerifyPayment); err != nil {
			return err
		}
		if _, err := h.Store.UpdateOrderStatus(ctx, o.ID, order.StatusVerifyPayment, order.StatusPendingPackaging); err != nil {
			return err
		}
		if err := h.Dispatcher.DispatchOrder(ctx, o.ID); err != nil {
			log.Error().Err(err).Str("order_id", o.ID).Msg("worker: prepaid dispatch failed")
		}
	}
	return nil
}

func (h *Handlers) seen(ctx context.Context, jobID string) bool {
	if h.Redis == nil {
		return false
	}
	key := fmt.Sprintf(redisx.KeyDedup, h.Name, jobID)
	exists, err := redisx.Exists(ctx, h.Redis, key)
	if err != nil {
		return false
	}
	return exists
}

func (h *Handlers) markSeen(ctx context.Context, jobID string) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyDedup, h.Name, jobID)
	_ = h.Redis.Set(ctx, key, "1", redisx.TTLDedup).Err()
}
