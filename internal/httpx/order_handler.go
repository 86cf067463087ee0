package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/nguyenphat006/shopsifu-orders/internal/discount"
	"github.com/nguyenphat006/shopsifu-orders/internal/order"
	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
)

// Identity comes from the gateway (auth is out of scope here): X-User-Id
// always, X-Shop-Id for sellers, X-Role: admin for back office.
const (
	headerUserID = "X-User-Id"
	headerShopID = "X-Shop-Id"
	headerRole   = "X-Role"
)

type OrdersHandler struct {
	Checkout *order.Checkout
	Orders   *order.Service
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders/calculate", h.calculate)
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Delete("/orders/{id}", h.cancelOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("http: internal error")
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrCartItemNotFound),
		errors.Is(err, order.ErrProductNotFound),
		errors.Is(err, discount.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrSKUNotBelongToShop):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOutOfStockSKU),
		errors.Is(err, order.ErrVersionConflict),
		errors.Is(err, order.ErrCannotCancelOrder),
		errors.Is(err, redisx.ErrLockTimeout),
		errors.Is(err, discount.ErrInvalid),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrExhausted),
		errors.Is(err, discount.ErrUserLimitReached):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func scopeFrom(r *http.Request) order.Scope {
	return order.Scope{
		UserID: r.Header.Get(headerUserID),
		ShopID: r.Header.Get(headerShopID),
		Admin:  r.Header.Get(headerRole) == "admin",
	}
}

func (h *OrdersHandler) decodeCheckout(r *http.Request) (order.CreateOrderInput, bool) {
	var in order.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, false
	}
	in.UserID = r.Header.Get(headerUserID)
	if in.UserID == "" || len(in.Shops) == 0 {
		return in, false
	}
	return in, true
}

func (h *OrdersHandler) calculate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCheckout(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pricing, err := h.Checkout.Calculate(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pricing)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCheckout(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Checkout.CreateOrder(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	if scope.UserID == "" && scope.ShopID == "" && !scope.Admin {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing identity"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	q := order.ListQuery{
		Scope:  scope,
		Status: order.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Orders.List(ctx, q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Detail(ctx, scopeFrom(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.Header.Get(headerUserID)
	if id == "" || userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.Cancel(ctx, userID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
