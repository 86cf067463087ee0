package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is the in-memory Store used by the checkout and query tests.
// Commit applies staged writes under one mutex, so the semantics mirror the
// pg store closely enough for the concurrency properties to be meaningful.
type memStore struct {
	mu            sync.Mutex
	cartItems     map[string]CartItem
	skus          map[string]SKU
	payments      map[string]*Payment
	orders        map[string]*Order
	shippings     map[string]*OrderShipping
	discountUsage map[string]map[string]int // discountID -> userID -> uses
}

func newMemStore() *memStore {
	return &memStore{
		cartItems:     map[string]CartItem{},
		skus:          map[string]SKU{},
		payments:      map[string]*Payment{},
		orders:        map[string]*Order{},
		shippings:     map[string]*OrderShipping{},
		discountUsage: map[string]map[string]int{},
	}
}

func (s *memStore) addCartItem(ci CartItem) { s.cartItems[ci.ID] = ci }
func (s *memStore) addSKU(sku SKU)          { s.skus[sku.ID] = sku }

// touchSKU simulates a writer that bypasses the lock: bumps the version.
func (s *memStore) touchSKU(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku := s.skus[id]
	sku.UpdatedAt = sku.UpdatedAt.Add(time.Millisecond)
	s.skus[id] = sku
}

type memTx struct {
	s        *memStore
	done     bool
	payments []*Payment
	orders   []*Order
	items    map[string][]OrderItem
	ships    []*OrderShipping
	decs     map[string]int
	decOps   map[string]int // update statements issued per sku
	deleted  []string
	usages   map[string][]string // userID -> discountIDs
}

func (s *memStore) Begin(context.Context) (Tx, error) {
	return &memTx{
		s:      s,
		items:  map[string][]OrderItem{},
		decs:   map[string]int{},
		decOps: map[string]int{},
		usages: map[string][]string{},
	}, nil
}

func (s *memStore) CartItemsByIDs(_ context.Context, userID string, ids []string) ([]CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CartItem
	for _, id := range ids {
		if ci, ok := s.cartItems[id]; ok && ci.UserID == userID {
			out = append(out, ci)
		}
	}
	return out, nil
}

func (s *memStore) SKUsByIDs(_ context.Context, ids []string) (map[string]SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]SKU{}
	for _, id := range ids {
		if sku, ok := s.skus[id]; ok {
			out[id] = sku
		}
	}
	return out, nil
}

func (t *memTx) CartItemsByIDs(ctx context.Context, userID string, ids []string) ([]CartItem, error) {
	return t.s.CartItemsByIDs(ctx, userID, ids)
}

func (t *memTx) SKUsByIDs(ctx context.Context, ids []string) (map[string]SKU, error) {
	return t.s.SKUsByIDs(ctx, ids)
}

func (t *memTx) CreatePayment(_ context.Context, p *Payment) error {
	t.payments = append(t.payments, p)
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order, items []OrderItem) error {
	cp := *o
	t.orders = append(t.orders, &cp)
	t.items[o.ID] = items
	return nil
}

func (t *memTx) CreateShipping(_ context.Context, sh *OrderShipping) error {
	cp := *sh
	t.ships = append(t.ships, &cp)
	return nil
}

// DecrementStock mirrors the pg UPDATE inside a transaction: earlier staged
// decrements on the same row reduce the visible stock and bump its version,
// so a second per-item decrement against the original updated_at fails the
// way it would on postgres.
func (t *memTx) DecrementStock(_ context.Context, skuID string, qty int, seen time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sku, ok := t.s.skus[skuID]
	if !ok {
		return false, nil
	}
	cur := sku.UpdatedAt.Add(time.Duration(t.decOps[skuID]) * time.Microsecond)
	if !cur.Equal(seen) || sku.Stock-t.decs[skuID] < qty {
		return false, nil
	}
	t.decs[skuID] += qty
	t.decOps[skuID]++
	return true, nil
}

func (t *memTx) DeleteCartItems(_ context.Context, ids []string) error {
	t.deleted = append(t.deleted, ids...)
	return nil
}

func (t *memTx) RecordDiscountUsage(_ context.Context, userID string, discountIDs []string) error {
	t.usages[userID] = append(t.usages[userID], discountIDs...)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.done = true
	for id, qty := range t.decs {
		sku := t.s.skus[id]
		sku.Stock -= qty
		sku.UpdatedAt = sku.UpdatedAt.Add(time.Duration(t.decOps[id]) * time.Microsecond)
		t.s.skus[id] = sku
	}
	for _, p := range t.payments {
		t.s.payments[p.ID] = p
	}
	for _, o := range t.orders {
		o.Items = t.items[o.ID]
		t.s.orders[o.ID] = o
	}
	for _, sh := range t.ships {
		t.s.shippings[sh.OrderID] = sh
	}
	for _, id := range t.deleted {
		delete(t.s.cartItems, id)
	}
	for userID, ids := range t.usages {
		for _, id := range ids {
			if t.s.discountUsage[id] == nil {
				t.s.discountUsage[id] = map[string]int{}
			}
			t.s.discountUsage[id][userID]++
		}
	}
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func (s *memStore) OrderByID(_ context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	if sh, ok := s.shippings[orderID]; ok {
		shcp := *sh
		cp.Shipping = &shcp
	}
	return &cp, nil
}

func (s *memStore) ListOrders(_ context.Context, q ListQuery) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Order
	for _, o := range s.orders {
		if !q.Scope.Admin {
			if q.Scope.ShopID != "" {
				if o.ShopID != q.Scope.ShopID {
					continue
				}
			} else if o.UserID != q.Scope.UserID {
				continue
			}
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}
	return all, total, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, orderID string, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *memStore) PaymentByID(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) OrdersByPaymentID(_ context.Context, paymentID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.PaymentID == paymentID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) UpdatePaymentStatus(_ context.Context, id string, from, to PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (s *memStore) ShippingByOrderID(_ context.Context, orderID string) (*OrderShipping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shippings[orderID]
	if !ok {
		return nil, nil
	}
	cp := *sh
	return &cp, nil
}

func (s *memStore) UpdateShippingStatus(_ context.Context, upd ShippingUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shippings[upd.OrderID]
	if !ok || sh.Status != upd.From {
		return false, nil
	}
	sh.Status = upd.To
	if upd.CarrierOrderCode != "" {
		sh.CarrierOrderCode = upd.CarrierOrderCode
	}
	sh.FailReason = upd.FailReason
	return true, nil
}
