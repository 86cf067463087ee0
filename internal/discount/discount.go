package discount

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("discount code not found")
	ErrInvalid          = errors.New("discount is not active")
	ErrExpired          = errors.New("discount is outside its date window")
	ErrExhausted        = errors.New("discount has no uses left")
	ErrUserLimitReached = errors.New("discount user limit reached")
)

type Type string

const (
	TypeFixAmount  Type = "FIX_AMOUNT"
	TypePercentage Type = "PERCENTAGE"
)

type DiscountStatus string

const (
	StatusActive   DiscountStatus = "ACTIVE"
	StatusInactive DiscountStatus = "INACTIVE"
)

type Discount struct {
	ID     string
	Code   string
	Type   Type
	Value  int64
	Status DiscountStatus

	// Empty ShopID means a platform-level discount.
	ShopID string

	StartDate time.Time
	EndDate   time.Time

	// MaxUses == 0 means unlimited; same for MaxUsesPerUser.
	MaxUses        int
	MaxUsesPerUser int
	UsesCount      int
}

// Amount the discount takes off the given base. Never exceeds base, never
// negative.
func (d Discount) Amount(base int64) int64 {
	if base <= 0 {
		return 0
	}
	var a int64
	switch d.Type {
	case TypePercentage:
		a = base * d.Value / 100
	default:
		a = d.Value
	}
	if a < 0 {
		return 0
	}
	if a > base {
		return base
	}
	return a
}
