package discount

import (
	"context"
	"fmt"
	"time"
)

// Repo is the read side owned by the discount subsystem. Usage increments
// happen inside the checkout transaction (order.Tx.RecordDiscountUsage) so
// counters commit atomically with the orders that consumed them.
type Repo interface {
	FindByCodes(ctx context.Context, codes []string) ([]Discount, error)
	// UserUsage returns how many times the user already consumed each of
	// the given discounts, keyed by discount id.
	UserUsage(ctx context.Context, userID string, discountIDs []string) (map[string]int, error)
}

type Validator struct {
	Repo Repo
	// Now is swappable in tests; nil means time.Now.
	Now func() time.Time
}

// Validate resolves every code and checks status, date window, global cap
// and the caller's per-user cap. All codes are checked before checkout
// touches any stock, so a bad code never leaves partial side effects.
func (v *Validator) Validate(ctx context.Context, userID string, codes []string) ([]Discount, error) {
	codes = dedupe(codes)
	if len(codes) == 0 {
		return nil, nil
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	found, err := v.Repo.FindByCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("find discounts: %w", err)
	}
	byCode := make(map[string]Discount, len(found))
	for _, d := range found {
		byCode[d.Code] = d
	}

	out := make([]Discount, 0, len(codes))
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		d, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		if d.Status != StatusActive {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, code)
		}
		if now.Before(d.StartDate) || now.After(d.EndDate) {
			return nil, fmt.Errorf("%w: %s", ErrExpired, code)
		}
		if d.MaxUses > 0 && d.UsesCount >= d.MaxUses {
			return nil, fmt.Errorf("%w: %s", ErrExhausted, code)
		}
		out = append(out, d)
		ids = append(ids, d.ID)
	}

	withUserCap := false
	for _, d := range out {
		if d.MaxUsesPerUser > 0 {
			withUserCap = true
			break
		}
	}
	if withUserCap {
		usage, err := v.Repo.UserUsage(ctx, userID, ids)
		if err != nil {
			return nil, fmt.Errorf("discount usage for user %s: %w", userID, err)
		}
		for _, d := range out {
			if d.MaxUsesPerUser > 0 && usage[d.ID] >= d.MaxUsesPerUser {
				return nil, fmt.Errorf("%w: %s", ErrUserLimitReached, d.Code)
			}
		}
	}
	return out, nil
}

func dedupe(codes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
