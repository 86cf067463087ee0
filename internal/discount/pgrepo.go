package discount

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepo struct{ DB *pgxpool.Pool }

func (r *PgRepo) FindByCodes(ctx context.Context, codes []string) ([]Discount, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, code, type, value, status, COALESCE(shop_id, ''),
		       start_date, end_date, max_uses, max_uses_per_user, uses_count
		FROM discounts
		WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Discount
	for rows.Next() {
		var d Discount
		if err := rows.Scan(&d.ID, &d.Code, &d.Type, &d.Value, &d.Status, &d.ShopID,
			&d.StartDate, &d.EndDate, &d.MaxUses, &d.MaxUsesPerUser, &d.UsesCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgRepo) UserUsage(ctx context.Context, userID string, discountIDs []string) (map[string]int, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT discount_id, COUNT(*)
		FROM discount_usages
		WHERE user_id = $1 AND discount_id = ANY($2)
		GROUP BY discount_id`, userID, discountIDs)
	if err != nil {
		return nil, fmt.Errorf("query discount usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int, len(discountIDs))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		usage[id] = n
	}
	return usage, rows.Err()
}
