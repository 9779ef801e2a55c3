package orders

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// SalesStats aggregates the seller's revenue (price x qty over the
// seller's order items) into time buckets: hourly over the last 24 hours,
// daily over the last 15 days, or monthly over the last year. The series
// is contiguous and ascending; buckets with no revenue carry zero.
func (r *Repo) SalesStats(ctx context.Context, sellerID string, rng StatsRange) ([]StatsBucket, error) {
	g := rng.granularity()
	now := time.Now().UTC()
	since := g.truncate(now.Add(-g.window))

	rows, err := r.DB.Query(ctx, `
		SELECT date_trunc($3, o.created_at AT TIME ZONE 'UTC') AS bucket,
		       SUM(oi.price_cents * oi.qty)::bigint
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE oi.seller_id = $1 AND o.created_at >= $2
		GROUP BY bucket`, sellerID, since, g.trunc)
	if err != nil {
		return nil, errors.Wrap(err, "sales stats")
	}
	defer rows.Close()

	points := map[time.Time]int64{}
	for rows.Next() {
		var bucket time.Time
		var revenue int64
		if err := rows.Scan(&bucket, &revenue); err != nil {
			return nil, errors.Wrap(err, "scan bucket")
		}
		points[bucket.UTC()] = revenue
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sales stats")
	}
	return rng.fillSeries(now, points), nil
}
