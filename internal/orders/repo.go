package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// DB is the pgxpool surface the repo uses; *pgxpool.Pool satisfies it.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct{ DB DB }

// Postgres unique_violation
const pgUniqueViolation = "23505"

// PlaceOrder commits one order, its items, and the matching stock
// decrements as a single transaction. Replaying an order id that already
// committed returns the stored order (replayed=true) instead of failing.
//
// The buyer id comes from the authenticated principal, never from the
// request body. Unit prices, product names and seller ids are read from
// the products table inside the transaction; the client-asserted total
// must equal the recomputed subtotal + tax + shipping.
func (r *Repo) PlaceOrder(ctx context.Context, buyerID string, in PlaceOrderInput) (Order, bool, error) {
	if err := in.Validate(); err != nil {
		return Order{}, false, err
	}

	// Idempotent replay: the order id is the idempotency key. A replay
	// only matches for the buyer who placed the order; anyone else reusing
	// the id is rejected.
	existing, err := r.GetOrder(ctx, in.OrderID)
	if err == nil {
		if existing.BuyerID != buyerID {
			return Order{}, false, &ValidationError{Field: "order_id", Reason: "already used"}
		}
		return existing, true, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return Order{}, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, seller_id, name, image, price_cents
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return Order{}, false, errors.Wrap(err, "load products")
	}
	type snapshot struct {
		sellerID, name, image string
		priceCents            int64
	}
	snaps := map[string]snapshot{}
	for rows.Next() {
		var id string
		var s snapshot
		if err := rows.Scan(&id, &s.sellerID, &s.name, &s.image, &s.priceCents); err != nil {
			rows.Close()
			return Order{}, false, errors.Wrap(err, "scan product")
		}
		snaps[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, false, errors.Wrap(err, "load products")
	}

	var subtotal int64
	items := make([]OrderItem, 0, len(in.Items))
	for i, it := range in.Items {
		s, ok := snaps[it.ProductID]
		if !ok {
			return Order{}, false, errors.Wrapf(ErrProductNotFound, "product %s", it.ProductID)
		}
		subtotal += s.priceCents * int64(it.Qty)
		items = append(items, OrderItem{
			OrderID:      in.OrderID,
			Position:     i,
			ProductID:    it.ProductID,
			SellerID:     s.sellerID,
			ProductName:  s.name,
			ProductImage: s.image,
			Qty:          it.Qty,
			PriceCents:   s.priceCents,
		})
	}
	if subtotal+in.TaxCents+in.ShippingCents != in.TotalCents {
		return Order{}, false, &ValidationError{
			Field:  "total_cents",
			Reason: "does not equal subtotal + tax + shipping",
		}
	}

	o := Order{
		ID:              in.OrderID,
		BuyerID:         buyerID,
		CustomerName:    in.CustomerName,
		SubtotalCents:   subtotal,
		TaxCents:        in.TaxCents,
		ShippingCents:   in.ShippingCents,
		TotalCents:      in.TotalCents,
		ShippingAddress: in.ShippingAddress,
		Status:          StatusPending,
		Items:           items,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, buyer_id, customer_name, subtotal_cents, tax_cents,
		                   shipping_cents, total_cents, shipping_address, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, o.CustomerName, o.SubtotalCents, o.TaxCents,
		o.ShippingCents, o.TotalCents, o.ShippingAddress, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		// Two concurrent first placements of the same id both pass the
		// pre-check; the loser lands here and must see the winner's order
		// as a replay, not an error.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			_ = tx.Rollback(ctx)
			won, rerr := r.GetOrder(ctx, in.OrderID)
			if rerr != nil {
				return Order{}, false, errors.Wrap(rerr, "reread after duplicate")
			}
			if won.BuyerID != buyerID {
				return Order{}, false, &ValidationError{Field: "order_id", Reason: "already used"}
			}
			return won, true, nil
		}
		return Order{}, false, errors.Wrap(err, "insert order")
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, seller_id,
			                        product_name, product_image, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.OrderID, it.Position, it.ProductID, it.SellerID,
			it.ProductName, it.ProductImage, it.Qty, it.PriceCents,
		); err != nil {
			return Order{}, false, errors.Wrap(err, "insert order item")
		}
	}

	// Conditional decrement: zero rows affected means the floor would be
	// crossed, and the whole order rolls back.
	for _, it := range items {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return Order{}, false, errors.Wrap(err, "decrement stock")
		}
		if ct.RowsAffected() == 0 {
			var avail int
			if err := tx.QueryRow(ctx,
				`SELECT stock FROM products WHERE id=$1`, it.ProductID).Scan(&avail); err != nil {
				return Order{}, false, errors.Wrap(err, "read stock")
			}
			return Order{}, false, &OutOfStockError{
				ProductID: it.ProductID, Required: it.Qty, Available: avail,
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, errors.Wrap(err, "commit")
	}
	return o, false, nil
}

// UpdateStatus changes only the status field, guarding the lifecycle
// transition under a row lock.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, next Status) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return errors.Wrap(err, "read status")
	}
	if !CanTransition(cur, next) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", cur, next)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, next); err != nil {
		return errors.Wrap(err, "update status")
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, seller_id, name, description, image, category,
		       price_cents, stock, active, created_at, updated_at
		FROM products WHERE active ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Image,
			&p.Category, &p.PriceCents, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "list products")
}
