package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `id, buyer_id, customer_name, subtotal_cents, tax_cents,
	shipping_cents, total_cents, shipping_address, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.CustomerName, &o.SubtotalCents, &o.TaxCents,
		&o.ShippingCents, &o.TotalCents, &o.ShippingAddress, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, errors.Wrap(err, "get order")
	}
	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return o, nil
}

// OrdersForBuyer returns the buyer's full order history, newest first.
// A buyer with no orders gets an empty slice, not an error.
func (r *Repo) OrdersForBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`,
		buyerID, "")
}

// OrdersForSeller returns orders containing at least one of the seller's
// items, newest first, with each order's item list cut down to that
// seller's items. Per-seller projections of one order partition its full
// item set.
func (r *Repo) OrdersForSeller(ctx context.Context, sellerID string) ([]Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $1)
		 ORDER BY created_at DESC`,
		sellerID, sellerID)
}

func (r *Repo) listOrders(ctx context.Context, query, arg, sellerFilter string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	out := []Order{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(out) == 0 {
		return out, nil
	}

	byOrder, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		items := byOrder[out[i].ID]
		if sellerFilter != "" {
			items = sellerItems(items, sellerFilter)
		}
		if items == nil {
			items = []OrderItem{}
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, position, product_id, seller_id, product_name,
		       product_image, qty, price_cents
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load items")
	}
	defer rows.Close()

	out := map[string][]OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.Position, &it.ProductID, &it.SellerID,
			&it.ProductName, &it.ProductImage, &it.Qty, &it.PriceCents); err != nil {
			return nil, errors.Wrap(err, "scan item")
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, errors.Wrap(rows.Err(), "load items")
}

// sellerItems projects an item list down to one seller's items, keeping
// input order.
func sellerItems(items []OrderItem, sellerID string) []OrderItem {
	out := []OrderItem{}
	for _, it := range items {
		if it.SellerID == sellerID {
			out = append(out, it)
		}
	}
	return out
}
