package orders

import "encoding/json"

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// PlaceOrderInput carries the client side of a checkout. Unit prices and
// the subtotal are never taken from here; they are resolved from the
// products table inside the placement transaction.
type PlaceOrderInput struct {
	OrderID         string          `json:"order_id"`
	CustomerName    string          `json:"customer_name"`
	TaxCents        int64           `json:"tax_cents"`
	ShippingCents   int64           `json:"shipping_cents"`
	TotalCents      int64           `json:"total_cents"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	Items           []ItemInput     `json:"items"`
}

func (in *PlaceOrderInput) Validate() error {
	if in.OrderID == "" {
		return &ValidationError{Field: "order_id", Reason: "required"}
	}
	if in.CustomerName == "" {
		return &ValidationError{Field: "customer_name", Reason: "required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	if in.TaxCents < 0 || in.ShippingCents < 0 || in.TotalCents < 0 {
		return &ValidationError{Field: "amounts", Reason: "must not be negative"}
	}
	if len(in.ShippingAddress) == 0 {
		return &ValidationError{Field: "shipping_address", Reason: "required"}
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: "items", Reason: "product_id required"}
		}
		if it.Qty <= 0 {
			return &ValidationError{Field: "items", Reason: "qty must be positive for product " + it.ProductID}
		}
	}
	return nil
}
