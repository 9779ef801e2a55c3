package orders

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	CustomerName    string          `json:"customer_name"`
	SubtotalCents   int64           `json:"subtotal_cents"`
	TaxCents        int64           `json:"tax_cents"`
	ShippingCents   int64           `json:"shipping_cents"`
	TotalCents      int64           `json:"total_cents"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	Status          Status          `json:"status"` // see status.go
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is a purchase-time snapshot: product name, image, seller and
// unit price are frozen when the order commits, so history survives later
// product edits or deletion.
type OrderItem struct {
	OrderID      string `json:"order_id"`
	Position     int    `json:"position"`
	ProductID    string `json:"product_id"`
	SellerID     string `json:"seller_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image"`
	Qty          int    `json:"qty"`
	PriceCents   int64  `json:"price_cents"`
}
