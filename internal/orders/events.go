package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`   // uuid
	EventType     string          `json:"event_type"` // one of the consts above
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`    // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type PlacedItem struct {
	ProductID  string `json:"product_id"`
	SellerID   string `json:"seller_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type OrderPlacedPayload struct {
	OrderID    string       `json:"order_id"`
	BuyerID    string       `json:"buyer_id"`
	SellerIDs  []string     `json:"seller_ids"`
	Items      []PlacedItem `json:"items"`
	TotalCents int64        `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

// NewOrderPlacedPayload snapshots the committed order for downstream
// consumers; SellerIDs is deduplicated, in first-appearance order.
func NewOrderPlacedPayload(o Order) OrderPlacedPayload {
	p := OrderPlacedPayload{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		TotalCents: o.TotalCents,
	}
	seen := map[string]bool{}
	for _, it := range o.Items {
		if !seen[it.SellerID] {
			seen[it.SellerID] = true
			p.SellerIDs = append(p.SellerIDs, it.SellerID)
		}
		p.Items = append(p.Items, PlacedItem{
			ProductID:  it.ProductID,
			SellerID:   it.SellerID,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	return p
}
