// Package worker keeps cached seller stats fresh: every committed order
// invalidates the cached revenue series of the sellers it touched, so the
// next dashboard read recomputes from the database.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/adiwidodo/go-marketplace-orders/internal/kafka"
	"github.com/adiwidodo/go-marketplace-orders/internal/orders"
	"github.com/adiwidodo/go-marketplace-orders/internal/redisx"
)

type Cache interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type Service struct {
	Cache       Cache
	Log         *logrus.Logger
	ServiceName string
}

var allRanges = []orders.StatsRange{orders.Range24h, orders.Range15d, orders.Range1y}

// HandleOrderPlaced is the consumer handler for the order-placed topic.
// Redelivered events are dropped via a per-event dedup marker.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Cache.SetNX(ctx, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(p.SellerIDs)*len(allRanges))
	for _, sellerID := range p.SellerIDs {
		for _, rng := range allRanges {
			keys = append(keys, fmt.Sprintf(redisx.KeyStats, sellerID, rng))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.Cache.Del(ctx, keys...); err != nil {
		// Release the claim so the redelivery retries the invalidation;
		// otherwise the marker would suppress it and the stale series
		// survives until TTLStats expires.
		_ = s.Cache.Del(ctx, dkey)
		return err
	}
	s.Log.WithFields(logrus.Fields{
		"order_id": p.OrderID,
		"sellers":  len(p.SellerIDs),
	}).Info("stats cache invalidated")
	return nil
}
