package redisx

import "time"

const (
	// Cached stats series: stats:{seller_id}:{range} -> JSON bucket array
	KeyStats = "stats:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStats = 2 * time.Minute
	TTLDedup = 48 * time.Hour
)
