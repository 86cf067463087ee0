package redisx

import "time"

const (
	// Per-SKU checkout lock: lock:sku:{sku_id} -> lease token
	KeySKULock = "lock:sku:%s"

	// Dedup for job/event processing: dedup:{consumer}:{id}
	KeyDedup = "dedup:%s:%s"

	// Cache order status for detail reads: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
