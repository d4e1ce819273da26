package models

import "time"

// SystemMetrics is a point-in-time view of the desk's counters for the admin summary.
type SystemMetrics struct {
	HTTPRequests             uint64            `json:"http_requests"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	QuotaCacheHits           uint64            `json:"quota_cache_hits"`
	QuotaCacheMisses         uint64            `json:"quota_cache_misses"`
	QuotaCacheHitRatio       float64           `json:"quota_cache_hit_ratio"`
	Transitions              map[string]uint64 `json:"transitions"`
	Notifications            map[string]uint64 `json:"notifications"`
	Materializations         uint64            `json:"materializations"`
	AverageMaterializationMs float64           `json:"average_materialization_ms"`
	RealtimeClients          int64             `json:"realtime_clients"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
