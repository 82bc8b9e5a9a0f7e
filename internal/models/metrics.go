package models

import "time"

// SystemMetrics is a JSON snapshot of the in-process instrumentation counters.
type SystemMetrics struct {
	CacheHitRatio            float64                 `json:"cache_hit_ratio"`
	CacheHits                uint64                  `json:"cache_hits"`
	CacheMisses              uint64                  `json:"cache_misses"`
	RequestsTotal            uint64                  `json:"requests_total"`
	AverageRequestDurationMs float64                 `json:"average_request_duration_ms"`
	DBQueryCount             uint64                  `json:"db_query_count"`
	AverageDBQueryDurationMs float64                 `json:"average_db_query_duration_ms"`
	LetterTransitions        uint64                  `json:"letter_transitions"`
	DispositionsCompleted    uint64                  `json:"dispositions_completed"`
	ExportsFinished          uint64                  `json:"exports_finished"`
	ExportsFailed            uint64                  `json:"exports_failed"`
	Queues                   map[string]QueueMetrics `json:"queues,omitempty"`
	Goroutines               int                     `json:"goroutines"`
	GeneratedAt              time.Time               `json:"generated_at"`
}

// QueueMetrics mirrors a background job queue's counters.
type QueueMetrics struct {
	Pending   int    `json:"pending"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}
