package storage

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// defaultLatencyWindow is how many recent samples each latency ring keeps.
const defaultLatencyWindow = 4096

// latencyRing keeps the most recent latency samples for one operation in
// a fixed-size ring. Recording is a single slot write; order statistics
// are derived from a sorted copy taken at snapshot time, so the hot path
// never sorts.
type latencyRing struct {
	mu      sync.Mutex
	window  int
	samples []float64 // microseconds
	next    int       // overwrite cursor, valid once the ring is full
}

func newLatencyRing(window int) *latencyRing {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &latencyRing{
		window:  window,
		samples: make([]float64, 0, window),
	}
}

// record adds one sample, overwriting the oldest once the window is full.
func (r *latencyRing) record(latencyUs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) < r.window {
		r.samples = append(r.samples, latencyUs)
		return
	}

	r.samples[r.next] = latencyUs
	r.next = (r.next + 1) % r.window
}

// reset discards all samples.
func (r *latencyRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
	r.next = 0
}

// LatencyStats summarizes one operation's recent latency distribution.
// All values are microseconds.
type LatencyStats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

// stats sorts a copy of the window and reads the order statistics off it.
func (r *latencyRing) stats() LatencyStats {
	r.mu.Lock()
	sorted := append([]float64(nil), r.samples...)
	r.mu.Unlock()

	st := LatencyStats{Count: len(sorted)}
	if st.Count == 0 {
		return st
	}

	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.Mean = sum / float64(len(sorted))
	st.P50 = quantile(sorted, 0.50)
	st.P95 = quantile(sorted, 0.95)
	st.P99 = quantile(sorted, 0.99)
	return st
}

// quantile picks the q-th quantile from a sorted sample set by the
// nearest-rank rule.
func quantile(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// Metrics tracks buffer pool performance metrics. Counters cover the
// residency and allocation events of one instance; latency rings cover
// the three timed operations: fetch, write-back and allocation.
type Metrics struct {
	// Residency metrics
	cacheHits        atomic.Uint64
	cacheMisses      atomic.Uint64
	pageEvictions    atomic.Uint64
	dirtyPageFlushes atomic.Uint64

	// Allocation metrics
	pagesAllocated atomic.Uint64
	pagesDeleted   atomic.Uint64

	// Latency windows (microseconds)
	pageFetchLatency *latencyRing // FetchPage
	pageFlushLatency *latencyRing // Frame write-back
	newPageLatency   *latencyRing // NewPage

	// Timing
	startTime time.Time
	mu        sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:        time.Now(),
		pageFetchLatency: newLatencyRing(defaultLatencyWindow),
		pageFlushLatency: newLatencyRing(defaultLatencyWindow),
		newPageLatency:   newLatencyRing(defaultLatencyWindow),
	}
}

// Residency metrics

func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

func (m *Metrics) RecordPageEviction() {
	m.pageEvictions.Add(1)
}

func (m *Metrics) RecordDirtyPageFlush() {
	m.dirtyPageFlushes.Add(1)
}

// Allocation metrics

func (m *Metrics) RecordPageAllocation() {
	m.pagesAllocated.Add(1)
}

func (m *Metrics) RecordPageDeletion() {
	m.pagesDeleted.Add(1)
}

// Latency recording

// RecordPageFetchLatency records the latency of a page fetch operation
func (m *Metrics) RecordPageFetchLatency(duration time.Duration) {
	m.pageFetchLatency.record(float64(duration.Microseconds()))
}

// RecordPageFlushLatency records the latency of a frame write-back
func (m *Metrics) RecordPageFlushLatency(duration time.Duration) {
	m.pageFlushLatency.record(float64(duration.Microseconds()))
}

// RecordNewPageLatency records the latency of a page allocation
func (m *Metrics) RecordNewPageLatency(duration time.Duration) {
	m.newPageLatency.record(float64(duration.Microseconds()))
}

// Getters

func (m *Metrics) GetCacheHits() uint64 {
	return m.cacheHits.Load()
}

func (m *Metrics) GetCacheMisses() uint64 {
	return m.cacheMisses.Load()
}

func (m *Metrics) GetCacheHitRate() float64 {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

func (m *Metrics) GetPageEvictions() uint64 {
	return m.pageEvictions.Load()
}

func (m *Metrics) GetDirtyPageFlushes() uint64 {
	return m.dirtyPageFlushes.Load()
}

func (m *Metrics) GetPagesAllocated() uint64 {
	return m.pagesAllocated.Load()
}

func (m *Metrics) GetPagesDeleted() uint64 {
	return m.pagesDeleted.Load()
}

func (m *Metrics) GetUptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// Latency getters

// GetPageFetchLatency summarizes recent page fetch latencies
func (m *Metrics) GetPageFetchLatency() LatencyStats {
	return m.pageFetchLatency.stats()
}

// GetPageFlushLatency summarizes recent write-back latencies
func (m *Metrics) GetPageFlushLatency() LatencyStats {
	return m.pageFlushLatency.stats()
}

// GetNewPageLatency summarizes recent allocation latencies
func (m *Metrics) GetNewPageLatency() LatencyStats {
	return m.newPageLatency.stats()
}

// LogMetrics logs all metrics using structured logging
func (m *Metrics) LogMetrics(logger *slog.Logger) {
	pageFetch := m.GetPageFetchLatency()
	pageFlush := m.GetPageFlushLatency()
	newPage := m.GetNewPageLatency()

	logger.Info("Buffer Pool Metrics",
		slog.Group("residency",
			slog.Uint64("cache_hits", m.GetCacheHits()),
			slog.Uint64("cache_misses", m.GetCacheMisses()),
			slog.Float64("cache_hit_rate", m.GetCacheHitRate()),
			slog.Uint64("page_evictions", m.GetPageEvictions()),
			slog.Uint64("dirty_page_flushes", m.GetDirtyPageFlushes()),
		),
		slog.Group("allocation",
			slog.Uint64("pages_allocated", m.GetPagesAllocated()),
			slog.Uint64("pages_deleted", m.GetPagesDeleted()),
		),
		slog.Group("latency_us",
			slog.Group("page_fetch",
				slog.Int("count", pageFetch.Count),
				slog.Float64("mean", pageFetch.Mean),
				slog.Float64("p50", pageFetch.P50),
				slog.Float64("p95", pageFetch.P95),
				slog.Float64("p99", pageFetch.P99),
			),
			slog.Group("page_flush",
				slog.Int("count", pageFlush.Count),
				slog.Float64("mean", pageFlush.Mean),
				slog.Float64("p95", pageFlush.P95),
				slog.Float64("p99", pageFlush.P99),
			),
			slog.Group("new_page",
				slog.Int("count", newPage.Count),
				slog.Float64("mean", newPage.Mean),
				slog.Float64("p95", newPage.P95),
				slog.Float64("p99", newPage.P99),
			),
		),
		slog.Duration("uptime", m.GetUptime()),
	)
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.pageEvictions.Store(0)
	m.dirtyPageFlushes.Store(0)
	m.pagesAllocated.Store(0)
	m.pagesDeleted.Store(0)

	m.pageFetchLatency.reset()
	m.pageFlushLatency.reset()
	m.newPageLatency.reset()

	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}
