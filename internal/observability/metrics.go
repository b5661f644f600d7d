package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics keeps in-process counters for the HTTP surface: request counts and
// cumulative latency per method/path/status, plus error counts per domain
// error code. No external metrics backend is wired; the counters feed the
// request logger and stay inspectable from a debugger.
type Metrics struct {
	mu       sync.Mutex
	requests map[string]int64
	latency  map[string]time.Duration
	errors   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[string]int64),
		latency:  make(map[string]time.Duration),
		errors:   make(map[string]int64),
	}
}

// RecordRequest counts one handled request and accumulates its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := method + " " + path + " " + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[key]++
	m.latency[key] += duration
}

// RecordError counts one request that ended in a domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method+" "+path+" "+code]++
}
