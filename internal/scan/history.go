package scan

import "sync"

// DefaultHistorySize is how many results History keeps by default
const DefaultHistorySize = 50

// History keeps the most recent results in completion order
type History struct {
	mu      sync.Mutex
	size    int
	results []*ScanResult
}

// NewHistory creates a History holding at most size results
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Add appends r, dropping the oldest entry when full
func (h *History) Add(r *ScanResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	if over := len(h.results) - h.size; over > 0 {
		h.results = append(h.results[:0:0], h.results[over:]...)
	}
}

// Snapshot returns the results oldest first
func (h *History) Snapshot() []*ScanResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*ScanResult, len(h.results))
	copy(out, h.results)
	return out
}

// Len returns the number of results held
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}
