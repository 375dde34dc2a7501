package storage

import "sync"

// TokenUsage is the accumulated model token count of a thread.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Calls  int `json:"calls"`
}

// UsageTracker accumulates token usage per thread. Model generators record
// into it before returning, so totals are complete once a pass returns.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]TokenUsage
}

// NewUsageTracker creates an empty UsageTracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]TokenUsage)}
}

// Record adds one completed model call to threadID. Calls outside a thread are ignored.
func (ut *UsageTracker) Record(threadID string, input, output int) {
	if threadID == "" {
		return
	}
	ut.mu.Lock()
	defer ut.mu.Unlock()

	u := ut.usage[threadID]
	u.Input += input
	u.Output += output
	u.Calls++
	ut.usage[threadID] = u
}

// Usage returns the usage recorded for threadID since the process started.
func (ut *UsageTracker) Usage(threadID string) TokenUsage {
	ut.mu.Lock()
	defer ut.mu.Unlock()
	return ut.usage[threadID]
}
