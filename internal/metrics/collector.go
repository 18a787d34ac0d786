package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides simple built-in metrics collection for the live page layer
type Collector struct {
	pageMetrics    *PageMetrics
	actionCounters map[string]*int64
	mu             sync.RWMutex
	startTime      time.Time
}

// PageMetrics tracks page-interaction counters
type PageMetrics struct {
	// Pages and connections
	PagesLoaded          int64 `json:"pages_loaded"`
	ActiveConnections    int64 `json:"active_connections"`
	MaxConcurrentClients int64 `json:"max_concurrent_clients"`

	// Actions
	ActionsHandled     int64 `json:"actions_handled"`
	ActionFailures     int64 `json:"action_failures"`
	ValidationFailures int64 `json:"validation_failures"`

	// Effects
	PatchesSent    int64 `json:"patches_sent"`
	MissingTargets int64 `json:"missing_targets"`
	Redirects      int64 `json:"redirects"`

	// Session cleanup
	CleanupOperations      int64 `json:"cleanup_operations"`
	ExpiredSessionsRemoved int64 `json:"expired_sessions_removed"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// Snapshot is the JSON view served by the debug endpoint
type Snapshot struct {
	PageMetrics
	Actions map[string]int64 `json:"actions"`

	// MissingTargetRate is the percentage of patches that found no element
	MissingTargetRate float64 `json:"missing_target_rate"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		pageMetrics: &PageMetrics{
			StartTime: time.Now(),
		},
		actionCounters: make(map[string]*int64),
		startTime:      time.Now(),
	}
}

// IncrementPageLoaded records a rendered page
func (c *Collector) IncrementPageLoaded() {
	atomic.AddInt64(&c.pageMetrics.PagesLoaded, 1)
}

// ConnectionOpened records a new live connection
func (c *Collector) ConnectionOpened() {
	currentActive := atomic.AddInt64(&c.pageMetrics.ActiveConnections, 1)

	// Update max concurrent if needed
	for {
		max := atomic.LoadInt64(&c.pageMetrics.MaxConcurrentClients)
		if currentActive <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.pageMetrics.MaxConcurrentClients, max, currentActive) {
			break
		}
	}
}

// ConnectionClosed records a closed live connection
func (c *Collector) ConnectionClosed() {
	atomic.AddInt64(&c.pageMetrics.ActiveConnections, -1)
}

// RecordAction records a handled action by kind
func (c *Collector) RecordAction(kind string) {
	atomic.AddInt64(&c.pageMetrics.ActionsHandled, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.actionCounters[kind]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.actionCounters[kind] = &newCounter
	}
}

// IncrementActionFailure records an action that could not be dispatched
func (c *Collector) IncrementActionFailure() {
	atomic.AddInt64(&c.pageMetrics.ActionFailures, 1)
}

// IncrementValidationFailure records a rejected action payload
func (c *Collector) IncrementValidationFailure() {
	atomic.AddInt64(&c.pageMetrics.ValidationFailures, 1)
}

// AddPatches records patches sent to a client and how many found no target
func (c *Collector) AddPatches(sent, missing int) {
	atomic.AddInt64(&c.pageMetrics.PatchesSent, int64(sent))
	atomic.AddInt64(&c.pageMetrics.MissingTargets, int64(missing))
}

// IncrementRedirect records a full-page navigation
func (c *Collector) IncrementRedirect() {
	atomic.AddInt64(&c.pageMetrics.Redirects, 1)
}

// IncrementCleanupOperation records a session cleanup pass
func (c *Collector) IncrementCleanupOperation(expiredSessionsRemoved int64) {
	atomic.AddInt64(&c.pageMetrics.CleanupOperations, 1)
	atomic.AddInt64(&c.pageMetrics.ExpiredSessionsRemoved, expiredSessionsRemoved)
}

// GetMetrics returns current page metrics
func (c *Collector) GetMetrics() PageMetrics {
	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	// Return a copy with current atomic values
	return PageMetrics{
		PagesLoaded:            atomic.LoadInt64(&c.pageMetrics.PagesLoaded),
		ActiveConnections:      atomic.LoadInt64(&c.pageMetrics.ActiveConnections),
		MaxConcurrentClients:   atomic.LoadInt64(&c.pageMetrics.MaxConcurrentClients),
		ActionsHandled:         atomic.LoadInt64(&c.pageMetrics.ActionsHandled),
		ActionFailures:         atomic.LoadInt64(&c.pageMetrics.ActionFailures),
		ValidationFailures:     atomic.LoadInt64(&c.pageMetrics.ValidationFailures),
		PatchesSent:            atomic.LoadInt64(&c.pageMetrics.PatchesSent),
		MissingTargets:         atomic.LoadInt64(&c.pageMetrics.MissingTargets),
		Redirects:              atomic.LoadInt64(&c.pageMetrics.Redirects),
		CleanupOperations:      atomic.LoadInt64(&c.pageMetrics.CleanupOperations),
		ExpiredSessionsRemoved: atomic.LoadInt64(&c.pageMetrics.ExpiredSessionsRemoved),
		StartTime:              startTime,
		Uptime:                 time.Since(startTime),
	}
}

// GetActionCounters returns handled actions by kind
func (c *Collector) GetActionCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.actionCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// Snapshot returns metrics and per-action counters together
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		PageMetrics:       c.GetMetrics(),
		Actions:           c.GetActionCounters(),
		MissingTargetRate: c.GetMissingTargetRate(),
	}
}

// GetMissingTargetRate returns the percentage of patches that found no element
func (c *Collector) GetMissingTargetRate() float64 {
	sent := atomic.LoadInt64(&c.pageMetrics.PatchesSent)
	missing := atomic.LoadInt64(&c.pageMetrics.MissingTargets)

	if sent == 0 {
		return 0.0
	}

	return float64(missing) / float64(sent) * 100.0
}
