package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type eventKey struct {
	component string
	event     string
}

type eventCount struct {
	count int64
	first time.Time
	attrs []slog.Attr
}

// Aggregator collapses repeated events into periodic event_summary records.
// Backpressure drops and per-session capture failures can fire many times a
// second; one summary per interval keeps the log readable.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	counts map[eventKey]*eventCount

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAggregator returns an aggregator flushing every intervalSecs seconds.
// A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		counts:   make(map[eventKey]*eventCount),
		stop:     make(chan struct{}),
	}
}

// Start launches the flush loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop and emits whatever is pending. Safe to call twice.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		a.wg.Wait()
		a.Flush()
	})
}

// Record counts one occurrence. The attrs of the latest occurrence are kept.
func (a *Aggregator) Record(component, event string, attrs ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := eventKey{component: component, event: event}
	c, ok := a.counts[key]
	if !ok {
		c = &eventCount{first: time.Now()}
		a.counts[key] = c
	}
	c.count++
	if len(attrs) > 0 {
		c.attrs = attrs
	}
}

// Pending returns the count recorded for an event since the last flush.
func (a *Aggregator) Pending(component, event string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.counts[eventKey{component: component, event: event}]; ok {
		return c.count
	}
	return 0
}

// Flush emits one summary per recorded event, ordered by component and event.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	counts := a.counts
	a.counts = make(map[eventKey]*eventCount)
	a.mu.Unlock()

	if a.logger == nil || len(counts) == 0 {
		return
	}

	keys := make([]eventKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].component != keys[j].component {
			return keys[i].component < keys[j].component
		}
		return keys[i].event < keys[j].event
	})

	for _, k := range keys {
		c := counts[k]
		args := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", c.count),
			slog.Duration("since", time.Since(c.first).Round(time.Second)),
		}
		for _, attr := range c.attrs {
			args = append(args, attr)
		}
		a.logger.Info("event_summary", args...)
	}
}
