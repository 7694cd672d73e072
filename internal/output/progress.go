package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/Cruz1122/thingsboard/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	auth      *metrics.AuthRecorder
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. auth may be nil.
func NewProgressReporter(collector *metrics.Collector, auth *metrics.AuthRecorder, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		auth:      auth,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	stats := p.collector.Stats(elapsed)
	line := fmt.Sprintf("\rRequests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec)
	if p.auth != nil {
		auth := p.auth.Stats(elapsed)
		line += fmt.Sprintf(" | Cached: %d", auth.CacheHits)
		for _, op := range sortedKeys(auth.Operations) {
			line += fmt.Sprintf(" | %s: %d", op, auth.Operations[op].Total)
		}
	}
	return line
}
