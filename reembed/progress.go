package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Outcome is what happened to one document during a reindex.
type Outcome int

const (
	OutcomeIndexed Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

// ProgressTracker counts outcomes and periodically writes a status line.
type ProgressTracker struct {
	writer         io.Writer
	summary        Summary
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker for total documents that reports
// every reportInterval outcomes.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		summary:        Summary{Total: total},
		reportInterval: max(reportInterval, 1),
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.summary = Summary{Total: p.summary.Total}
	p.lastReported = 0
}

// Record counts one finished document.
func (p *ProgressTracker) Record(outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	switch outcome {
	case OutcomeIndexed:
		p.summary.Indexed++
	case OutcomeFailed:
		p.summary.Failed++
	default:
		p.summary.Skipped++
	}

	if done := p.summary.done(); done-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = done
	}
}

// Finish prints final progress followed by a newline.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Summary returns the counts so far.
func (p *ProgressTracker) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	done := p.summary.done()
	rate := float64(done) / time.Since(p.startTime).Seconds()

	percentage := 0.0
	if p.summary.Total > 0 {
		percentage = float64(done) / float64(p.summary.Total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rReindexed: %d/%d (%.1f%%) indexed=%d failed=%d skipped=%d - %.2f documents/s",
		done, p.summary.Total, percentage, p.summary.Indexed, p.summary.Failed, p.summary.Skipped, rate)
}
