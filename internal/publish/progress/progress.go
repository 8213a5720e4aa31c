// Package progress delivers ordered, non-decreasing progress events for one
// publish call.
package progress

import (
	"sync"

	"slowclaw/internal/publish/models"
)

// Sink receives progress events. It is fire-and-forget: nothing it does is
// consulted by the pipeline.
type Sink func(models.ProgressEvent)

// Reporter wraps a Sink for a single publish call. Percentages are clamped to
// [0,100] and never go below the last reported value.
type Reporter struct {
	mu   sync.Mutex
	sink Sink
	last int
}

// NewReporter creates a reporter. A nil sink discards events.
func NewReporter(sink Sink) *Reporter {
	return &Reporter{sink: sink}
}

// Report emits one event and returns the percent actually delivered.
func (r *Reporter) Report(stage models.Stage, percent int, message string) int {
	if r == nil {
		return percent
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	percent = Clamp(percent, 0, 100)
	if percent < r.last {
		percent = r.last
	}
	r.last = percent

	if r.sink != nil {
		r.sink(models.ProgressEvent{Stage: stage, Percent: percent, Message: message})
	}
	return percent
}

// Last returns the highest percent delivered so far.
func (r *Reporter) Last() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Fanout returns a sink that forwards each event to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	return func(ev models.ProgressEvent) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}
