package tasks

import (
	"sync"
	"time"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const DefaultWindowSize = 256

// Outcome is the result of one dispatch of one source.
type Outcome struct {
	DispatchID   string
	SourceID     string
	Status       Status
	New          int
	Updated      int
	Duplicate    int
	Filtered     int
	Failed       int
	NotModified  bool
	ETag         string
	LastModified string
	Err          error
	StartedAt    time.Time
	Duration     time.Duration
}

// Succeeded reports whether the source itself responded usefully. Partial
// outcomes count: their failures are per-article store errors.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess || o.Status == StatusPartial
}

func (o Outcome) ErrorString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type WindowStats struct {
	Outcomes  int
	Success   int
	Partial   int
	Failed    int
	New       int
	Updated   int
	Duplicate int
	Filtered  int
}

// OutcomeWindow keeps the most recent outcomes in a fixed ring.
type OutcomeWindow struct {
	mu      sync.Mutex
	entries []Outcome
	next    int
	full    bool
}

func NewOutcomeWindow(size int) *OutcomeWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &OutcomeWindow{entries: make([]Outcome, size)}
}

func (w *OutcomeWindow) Add(outcome Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries[w.next] = outcome
	w.next = (w.next + 1) % len(w.entries)
	if w.next == 0 {
		w.full = true
	}
}

// Snapshot returns the retained outcomes, oldest first.
func (w *OutcomeWindow) Snapshot() []Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		return append([]Outcome(nil), w.entries[:w.next]...)
	}

	result := make([]Outcome, 0, len(w.entries))
	result = append(result, w.entries[w.next:]...)
	result = append(result, w.entries[:w.next]...)
	return result
}

func (w *OutcomeWindow) Stats() WindowStats {
	var stats WindowStats
	for _, o := range w.Snapshot() {
		stats.Outcomes++
		switch o.Status {
		case StatusSuccess:
			stats.Success++
		case StatusPartial:
			stats.Partial++
		case StatusFailed:
			stats.Failed++
		}
		stats.New += o.New
		stats.Updated += o.Updated
		stats.Duplicate += o.Duplicate
		stats.Filtered += o.Filtered
	}
	return stats
}
