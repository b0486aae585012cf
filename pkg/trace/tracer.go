// Package trace records per-correlation-id timelines of pipeline stages.
// Spans feed the debugging endpoints and the chat error format.
package trace

import (
	"sync"
	"time"
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Span is one recorded stage execution.
type Span struct {
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
}

// Tracer collects spans keyed by correlation id. Appends are serialized;
// reads return copies.
type Tracer struct {
	mu    sync.Mutex
	spans map[string][]Span
}

// New creates an empty tracer.
func New() *Tracer {
	return &Tracer{spans: make(map[string][]Span)}
}

// Record appends a finished span for the cid.
func (t *Tracer) Record(cid string, span Span) {
	if cid == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans[cid] = append(t.spans[cid], span)
}

// RecordStage is the common case: a stage that ran from start to now.
func (t *Tracer) RecordStage(cid, stage string, start time.Time, err error) {
	span := Span{Stage: stage, StartedAt: start, EndedAt: time.Now(), Status: StatusOK}
	if err != nil {
		span.Status = StatusError
		span.Detail = err.Error()
	}
	t.Record(cid, span)
}

// Timeline returns the spans recorded for a cid, in append order.
func (t *Tracer) Timeline(cid string) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Span(nil), t.spans[cid]...)
}

// CountStage returns how many spans on the cid carry the given stage name.
func (t *Tracer) CountStage(cid, stage string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.spans[cid] {
		if s.Stage == stage {
			n++
		}
	}
	return n
}
