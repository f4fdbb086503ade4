// Package telemetry records the wall-clock duration of recent print state
// machine transitions in a fixed-capacity ring, the same
// brandondube/ringo pairing envsrv uses for its temperature/time buffers.
// It is purely observational: nothing in the state machine reads it back.
package telemetry

import (
	"time"

	"github.com/brandondube/ringo"
)

// PhaseSample is one recorded transition.
type PhaseSample struct {
	Transition string
	Took       time.Duration
	At         time.Time
}

// Ring is a fixed-capacity recording of recent PhaseSamples. The zero value
// is not usable; construct with New.
//
// ringo's CircleF64/CircleTime carry the numeric and timestamp samples; the
// transition names ride alongside in a same-sized buffer managed with the
// identical cursor/filled algorithm, since ringo has no string ring.
type Ring struct {
	names   []string
	cursor  int
	filled  bool
	took    ringo.CircleF64
	at      ringo.CircleTime
}

// New returns a Ring holding up to capacity samples; once full, the oldest
// sample is overwritten.
func New(capacity int) *Ring {
	took := ringo.CircleF64{}
	took.Init(capacity)
	at := ringo.CircleTime{}
	at.Init(capacity)
	return &Ring{
		names: make([]string, capacity),
		took:  took,
		at:    at,
	}
}

// Record appends one transition sample.
func (r *Ring) Record(transition string, took time.Duration, at time.Time) {
	if r.cursor == cap(r.names) {
		r.cursor = 0
		r.filled = true
	}
	r.names[r.cursor] = transition
	r.cursor++
	r.took.Append(took.Seconds())
	r.at.Append(at)
}

func (r *Ring) namesContiguous() []string {
	if r.cursor == 0 && !r.filled {
		return nil
	}
	if r.filled {
		chunk1 := r.names[r.cursor:]
		chunk2 := r.names[:r.cursor]
		out := make([]string, 0, len(chunk1)+len(chunk2))
		out = append(out, chunk1...)
		out = append(out, chunk2...)
		return out
	}
	return r.names[:r.cursor]
}

// Recent returns the samples currently held, oldest first.
func (r *Ring) Recent() []PhaseSample {
	names := r.namesContiguous()
	if len(names) == 0 {
		return nil
	}
	secs := r.took.Contiguous()
	ats := r.at.Contiguous()
	out := make([]PhaseSample, len(names))
	for i := range names {
		out[i] = PhaseSample{
			Transition: names[i],
			Took:       time.Duration(secs[i] * float64(time.Second)),
			At:         ats[i],
		}
	}
	return out
}
