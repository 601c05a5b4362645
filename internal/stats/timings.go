// Package stats collects run diagnostics: wall-clock timings per pipeline
// stage and an optional process resource sampler for long batch runs.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StageTiming is the measured wall-clock duration of one pipeline stage.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
}

// Timings records stage durations in the order the stages ran.
type Timings struct {
	mu     sync.Mutex
	stages []StageTiming
}

func NewTimings() *Timings {
	return &Timings{}
}

// Track starts timing a stage and returns the function that stops it.
func (t *Timings) Track(name string) func() {
	start := time.Now()
	return func() {
		t.mu.Lock()
		t.stages = append(t.stages, StageTiming{Name: name, Duration: time.Since(start)})
		t.mu.Unlock()
	}
}

// Stages returns the recorded timings in run order.
func (t *Timings) Stages() []StageTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageTiming, len(t.stages))
	copy(out, t.stages)
	return out
}

// Total returns the sum of all recorded stage durations.
func (t *Timings) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum time.Duration
	for _, s := range t.stages {
		sum += s.Duration
	}
	return sum
}

// String renders a one-line summary suitable for a log field.
func (t *Timings) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(t.stages))
	for _, s := range t.stages {
		parts = append(parts, fmt.Sprintf("%s=%s", s.Name, s.Duration.Round(time.Millisecond)))
	}
	return strings.Join(parts, " ")
}
