package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrProbeTimeout marks a dependency check that exceeded its own budget.
var ErrProbeTimeout = errors.New("probe timeout")

// Level is the advisory grade reported by resource-utilization probes.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Result is the structured outcome of a single probe run.
type Result struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Advisory  bool   `json:"advisory,omitempty"`
	Level     Level  `json:"level,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Probe is one bounded-time check against an external dependency. Hard
// probes set Check; advisory probes set Grade and never flip overall
// readiness on their own.
type Probe struct {
	Name     string
	Timeout  time.Duration
	Advisory bool
	Check    func(ctx context.Context) error
	Grade    func(ctx context.Context) (Level, string, error)
}

// Run races the check against the probe's own deadline. A check that blows
// its budget is reported as a timeout failure; the aggregator stops waiting
// on it even though the underlying call may still be in flight, since that
// result would be discarded either way. Panics inside a check surface as
// failed results, never as an unhandled error.
func (p Probe) Run(ctx context.Context) Result {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{
					Name:     p.Name,
					OK:       false,
					Advisory: p.Advisory,
					Error:    fmt.Sprintf("probe panic: %v", r),
				}
			}
		}()
		done <- p.run(cctx)
	}()

	select {
	case res := <-done:
		res.LatencyMS = time.Since(start).Milliseconds()
		return res
	case <-cctx.Done():
		res := Result{
			Name:      p.Name,
			OK:        false,
			Advisory:  p.Advisory,
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     ErrProbeTimeout.Error(),
		}
		if p.Advisory {
			res.Level = LevelCritical
		}
		return res
	}
}

func (p Probe) run(ctx context.Context) Result {
	if p.Advisory && p.Grade != nil {
		level, detail, err := p.Grade(ctx)
		res := Result{Name: p.Name, Advisory: true, Level: level, Detail: detail}
		if err != nil {
			res.Level = LevelCritical
			res.Error = err.Error()
			return res
		}
		res.OK = level == LevelOK
		return res
	}

	if err := p.Check(ctx); err != nil {
		return Result{Name: p.Name, OK: false, Advisory: p.Advisory, Error: err.Error()}
	}
	return Result{Name: p.Name, OK: true, Advisory: p.Advisory}
}
