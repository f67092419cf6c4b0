package health

import (
	"context"
	"fmt"
	"time"

	"ms-lectures/internal/logger"
)

// Verdict is the terminal state of one readiness request.
type Verdict string

const (
	VerdictReady    Verdict = "ready"
	VerdictNotReady Verdict = "not_ready"
	VerdictTimedOut Verdict = "timed_out"
)

// Report is the composite result handed to the transport layer. Every code
// path through the aggregator produces one; nothing propagates upward.
type Report struct {
	Status    Verdict  `json:"status"`
	Checks    []Result `json:"checks"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

// Aggregator races all configured probes concurrently and the whole wait
// against a global deadline, so a readiness request can never hang past the
// budget no matter what the individual checks do.
type Aggregator struct {
	Probes        []Probe
	GlobalTimeout time.Duration
	Log           *logger.Logger
}

func NewAggregator(probes []Probe, globalTimeout time.Duration, log *logger.Logger) *Aggregator {
	return &Aggregator{Probes: probes, GlobalTimeout: globalTimeout, Log: log}
}

// Check runs every probe on its own goroutine and collects results until
// either all probes finish (each individually bounded) or the global
// deadline fires first, in which case the verdict is the dedicated
// timed-out state rather than plain not-ready.
func (a *Aggregator) Check(ctx context.Context) Report {
	gctx, cancel := context.WithTimeout(ctx, a.GlobalTimeout)
	defer cancel()

	start := time.Now()
	results := make(chan Result, len(a.Probes))
	for _, p := range a.Probes {
		go func(p Probe) {
			results <- p.Run(gctx)
		}(p)
	}

	report := Report{Checks: make([]Result, 0, len(a.Probes))}
	for len(report.Checks) < len(a.Probes) {
		select {
		case res := <-results:
			report.Checks = append(report.Checks, res)
		case <-gctx.Done():
			// Probes racing the same deadline may have delivered in the
			// same instant; drain before declaring the global timeout.
			for drained := true; drained && len(report.Checks) < len(a.Probes); {
				select {
				case res := <-results:
					report.Checks = append(report.Checks, res)
				default:
					drained = false
				}
			}
			if len(report.Checks) < len(a.Probes) {
				report.Status = VerdictTimedOut
				report.ElapsedMS = time.Since(start).Milliseconds()
				a.Log.Warn("READINESS", fmt.Sprintf("Global deadline exceeded with %d/%d probes finished",
					len(report.Checks), len(a.Probes)))
				return report
			}
		}
	}

	report.ElapsedMS = time.Since(start).Milliseconds()
	report.Status = VerdictReady
	for _, res := range report.Checks {
		if res.Advisory {
			if res.Level != LevelOK {
				a.Log.LogProbe(res.Name, fmt.Sprintf("Advisory level %s", res.Level))
			}
			continue
		}
		if !res.OK {
			report.Status = VerdictNotReady
			a.Log.LogProbe(res.Name, fmt.Sprintf("Failed: %s", res.Error))
		}
	}
	return report
}
