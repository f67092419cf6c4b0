package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-lectures/internal/health"
	"ms-lectures/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okProbe(name string) health.Probe {
	return health.Probe{
		Name:    name,
		Timeout: time.Second,
		Check:   func(ctx context.Context) error { return nil },
	}
}

func failingProbe(name string) health.Probe {
	return health.Probe{
		Name:    name,
		Timeout: time.Second,
		Check:   func(ctx context.Context) error { return errors.New("connection refused") },
	}
}

func slowProbe(name string, budget, sleep time.Duration) health.Probe {
	return health.Probe{
		Name:    name,
		Timeout: budget,
		Check: func(ctx context.Context) error {
			time.Sleep(sleep)
			return nil
		},
	}
}

func newAggregator(globalTimeout time.Duration, probes ...health.Probe) *health.Aggregator {
	return health.NewAggregator(probes, globalTimeout, logger.NewTestLogger())
}

func TestProbeRunSuccess(t *testing.T) {
	res := okProbe("database").Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, "database", res.Name)
	assert.Empty(t, res.Error)
}

func TestProbeRunFailure(t *testing.T) {
	res := failingProbe("redis").Run(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, "connection refused", res.Error)
}

func TestProbeRunTimeout(t *testing.T) {
	res := slowProbe("stripe", 10*time.Millisecond, 200*time.Millisecond).Run(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, health.ErrProbeTimeout.Error(), res.Error)
	assert.Less(t, res.LatencyMS, int64(150), "Run must return at the budget, not the check's duration")
}

func TestProbeRunRecoversPanic(t *testing.T) {
	p := health.Probe{
		Name:    "panicky",
		Timeout: time.Second,
		Check:   func(ctx context.Context) error { panic("boom") },
	}
	res := p.Run(context.Background())
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "boom")
}

func TestProbeRunAdvisoryGrade(t *testing.T) {
	p := health.Probe{
		Name:     "memory",
		Timeout:  time.Second,
		Advisory: true,
		Grade: func(ctx context.Context) (health.Level, string, error) {
			return health.LevelWarning, "used 85.0%", nil
		},
	}
	res := p.Run(context.Background())
	assert.False(t, res.OK)
	assert.True(t, res.Advisory)
	assert.Equal(t, health.LevelWarning, res.Level)
	assert.Equal(t, "used 85.0%", res.Detail)
}

func TestCheckAllHealthy(t *testing.T) {
	agg := newAggregator(time.Second, okProbe("database"), okProbe("redis"), okProbe("stripe"))

	report := agg.Check(context.Background())
	assert.Equal(t, health.VerdictReady, report.Status)
	assert.Len(t, report.Checks, 3)
}

func TestCheckOneHardFailure(t *testing.T) {
	agg := newAggregator(time.Second, okProbe("database"), failingProbe("redis"))

	report := agg.Check(context.Background())
	assert.Equal(t, health.VerdictNotReady, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestCheckProbeTimeoutMakesNotReady(t *testing.T) {
	// The probe blows its own budget but the global deadline holds, so the
	// verdict is a plain failure rather than a global timeout.
	agg := newAggregator(time.Second,
		okProbe("database"),
		slowProbe("stripe", 20*time.Millisecond, 300*time.Millisecond))

	report := agg.Check(context.Background())
	assert.Equal(t, health.VerdictNotReady, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestCheckGlobalTimeout(t *testing.T) {
	// Per-probe budget exceeds the global deadline, so the global deadline
	// fires while the probe is still running.
	agg := newAggregator(30*time.Millisecond,
		slowProbe("stripe", time.Second, 500*time.Millisecond))

	start := time.Now()
	report := agg.Check(context.Background())
	assert.Equal(t, health.VerdictTimedOut, report.Status)
	assert.Less(t, time.Since(start), 300*time.Millisecond, "Check must not wait for the slow probe")
}

func TestCheckAdvisoryDoesNotFlipReadiness(t *testing.T) {
	warn := health.Probe{
		Name:     "memory",
		Timeout:  time.Second,
		Advisory: true,
		Grade: func(ctx context.Context) (health.Level, string, error) {
			return health.LevelCritical, "used 97.2%", nil
		},
	}
	agg := newAggregator(time.Second, okProbe("database"), warn)

	report := agg.Check(context.Background())
	assert.Equal(t, health.VerdictReady, report.Status)
}

func TestReadyStatusCodes(t *testing.T) {
	cases := []struct {
		name     string
		probes   []health.Probe
		global   time.Duration
		wantCode int
	}{
		{"all healthy", []health.Probe{okProbe("database")}, time.Second, http.StatusOK},
		{"hard failure", []health.Probe{failingProbe("database")}, time.Second, http.StatusServiceUnavailable},
		{"global timeout", []health.Probe{slowProbe("stripe", time.Second, 500*time.Millisecond)}, 30 * time.Millisecond, http.StatusRequestTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := health.NewHandler(newAggregator(tc.global, tc.probes...), false, logger.NewTestLogger())
			rec := httptest.NewRecorder()
			handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestReadyVerboseForbiddenInProduction(t *testing.T) {
	handler := health.NewHandler(newAggregator(time.Second, okProbe("database")), true, logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ReadyVerbose(rec, httptest.NewRequest(http.MethodGet, "/ready/verbose", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadyVerboseIncludesRuntime(t *testing.T) {
	handler := health.NewHandler(newAggregator(time.Second, okProbe("database")), false, logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ReadyVerbose(rec, httptest.NewRequest(http.MethodGet, "/ready/verbose", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string `json:"status"`
		Runtime struct {
			GoVersion  string `json:"go_version"`
			Goroutines int    `json:"goroutines"`
		} `json:"runtime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.NotEmpty(t, body.Runtime.GoVersion)
	assert.Greater(t, body.Runtime.Goroutines, 0)
}
