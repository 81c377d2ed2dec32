package audiosync

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/rpc"
)

func staticPositions(positions map[string]float64) PositionFunc {
	return func(ctx context.Context, zoneID string) (float64, error) {
		return positions[zoneID], nil
	}
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	return NewEngine(staticPositions(nil), zerolog.Nop(), opts...)
}

func TestSimpleOffsetCorrectionAveragesRecentDelays(t *testing.T) {
	e := newTestEngine(t, WithAlgorithm(SimpleOffset))

	for _, delay := range []float64{0.10, 0.12, 0.08, 0.10} {
		e.Measure("living-room", "kitchen", delay, 0)
	}

	correction := e.Correction("kitchen")
	require.InDelta(t, 0.10, correction, 1e-9)
}

func TestAdaptiveDelayWeightsByQuality(t *testing.T) {
	e := newTestEngine(t, WithAlgorithm(AdaptiveDelay), WithQuality(QualityLow))

	// A delay at the tolerance scores zero and drops out of the
	// weighted average.
	e.Measure("master", "slave", 0.02, 0)
	e.Measure("master", "slave", 0.10, 0)

	correction := e.Correction("slave")
	require.Less(t, correction, 0.06)
	require.Greater(t, correction, 0.0)
}

func TestKalmanFilterConverges(t *testing.T) {
	kf := newKalmanFilter()

	// First measurement initializes and passes through.
	require.InDelta(t, 0.1, kf.update(0.1), 1e-12)

	// Repeated identical measurements keep the estimate there.
	for i := 0; i < 50; i++ {
		kf.update(0.1)
	}
	require.InDelta(t, 0.1, kf.estimate, 1e-6)

	// The estimate moves toward a new steady measurement.
	var est float64
	for i := 0; i < 200; i++ {
		est = kf.update(0.2)
	}
	require.InDelta(t, 0.2, est, 0.01)
}

func TestCorrectionClampedToMaxSyncDelay(t *testing.T) {
	e := newTestEngine(t, WithAlgorithm(SimpleOffset), WithMaxSyncDelay(0.5))

	e.Measure("master", "slave", 10.0, 0)
	require.Equal(t, 0.5, e.Correction("slave"))

	e2 := newTestEngine(t, WithAlgorithm(SimpleOffset), WithMaxSyncDelay(0.5))
	e2.Measure("master", "slave", 0, 10.0)
	require.Equal(t, -0.5, e2.Correction("slave"))
}

func TestMeasureAppliesCompensation(t *testing.T) {
	e := newTestEngine(t)
	e.SetNetworkDelay("slave", 0.02)
	e.SetClockOffset("slave", 0.01)

	m := e.Measure("master", "slave", 1.10, 1.00)
	require.InDelta(t, 0.07, m.Delay, 1e-9)
}

func TestQualityScore(t *testing.T) {
	e := newTestEngine(t, WithQuality(QualityMedium))

	// Perfect sync scores 1.
	require.InDelta(t, 1.0, e.qualityScore(0, 0), 1e-9)

	// Delay at tolerance halves the score.
	require.InDelta(t, 0.5, e.qualityScore(0.05, 0), 1e-9)

	// Far out of tolerance bottoms out at zero.
	require.InDelta(t, 0.0, e.qualityScore(1.0, 1.0), 1e-9)
}

func TestPTPCorrectionFollowsTrend(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	e := NewEngine(staticPositions(nil), zerolog.Nop(),
		WithAlgorithm(PTPSync), WithEngineClock(func() time.Time { return now }))

	// Delay grows by 10ms per second.
	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i) * time.Second)
		e.Measure("master", "slave", 0.1+0.01*float64(i), 0)
	}

	// Evaluated at t=4s the regression should land on the last value.
	correction := e.Correction("slave")
	require.InDelta(t, 0.14, correction, 1e-6)
}

func TestSyncGroupAppliesCorrectionsPastTolerance(t *testing.T) {
	positions := map[string]float64{"master": 1.00, "slave": 0.80}
	e := NewEngine(staticPositions(positions), zerolog.Nop(),
		WithAlgorithm(SimpleOffset), WithQuality(QualityMedium))

	var mu sync.Mutex
	corrections := map[string]float64{}
	e.OnCorrection(func(zone string, correction float64) {
		mu.Lock()
		corrections[zone] = correction
		mu.Unlock()
	})

	_, err := e.AddGroup("g1", "master", []string{"slave"})
	require.NoError(t, err)

	require.NoError(t, e.SyncGroup(context.Background(), "g1"))

	mu.Lock()
	defer mu.Unlock()
	require.InDelta(t, 0.20, corrections["slave"], 1e-9)

	stats, err := e.StatsFor("slave")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Measurements)
	require.InDelta(t, 0.20, stats.AvgDelay, 1e-9)
}

func TestSyncGroupSkipsCorrectionWithinTolerance(t *testing.T) {
	positions := map[string]float64{"master": 1.000, "slave": 0.999}
	e := NewEngine(staticPositions(positions), zerolog.Nop(),
		WithAlgorithm(SimpleOffset), WithQuality(QualityMedium))

	called := false
	e.OnCorrection(func(zone string, correction float64) { called = true })

	_, err := e.AddGroup("g1", "master", []string{"slave"})
	require.NoError(t, err)
	require.NoError(t, e.SyncGroup(context.Background(), "g1"))
	require.False(t, called)
}

func TestAddGroupRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddGroup("g1", "master", []string{"a"})
	require.NoError(t, err)

	_, err = e.AddGroup("g1", "master", []string{"b"})
	require.Equal(t, rpc.CodeAlreadyRegistered, rpc.CodeOf(err))

	require.NoError(t, e.RemoveGroup("g1"))
	require.Equal(t, rpc.CodeNotFound, rpc.CodeOf(e.RemoveGroup("g1")))
}

func TestStatsQualityLevels(t *testing.T) {
	e := newTestEngine(t, WithQuality(QualityMedium))

	// Perfectly aligned zones reach the ultra level.
	for i := 0; i < 5; i++ {
		e.Measure("master", "slave", 1.0, 1.0)
	}
	e.updateStats("slave")

	stats, err := e.StatsFor("slave")
	require.NoError(t, err)
	require.Equal(t, QualityUltra, stats.Quality)
	require.InDelta(t, 0.0, stats.Jitter, 1e-9)

	perf := e.Performance("slave")
	require.Len(t, perf, 1)
	require.InDelta(t, 1.0, perf[0], 1e-9)
}

func TestMeasurementHistoryBounded(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < maxMeasurements+50; i++ {
		e.Measure("master", "slave", float64(i), 0)
	}
	e.mu.Lock()
	n := len(e.measurements["slave"])
	e.mu.Unlock()
	require.Equal(t, maxMeasurements, n)
}

func TestStddev(t *testing.T) {
	require.InDelta(t, 0.0, stddev([]float64{0.1}), 1e-12)
	require.InDelta(t, 0.5, stddev([]float64{1, 2}), 1e-12)
	require.InDelta(t, math.Sqrt(2.0/3.0), stddev([]float64{1, 2, 3}), 1e-12)
}
