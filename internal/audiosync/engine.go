package audiosync

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
)

// Algorithm selects how corrections are derived from measurements.
type Algorithm string

const (
	SimpleOffset  Algorithm = "simple_offset"
	AdaptiveDelay Algorithm = "adaptive_delay"
	KalmanFilter  Algorithm = "kalman_filter"
	PTPSync       Algorithm = "ptp_sync"
)

// QualityLevel is the target synchronization tightness.
type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
	QualityUltra  QualityLevel = "ultra"
)

// QualityTolerances maps each level to its delay tolerance in seconds.
var QualityTolerances = map[QualityLevel]float64{
	QualityLow:    0.1,
	QualityMedium: 0.05,
	QualityHigh:   0.02,
	QualityUltra:  0.005,
}

// Engine limits and defaults.
const (
	DefaultSyncInterval = 100 * time.Millisecond
	DefaultMaxSyncDelay = 1.0

	maxMeasurements       = 1000
	maxPerformanceSamples = 100
	recentWindow          = 10
)

// Measurement is one sampled master/slave position pair.
type Measurement struct {
	Timestamp      float64 `json:"timestamp"`
	MasterPosition float64 `json:"master_position"`
	SlavePosition  float64 `json:"slave_position"`
	Delay          float64 `json:"delay"`
	Jitter         float64 `json:"jitter"`
	Quality        float64 `json:"quality"`
}

// Stats summarizes a zone's synchronization history.
type Stats struct {
	ZoneID       string       `json:"zone_id"`
	AvgDelay     float64      `json:"avg_delay"`
	MaxDelay     float64      `json:"max_delay"`
	MinDelay     float64      `json:"min_delay"`
	Jitter       float64      `json:"jitter"`
	Quality      QualityLevel `json:"sync_quality"`
	Measurements int          `json:"measurements_count"`
	LastSync     time.Time    `json:"last_sync_time"`
}

// Group binds a master zone to the slaves synchronized against it.
type Group struct {
	ID         string    `json:"group_id"`
	MasterZone string    `json:"master_zone"`
	SlaveZones []string  `json:"slave_zones"`
	LastSync   time.Time `json:"last_sync"`
}

// PositionFunc reports the current playback position of a zone in
// seconds.
type PositionFunc func(ctx context.Context, zoneID string) (float64, error)

// CorrectionFunc observes applied corrections.
type CorrectionFunc func(zoneID string, correction float64)

// Publisher sends correction events to an external plane such as MQTT.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Engine measures inter-zone delays and computes playback corrections.
type Engine struct {
	mu sync.Mutex

	algorithm    Algorithm
	quality      QualityLevel
	interval     time.Duration
	maxSyncDelay float64

	groups        map[string]*Group
	measurements  map[string][]Measurement
	performance   map[string][]float64
	stats         map[string]*Stats
	networkDelays map[string]float64
	clockOffsets  map[string]float64
	kalman        map[string]*kalmanFilter

	position     PositionFunc
	onCorrection []CorrectionFunc
	publisher    Publisher

	logger zerolog.Logger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAlgorithm selects the correction algorithm.
func WithAlgorithm(a Algorithm) EngineOption {
	return func(e *Engine) {
		if a != "" {
			e.algorithm = a
		}
	}
}

// WithQuality selects the target quality level.
func WithQuality(q QualityLevel) EngineOption {
	return func(e *Engine) {
		if _, ok := QualityTolerances[q]; ok {
			e.quality = q
		}
	}
}

// WithSyncInterval overrides the sync loop cadence.
func WithSyncInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithMaxSyncDelay overrides the correction clamp in seconds.
func WithMaxSyncDelay(s float64) EngineOption {
	return func(e *Engine) {
		if s > 0 {
			e.maxSyncDelay = s
		}
	}
}

// WithPublisher publishes correction events externally.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithEngineClock injects a time source for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading positions through position.
func NewEngine(position PositionFunc, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		algorithm:     AdaptiveDelay,
		quality:       QualityMedium,
		interval:      DefaultSyncInterval,
		maxSyncDelay:  DefaultMaxSyncDelay,
		groups:        make(map[string]*Group),
		measurements:  make(map[string][]Measurement),
		performance:   make(map[string][]float64),
		stats:         make(map[string]*Stats),
		networkDelays: make(map[string]float64),
		clockOffsets:  make(map[string]float64),
		kalman:        make(map[string]*kalmanFilter),
		position:      position,
		logger:        logger.With().Str("component", "audiosync").Logger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tolerance returns the delay tolerance of the configured quality
// level.
func (e *Engine) Tolerance() float64 { return QualityTolerances[e.quality] }

// OnCorrection registers a correction observer.
func (e *Engine) OnCorrection(cb CorrectionFunc) {
	e.mu.Lock()
	e.onCorrection = append(e.onCorrection, cb)
	e.mu.Unlock()
}

// AddGroup registers a sync group and prepares per-slave state.
func (e *Engine) AddGroup(groupID, masterZone string, slaveZones []string) (*Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.groups[groupID]; exists {
		return nil, rpc.Errorf(rpc.CodeAlreadyRegistered, "sync group %s already exists", groupID)
	}

	g := &Group{
		ID:         groupID,
		MasterZone: masterZone,
		SlaveZones: append([]string(nil), slaveZones...),
	}
	e.groups[groupID] = g

	for _, zone := range slaveZones {
		if _, ok := e.kalman[zone]; !ok {
			e.kalman[zone] = newKalmanFilter()
		}
		if _, ok := e.stats[zone]; !ok {
			e.stats[zone] = &Stats{ZoneID: zone, Quality: QualityLow}
		}
	}

	e.logger.Info().
		Str("group_id", groupID).
		Str("master", masterZone).
		Strs("slaves", slaveZones).
		Msg("sync group added")
	return g, nil
}

// RemoveGroup drops a sync group. Per-zone history is kept.
func (e *Engine) RemoveGroup(groupID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.groups[groupID]; !ok {
		return rpc.Errorf(rpc.CodeNotFound, "sync group %s not found", groupID)
	}
	delete(e.groups, groupID)
	e.logger.Info().Str("group_id", groupID).Msg("sync group removed")
	return nil
}

// Groups returns a snapshot of the registered groups.
func (e *Engine) Groups() []*Group {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Group, 0, len(e.groups))
	for _, g := range e.groups {
		copied := *g
		copied.SlaveZones = append([]string(nil), g.SlaveZones...)
		out = append(out, &copied)
	}
	return out
}

// SetNetworkDelay records the network compensation for a zone.
func (e *Engine) SetNetworkDelay(zoneID string, delay float64) {
	e.mu.Lock()
	e.networkDelays[zoneID] = delay
	e.mu.Unlock()
	e.logger.Info().Str("zone", zoneID).Float64("delay", delay).Msg("network delay set")
}

// SetClockOffset records the clock compensation for a zone.
func (e *Engine) SetClockOffset(zoneID string, offset float64) {
	e.mu.Lock()
	e.clockOffsets[zoneID] = offset
	e.mu.Unlock()
	e.logger.Info().Str("zone", zoneID).Float64("offset", offset).Msg("clock offset set")
}

// Measure records one position sample for a slave zone and returns the
// compensated measurement. Jitter is the deviation of the previous
// window; the current sample is not included.
func (e *Engine) Measure(masterZone, slaveZone string, masterPos, slavePos float64) Measurement {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw := masterPos - slavePos
	delay := raw - e.networkDelays[slaveZone] - e.clockOffsets[slaveZone]

	jitter := 0.0
	if recent := recentOf(e.measurements[slaveZone]); len(recent) > 1 {
		delays := make([]float64, len(recent))
		for i, m := range recent {
			delays[i] = m.Delay
		}
		jitter = stddev(delays)
	}

	m := Measurement{
		Timestamp:      float64(e.now().UnixNano()) / 1e9,
		MasterPosition: masterPos,
		SlavePosition:  slavePos,
		Delay:          delay,
		Jitter:         jitter,
		Quality:        e.qualityScore(delay, jitter),
	}

	history := append(e.measurements[slaveZone], m)
	if len(history) > maxMeasurements {
		history = history[len(history)-maxMeasurements:]
	}
	e.measurements[slaveZone] = history
	return m
}

// qualityScore combines delay and jitter against the configured
// tolerance into a 0..1 score.
func (e *Engine) qualityScore(delay, jitter float64) float64 {
	tolerance := QualityTolerances[e.quality]
	delayQ := math.Max(0, 1-math.Abs(delay)/tolerance)
	jitterQ := math.Max(0, 1-jitter/tolerance)
	return clamp((delayQ+jitterQ)/2, 0, 1)
}

// Correction computes the playback correction for a slave zone from
// its recent measurements, clamped to the maximum sync delay.
func (e *Engine) Correction(slaveZone string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	recent := recentOf(e.measurements[slaveZone])
	if len(recent) == 0 {
		return 0
	}

	var correction float64
	switch e.algorithm {
	case SimpleOffset:
		sum := 0.0
		for _, m := range recent {
			sum += m.Delay
		}
		correction = sum / float64(len(recent))

	case AdaptiveDelay:
		totalWeight := 0.0
		weighted := 0.0
		for _, m := range recent {
			weighted += m.Delay * m.Quality
			totalWeight += m.Quality
		}
		if totalWeight > 0 {
			correction = weighted / totalWeight
		}

	case KalmanFilter:
		latest := recent[len(recent)-1].Delay
		if kf, ok := e.kalman[slaveZone]; ok {
			correction = kf.update(latest)
		} else {
			correction = latest
		}

	case PTPSync:
		correction = e.ptpCorrection(recent)

	default:
		correction = recent[len(recent)-1].Delay
	}

	return clamp(correction, -e.maxSyncDelay, e.maxSyncDelay)
}

// ptpCorrection extrapolates the delay trend to now via linear
// regression over the recent window.
func (e *Engine) ptpCorrection(recent []Measurement) float64 {
	if len(recent) < 2 {
		return recent[len(recent)-1].Delay
	}

	n := float64(len(recent))
	var sumX, sumY float64
	for _, m := range recent {
		sumX += m.Timestamp
		sumY += m.Delay
	}
	meanX := sumX / n
	meanY := sumY / n

	var cov, varX float64
	for _, m := range recent {
		cov += (m.Timestamp - meanX) * (m.Delay - meanY)
		varX += (m.Timestamp - meanX) * (m.Timestamp - meanX)
	}
	if varX == 0 {
		return recent[len(recent)-1].Delay
	}

	slope := cov / varX
	intercept := meanY - slope*meanX
	nowSec := float64(e.now().UnixNano()) / 1e9
	return slope*nowSec + intercept
}

// updateStats refreshes the zone summary from the full history.
func (e *Engine) updateStats(slaveZone string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.measurements[slaveZone]
	if len(history) == 0 {
		return
	}

	delays := make([]float64, len(history))
	avgQuality := 0.0
	minD, maxD := history[0].Delay, history[0].Delay
	sum := 0.0
	for i, m := range history {
		delays[i] = m.Delay
		sum += m.Delay
		avgQuality += m.Quality
		if m.Delay < minD {
			minD = m.Delay
		}
		if m.Delay > maxD {
			maxD = m.Delay
		}
	}
	avgQuality /= float64(len(history))

	level := QualityLow
	switch {
	case avgQuality >= 0.9:
		level = QualityUltra
	case avgQuality >= 0.8:
		level = QualityHigh
	case avgQuality >= 0.6:
		level = QualityMedium
	}

	s, ok := e.stats[slaveZone]
	if !ok {
		s = &Stats{ZoneID: slaveZone}
		e.stats[slaveZone] = s
	}
	s.AvgDelay = sum / float64(len(history))
	s.MaxDelay = maxD
	s.MinDelay = minD
	s.Jitter = stddev(delays)
	s.Quality = level
	s.Measurements = len(history)
	s.LastSync = e.now()

	perf := append(e.performance[slaveZone], avgQuality)
	if len(perf) > maxPerformanceSamples {
		perf = perf[len(perf)-maxPerformanceSamples:]
	}
	e.performance[slaveZone] = perf
}

// StatsFor returns a zone's statistics.
func (e *Engine) StatsFor(zoneID string) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stats[zoneID]
	if !ok {
		return Stats{}, rpc.Errorf(rpc.CodeNotFound, "no statistics for zone %s", zoneID)
	}
	return *s, nil
}

// AllStats returns every zone's statistics.
func (e *Engine) AllStats() map[string]Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]Stats, len(e.stats))
	for zone, s := range e.stats {
		out[zone] = *s
	}
	return out
}

// Performance returns the rolling average-quality samples of a zone.
func (e *Engine) Performance(zoneID string) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.performance[zoneID]...)
}

// SyncGroup samples every slave of the group once, applying
// corrections that exceed the quality tolerance.
func (e *Engine) SyncGroup(ctx context.Context, groupID string) error {
	e.mu.Lock()
	g, ok := e.groups[groupID]
	if !ok {
		e.mu.Unlock()
		return rpc.Errorf(rpc.CodeNotFound, "sync group %s not found", groupID)
	}
	master := g.MasterZone
	slaves := append([]string(nil), g.SlaveZones...)
	e.mu.Unlock()

	masterPos, err := e.position(ctx, master)
	if err != nil {
		return rpc.Errorf(rpc.CodeServiceUnavailable, "position for master zone %s: %v", master, err)
	}

	for _, slave := range slaves {
		slavePos, err := e.position(ctx, slave)
		if err != nil {
			e.logger.Warn().Str("zone", slave).Err(err).Msg("skipping slave, no position")
			continue
		}

		e.Measure(master, slave, masterPos, slavePos)
		correction := e.Correction(slave)
		if math.Abs(correction) > e.Tolerance() {
			e.applyCorrection(slave, correction)
		}
		e.updateStats(slave)
	}

	e.mu.Lock()
	g.LastSync = e.now()
	e.mu.Unlock()
	return nil
}

func (e *Engine) applyCorrection(zoneID string, correction float64) {
	e.logger.Debug().
		Str("zone", zoneID).
		Float64("correction", correction).
		Msg("applying sync correction")

	e.mu.Lock()
	callbacks := append([]CorrectionFunc(nil), e.onCorrection...)
	publisher := e.publisher
	now := e.now()
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(zoneID, correction)
	}

	if publisher != nil {
		payload, err := json.Marshal(map[string]any{
			"zone":       zoneID,
			"correction": correction,
			"timestamp":  now.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			publisher.Publish(fmt.Sprintf("ai-servis/audio/%s/correction", zoneID), payload)
		}
	}
}

// Run synchronizes all groups on the sync interval until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) {
	defer logging.RecoverPanic(e.logger, "syncLoop", nil)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, g := range e.Groups() {
				if err := e.SyncGroup(ctx, g.ID); err != nil {
					e.logger.Warn().Str("group_id", g.ID).Err(err).Msg("group sync failed")
				}
			}
		}
	}
}

func recentOf(history []Measurement) []Measurement {
	if len(history) > recentWindow {
		return history[len(history)-recentWindow:]
	}
	return history
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
