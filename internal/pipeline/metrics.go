package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the command pipeline.
var (
	promCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_commands_total",
		Help: "Total commands processed by intent and interface",
	}, []string{"intent", "interface"})

	promCommandFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_command_failures_total",
		Help: "Failed commands by error type",
	}, []string{"type"})

	promCommandDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_command_duration_seconds",
		Help:    "End-to-end command execution time",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	promQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Commands currently waiting in the queue",
	})

	promProcessingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_processing_active",
		Help: "Commands currently executing",
	})

	promCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_cache_hits_total",
		Help: "Command results served from cache",
	})
)

func init() {
	prometheus.MustRegister(promCommandsTotal)
	prometheus.MustRegister(promCommandFailures)
	prometheus.MustRegister(promCommandDuration)
	prometheus.MustRegister(promQueueDepth)
	prometheus.MustRegister(promProcessingActive)
	prometheus.MustRegister(promCacheHits)
}

// metricsResetThreshold triggers a counter reset during the hourly
// sweep so in-memory distributions stay bounded.
const metricsResetThreshold = 10000

// Metrics aggregates in-process command statistics. The prometheus
// mirrors above are updated alongside.
type Metrics struct {
	mu sync.Mutex

	totalCommands      int64
	successfulCommands int64
	failedCommands     int64
	totalProcessing    time.Duration

	intentDistribution    map[string]int64
	interfaceDistribution map[string]int64
	errorDistribution     map[string]int64
}

// NewMetrics creates an empty metrics aggregate.
func NewMetrics() *Metrics {
	return &Metrics{
		intentDistribution:    make(map[string]int64),
		interfaceDistribution: make(map[string]int64),
		errorDistribution:     make(map[string]int64),
	}
}

// Record accounts one finished command.
func (m *Metrics) Record(parsed *Parsed, result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCommands++
	if result.Success {
		m.successfulCommands++
	} else {
		m.failedCommands++
		errType := "unknown"
		if t, ok := result.ErrorDetails["type"].(string); ok {
			errType = t
		}
		m.errorDistribution[errType]++
		promCommandFailures.WithLabelValues(errType).Inc()
	}

	m.totalProcessing += result.ExecutionTime
	m.intentDistribution[string(parsed.Intent)]++
	m.interfaceDistribution[parsed.InterfaceType]++

	promCommandsTotal.WithLabelValues(string(parsed.Intent), parsed.InterfaceType).Inc()
	promCommandDuration.Observe(result.ExecutionTime.Seconds())
}

// Total returns the number of recorded commands.
func (m *Metrics) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalCommands
}

// Snapshot returns the aggregate statistics.
func (m *Metrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	successRate := 0.0
	avgResponse := time.Duration(0)
	if m.totalCommands > 0 {
		successRate = float64(m.successfulCommands) / float64(m.totalCommands)
		avgResponse = m.totalProcessing / time.Duration(m.totalCommands)
	}

	return map[string]any{
		"total_commands":         m.totalCommands,
		"successful_commands":    m.successfulCommands,
		"failed_commands":        m.failedCommands,
		"success_rate":           successRate,
		"average_response_time":  avgResponse.Seconds(),
		"total_processing_time":  m.totalProcessing.Seconds(),
		"intent_distribution":    copyDist(m.intentDistribution),
		"interface_distribution": copyDist(m.interfaceDistribution),
		"error_distribution":     copyDist(m.errorDistribution),
	}
}

// Reset zeroes the in-memory aggregates. Prometheus counters are
// monotonic and unaffected.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCommands = 0
	m.successfulCommands = 0
	m.failedCommands = 0
	m.totalProcessing = 0
	m.intentDistribution = make(map[string]int64)
	m.interfaceDistribution = make(map[string]int64)
	m.errorDistribution = make(map[string]int64)
}

func copyDist(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
