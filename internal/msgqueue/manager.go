package msgqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
)

// State of the queue manager.
type State string

const (
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Manager defaults.
const (
	DefaultMaxQueueSize       = 10000
	DefaultMaxRetries         = 3
	DefaultBatchSize          = 10
	DefaultProcessingInterval = time.Second

	maxAttemptHistory = 50
)

// Statistics aggregates delivery outcomes.
type Statistics struct {
	TotalMessages        int64     `json:"total_messages"`
	SuccessfulDeliveries int64     `json:"successful_deliveries"`
	FailedDeliveries     int64     `json:"failed_deliveries"`
	PendingMessages      int64     `json:"pending_messages"`
	RetryAttempts        int64     `json:"retry_attempts"`
	AverageDeliveryTime  float64   `json:"average_delivery_time"`
	LastUpdated          time.Time `json:"last_updated"`
}

// DeliveryCallback observes finished delivery attempts.
type DeliveryCallback func(msg *Message, success bool)

// RetryCallback observes retry reschedules.
type RetryCallback func(msg *Message, retryCount int)

// Manager owns one bounded queue per channel and drives delivery
// through registered providers.
type Manager struct {
	mu        sync.Mutex
	queues    map[Channel][]*queued
	attempts  map[string][]DeliveryAttempt
	providers map[Channel]Provider
	state     State
	stats     Statistics

	maxQueueSize      int
	batchSize         int
	defaultMaxRetries int
	defaultStrategy   Strategy
	retryIntervals    []int
	interval          time.Duration

	onDelivery []DeliveryCallback
	onRetry    []RetryCallback

	logger zerolog.Logger
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxQueueSize overrides the per-channel capacity.
func WithMaxQueueSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxQueueSize = n
		}
	}
}

// WithBatchSize overrides how many messages one sweep delivers per
// channel.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithDefaultRetry overrides the default retry policy.
func WithDefaultRetry(maxRetries int, strategy Strategy) ManagerOption {
	return func(m *Manager) {
		if maxRetries > 0 {
			m.defaultMaxRetries = maxRetries
		}
		if strategy != "" {
			m.defaultStrategy = strategy
		}
	}
}

// WithRetryIntervals overrides the interval_table schedule, in seconds.
func WithRetryIntervals(seconds []int) ManagerOption {
	return func(m *Manager) {
		if len(seconds) > 0 {
			m.retryIntervals = seconds
		}
	}
}

// WithProcessingInterval overrides the sweep cadence.
func WithProcessingInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithManagerClock injects a time source for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an active manager with empty queues for every
// channel.
func NewManager(logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		queues:            make(map[Channel][]*queued),
		attempts:          make(map[string][]DeliveryAttempt),
		providers:         make(map[Channel]Provider),
		state:             StateActive,
		maxQueueSize:      DefaultMaxQueueSize,
		batchSize:         DefaultBatchSize,
		defaultMaxRetries: DefaultMaxRetries,
		defaultStrategy:   RetryExponential,
		retryIntervals:    DefaultRetryIntervals,
		interval:          DefaultProcessingInterval,
		logger:            logger.With().Str("component", "msgqueue").Logger(),
		now:               time.Now,
	}
	for _, ch := range Channels() {
		m.queues[ch] = nil
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterProvider installs the delivery backend for its channel.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	m.providers[p.Channel()] = p
	m.mu.Unlock()
}

// OnDelivery registers a delivery observer.
func (m *Manager) OnDelivery(cb DeliveryCallback) {
	m.mu.Lock()
	m.onDelivery = append(m.onDelivery, cb)
	m.mu.Unlock()
}

// OnRetry registers a retry observer.
func (m *Manager) OnRetry(cb RetryCallback) {
	m.mu.Lock()
	m.onRetry = append(m.onRetry, cb)
	m.mu.Unlock()
}

// EnqueueOption adjusts retry policy for one message.
type EnqueueOption func(*queued)

// WithMaxRetries overrides the retry budget for this message.
func WithMaxRetries(n int) EnqueueOption {
	return func(q *queued) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithStrategy overrides the retry strategy for this message.
func WithStrategy(s Strategy) EnqueueOption {
	return func(q *queued) {
		if s != "" {
			q.strategy = s
		}
	}
}

// Enqueue adds a message to its channel queue. Urgent messages go to
// the head, high priority after the urgent block, everything else to
// the tail.
func (m *Manager) Enqueue(msg *Message, opts ...EnqueueOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped {
		return rpc.Errorf(rpc.CodeServiceUnavailable, "message queue is stopped")
	}
	queue, ok := m.queues[msg.Channel]
	if !ok {
		return rpc.Errorf(rpc.CodeInvalidParams, "unknown channel %s", msg.Channel)
	}
	if len(queue) >= m.maxQueueSize {
		return rpc.Errorf(rpc.CodeQueueFull, "queue for %s is full (%d messages)", msg.Channel, len(queue))
	}

	now := m.now()
	q := &queued{
		message:     msg,
		maxRetries:  m.defaultMaxRetries,
		strategy:    m.defaultStrategy,
		nextRetryAt: now,
		createdAt:   now,
	}
	for _, opt := range opts {
		opt(q)
	}

	switch msg.Priority {
	case PriorityUrgent:
		queue = append([]*queued{q}, queue...)
	case PriorityHigh:
		urgent := 0
		for _, existing := range queue {
			if existing.message.Priority == PriorityUrgent {
				urgent++
			}
		}
		queue = append(queue[:urgent], append([]*queued{q}, queue[urgent:]...)...)
	default:
		queue = append(queue, q)
	}
	m.queues[msg.Channel] = queue

	m.stats.TotalMessages++
	m.stats.PendingMessages++
	m.stats.LastUpdated = now
	promEnqueued.WithLabelValues(string(msg.Channel)).Inc()
	promQueueDepth.WithLabelValues(string(msg.Channel)).Set(float64(len(queue)))

	m.logger.Info().
		Str("message_id", msg.ID).
		Str("channel", string(msg.Channel)).
		Str("priority", string(msg.Priority)).
		Msg("message enqueued")
	return nil
}

// dequeueLocked pops the first message of the channel whose retry time
// has arrived.
func (m *Manager) dequeueLocked(channel Channel) *queued {
	queue := m.queues[channel]
	now := m.now()
	for i, q := range queue {
		if !q.nextRetryAt.After(now) {
			m.queues[channel] = append(queue[:i], queue[i+1:]...)
			promQueueDepth.WithLabelValues(string(channel)).Set(float64(len(m.queues[channel])))
			return q
		}
	}
	return nil
}

// ProcessBatch delivers up to the batch size per channel and returns
// the number of attempts made.
func (m *Manager) ProcessBatch(ctx context.Context) int {
	processed := 0
	for _, channel := range Channels() {
		for i := 0; i < m.batchSize; i++ {
			m.mu.Lock()
			q := m.dequeueLocked(channel)
			m.mu.Unlock()
			if q == nil {
				break
			}
			m.deliver(ctx, q)
			processed++
		}
	}
	return processed
}

func (m *Manager) deliver(ctx context.Context, q *queued) {
	msg := q.message

	m.mu.Lock()
	provider := m.providers[msg.Channel]
	m.mu.Unlock()

	start := m.now()
	var sendErr error
	if provider == nil {
		sendErr = rpc.Errorf(rpc.CodeServiceUnavailable, "no provider for channel %s", msg.Channel)
	} else {
		sendErr = provider.Send(ctx, msg)
	}
	elapsed := m.now().Sub(start)

	attempt := DeliveryAttempt{
		AttemptID:    uuid.NewString(),
		MessageID:    msg.ID,
		Timestamp:    m.now(),
		Success:      sendErr == nil,
		ResponseTime: elapsed,
	}
	if sendErr != nil {
		attempt.Error = sendErr.Error()
	}

	m.mu.Lock()
	history := append(m.attempts[msg.ID], attempt)
	if len(history) > maxAttemptHistory {
		history = history[len(history)-maxAttemptHistory:]
	}
	m.attempts[msg.ID] = history

	outcome := "success"
	retryScheduled := 0
	if sendErr == nil {
		sentAt := m.now()
		msg.Status = StatusSent
		msg.SentAt = &sentAt
		m.stats.SuccessfulDeliveries++
		m.stats.PendingMessages--
	} else {
		outcome = "failure"
		m.stats.FailedDeliveries++
		m.stats.RetryAttempts++
		retryScheduled = m.handleFailureLocked(q, sendErr.Error())
	}

	// Running mean over every attempt, successful or not.
	total := m.stats.SuccessfulDeliveries + m.stats.FailedDeliveries
	m.stats.AverageDeliveryTime = (m.stats.AverageDeliveryTime*float64(total-1) + elapsed.Seconds()) / float64(total)
	m.stats.LastUpdated = m.now()
	deliveryCbs := append([]DeliveryCallback(nil), m.onDelivery...)
	retryCbs := append([]RetryCallback(nil), m.onRetry...)
	m.mu.Unlock()

	promDeliveries.WithLabelValues(string(msg.Channel), outcome).Inc()
	promDeliveryTime.Observe(elapsed.Seconds())

	for _, cb := range deliveryCbs {
		cb(msg, sendErr == nil)
	}
	if retryScheduled > 0 {
		for _, cb := range retryCbs {
			cb(msg, retryScheduled)
		}
	}
}

// handleFailureLocked reschedules a failed message or marks it failed
// once the retry budget is spent. It returns the retry number when a
// retry was scheduled, 0 otherwise.
func (m *Manager) handleFailureLocked(q *queued, errMsg string) int {
	msg := q.message
	q.retryCount++
	q.lastAttemptAt = m.now()

	if q.retryCount >= q.maxRetries {
		msg.Status = StatusFailed
		msg.Error = errMsg
		m.stats.PendingMessages--
		m.logger.Error().
			Str("message_id", msg.ID).
			Int("attempts", q.retryCount).
			Msg("message failed permanently")
		return 0
	}

	q.nextRetryAt = m.now().Add(RetryDelay(q.strategy, q.retryCount, m.retryIntervals))
	m.queues[msg.Channel] = append(m.queues[msg.Channel], q)
	promRetries.WithLabelValues(string(msg.Channel)).Inc()
	promQueueDepth.WithLabelValues(string(msg.Channel)).Set(float64(len(m.queues[msg.Channel])))

	m.logger.Info().
		Str("message_id", msg.ID).
		Int("retry", q.retryCount).
		Time("next_retry_at", q.nextRetryAt).
		Msg("message scheduled for retry")
	return q.retryCount
}

// Pause suspends delivery; queued messages stay put.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.state = StatePaused
	m.mu.Unlock()
	m.logger.Info().Msg("message queue paused")
}

// Resume restarts delivery after a pause or stop.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.state = StateActive
	m.mu.Unlock()
	m.logger.Info().Msg("message queue resumed")
}

// Stop halts delivery and rejects new messages.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.logger.Info().Msg("message queue stopped")
}

// State reports the manager state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ClearQueue drops every queued message of the channel and returns the
// count removed.
func (m *Manager) ClearQueue(channel Channel) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, ok := m.queues[channel]
	if !ok {
		return 0, rpc.Errorf(rpc.CodeInvalidParams, "unknown channel %s", channel)
	}
	for _, q := range queue {
		q.message.Status = StatusCancelled
	}
	removed := len(queue)
	m.queues[channel] = nil
	m.stats.PendingMessages -= int64(removed)
	m.stats.LastUpdated = m.now()
	promQueueDepth.WithLabelValues(string(channel)).Set(0)

	m.logger.Info().Str("channel", string(channel)).Int("removed", removed).Msg("queue cleared")
	return removed, nil
}

// QueueStatus reports per-channel depth and readiness. An empty
// channel reports every queue.
func (m *Manager) QueueStatus(channel Channel) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statusFor := func(ch Channel) map[string]any {
		queue := m.queues[ch]
		ready := 0
		now := m.now()
		for _, q := range queue {
			if !q.nextRetryAt.After(now) {
				ready++
			}
		}
		return map[string]any{
			"queue_size":       len(queue),
			"pending_messages": ready,
		}
	}

	if channel != "" {
		if _, ok := m.queues[channel]; !ok {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, "unknown channel %s", channel)
		}
		out := statusFor(channel)
		out["channel"] = string(channel)
		out["status"] = string(m.state)
		return out, nil
	}

	channels := make(map[string]any, len(m.queues))
	for _, ch := range Channels() {
		channels[string(ch)] = statusFor(ch)
	}
	return map[string]any{"status": string(m.state), "channels": channels}, nil
}

// Stats returns a copy of the aggregate statistics.
func (m *Manager) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// History returns the delivery attempts recorded for a message.
func (m *Manager) History(messageID string) []DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeliveryAttempt(nil), m.attempts[messageID]...)
}

// Run sweeps the queues on the processing interval until ctx is
// canceled. Paused and stopped states skip the sweep.
func (m *Manager) Run(ctx context.Context) {
	defer logging.RecoverPanic(m.logger, "msgqueueLoop", nil)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State() == StateActive {
				m.ProcessBatch(ctx)
			}
		}
	}
}
