package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
)

// Pipeline defaults.
const (
	DefaultMaxConcurrent = 10
	queuePollInterval    = 100 * time.Millisecond
	timeoutCheckInterval = time.Second
	maintenanceInterval  = time.Hour
)

// Executor runs a parsed command against its target service.
type Executor interface {
	Execute(ctx context.Context, parsed *Parsed) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, parsed *Parsed) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, parsed *Parsed) (*Result, error) {
	return f(ctx, parsed)
}

type processingEntry struct {
	parsed *Parsed
	cancel context.CancelFunc
	status Status
}

// Pipeline coordinates the command queue, classification, execution,
// result caching, and metrics.
type Pipeline struct {
	classifier *intent.Classifier
	queue      *Queue
	cache      *Cache
	metrics    *Metrics
	executor   Executor
	logger     zerolog.Logger

	maxConcurrent int

	mu         sync.Mutex
	processing map[string]*processingEntry

	now func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxConcurrent overrides the concurrent execution cap.
func WithMaxConcurrent(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// WithQueue substitutes a differently bounded queue.
func WithQueue(q *Queue) PipelineOption {
	return func(p *Pipeline) { p.queue = q }
}

// WithCache substitutes a differently bounded cache.
func WithCache(c *Cache) PipelineOption {
	return func(p *Pipeline) { p.cache = c }
}

// New creates a pipeline that classifies with classifier and executes
// via executor.
func New(classifier *intent.Classifier, executor Executor, logger zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		classifier:    classifier,
		queue:         NewQueue(DefaultQueueSize),
		cache:         NewCache(DefaultCacheSize, DefaultCacheTTL),
		metrics:       NewMetrics(),
		executor:      executor,
		logger:        logger.With().Str("component", "pipeline").Logger(),
		maxConcurrent: DefaultMaxConcurrent,
		processing:    make(map[string]*processingEntry),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Metrics exposes the aggregate statistics collector.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Enqueue adds a command to the priority queue and returns its id.
func (p *Pipeline) Enqueue(cmd *Command) (string, error) {
	if err := p.queue.Add(cmd); err != nil {
		return "", err
	}
	promQueueDepth.Set(float64(p.queue.Len()))
	p.logger.Info().Str("id", cmd.ID).Int("priority", int(cmd.Priority)).Msg("command queued")
	return cmd.ID, nil
}

// Process runs one command end to end: cache lookup, text validation,
// classification, execution, caching, and metrics.
func (p *Pipeline) Process(ctx context.Context, cmd *Command) *Result {
	start := p.now()

	if cached, ok := p.cache.Get(cmd.ID); ok {
		promCacheHits.Inc()
		p.logger.Debug().Str("id", cmd.ID).Msg("returning cached result")
		return cached
	}

	if err := ValidateText(cmd.Text); err != nil {
		return &Result{
			CommandID:     cmd.ID,
			Success:       false,
			Response:      fmt.Sprintf("Invalid command: %s", rpc.MessageOf(err)),
			ExecutionTime: p.now().Sub(start),
			Timestamp:     p.now(),
			ErrorDetails:  map[string]any{"type": rpc.CodeValidationError},
		}
	}

	parsed := p.Parse(cmd)
	result := p.execute(ctx, parsed)

	if result.Success {
		p.cache.Set(cmd.ID, result)
	}
	p.metrics.Record(parsed, result)
	return result
}

// Parse classifies a command and validates its parameters against the
// winning intent's schema.
func (p *Pipeline) Parse(cmd *Command) *Parsed {
	start := p.now()

	res := p.classifier.Classify(cmd.Text)
	parsed := &Parsed{
		Command:      *cmd,
		Intent:       res.Intent,
		Confidence:   res.Confidence,
		Parameters:   res.Parameters,
		Alternatives: res.Alternatives,
	}

	if schema, ok := p.classifier.Schema(res.Intent); ok {
		parsed.Service = schema.Service
		parsed.Tool = schema.Tool
		validated, errs := intent.ValidateParameters(schema, res.Parameters)
		parsed.ValidatedParameters = validated
		parsed.Errors = append(parsed.Errors, errs...)
	} else {
		parsed.ValidatedParameters = res.Parameters
	}
	parsed.ProcessingTime = p.now().Sub(start)
	return parsed
}

func (p *Pipeline) execute(ctx context.Context, parsed *Parsed) *Result {
	start := p.now()

	execCtx, cancel := context.WithTimeout(ctx, parsed.Timeout)
	defer cancel()

	parsed.Status = StatusProcessing
	parsed.StartedAt = start
	entry := &processingEntry{parsed: parsed, cancel: cancel, status: StatusProcessing}

	p.mu.Lock()
	p.processing[parsed.ID] = entry
	promProcessingActive.Set(float64(len(p.processing)))
	p.mu.Unlock()

	result, err := p.executor.Execute(execCtx, parsed)

	p.mu.Lock()
	finalStatus := entry.status
	delete(p.processing, parsed.ID)
	promProcessingActive.Set(float64(len(p.processing)))
	p.mu.Unlock()

	elapsed := p.now().Sub(start)

	switch {
	case finalStatus == StatusTimeout || (err != nil && execCtx.Err() == context.DeadlineExceeded):
		parsed.Status = StatusTimeout
		p.logger.Warn().Str("id", parsed.ID).Dur("timeout", parsed.Timeout).Msg("command timed out")
		return &Result{
			CommandID:     parsed.ID,
			Success:       false,
			Response:      fmt.Sprintf("Command timed out after %s", parsed.Timeout),
			ExecutionTime: elapsed,
			Timestamp:     p.now(),
			ErrorDetails:  map[string]any{"type": rpc.CodeTimeout},
		}
	case finalStatus == StatusCancelled:
		parsed.Status = StatusCancelled
		return &Result{
			CommandID:     parsed.ID,
			Success:       false,
			Response:      "Command cancelled",
			ExecutionTime: elapsed,
			Timestamp:     p.now(),
			ErrorDetails:  map[string]any{"type": "cancelled"},
		}
	case err != nil:
		parsed.Status = StatusFailed
		return &Result{
			CommandID:     parsed.ID,
			Success:       false,
			Response:      fmt.Sprintf("Command execution failed: %s", rpc.MessageOf(err)),
			ExecutionTime: elapsed,
			Timestamp:     p.now(),
			ServiceUsed:   parsed.Service,
			ErrorDetails:  map[string]any{"type": rpc.CodeOf(err), "error": rpc.MessageOf(err)},
		}
	}

	parsed.Status = StatusCompleted
	result.CommandID = parsed.ID
	result.ExecutionTime = elapsed
	if result.Timestamp.IsZero() {
		result.Timestamp = p.now()
	}
	if result.ServiceUsed == "" {
		result.ServiceUsed = parsed.Service
	}
	return result
}

// Cancel removes a queued command or interrupts a processing one.
func (p *Pipeline) Cancel(commandID string) bool {
	if p.queue.Remove(commandID) {
		promQueueDepth.Set(float64(p.queue.Len()))
		p.logger.Info().Str("id", commandID).Msg("command removed from queue")
		return true
	}

	p.mu.Lock()
	entry, ok := p.processing[commandID]
	if ok {
		entry.status = StatusCancelled
		entry.cancel()
	}
	p.mu.Unlock()

	if ok {
		p.logger.Info().Str("id", commandID).Msg("command cancelled")
	}
	return ok
}

// StatusOf reports where a command currently is: processing, queued,
// or completed (cached). Unknown ids fail with not_found.
func (p *Pipeline) StatusOf(commandID string) (map[string]any, error) {
	p.mu.Lock()
	if entry, ok := p.processing[commandID]; ok {
		out := map[string]any{
			"id":         commandID,
			"status":     entry.status,
			"intent":     entry.parsed.Intent,
			"confidence": entry.parsed.Confidence,
			"started_at": entry.parsed.StartedAt,
		}
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	if pos := p.queue.Position(commandID); pos > 0 {
		return map[string]any{
			"id":             commandID,
			"status":         StatusPending,
			"queue_position": pos,
		}, nil
	}

	if cached, ok := p.cache.Get(commandID); ok {
		return map[string]any{
			"id":           commandID,
			"status":       StatusCompleted,
			"success":      cached.Success,
			"completed_at": cached.Timestamp,
		}, nil
	}
	return nil, rpc.Errorf(rpc.CodeNotFound, "command %s not found", commandID)
}

// QueueStatus summarizes the queue and processing set.
func (p *Pipeline) QueueStatus() map[string]any {
	p.mu.Lock()
	active := len(p.processing)
	p.mu.Unlock()

	return map[string]any{
		"queue": p.queue.Status(),
		"processing": map[string]any{
			"active_commands": active,
			"max_concurrent":  p.maxConcurrent,
		},
	}
}

// Run drives the queue workers, the timeout monitor, and the hourly
// maintenance sweep until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer logging.RecoverPanic(p.logger, "queueProcessor", nil)
		p.processQueue(ctx)
	}()
	go func() {
		defer wg.Done()
		defer logging.RecoverPanic(p.logger, "timeoutMonitor", nil)
		p.monitorTimeouts(ctx)
	}()

	go func() {
		defer logging.RecoverPanic(p.logger, "maintenance", nil)
		p.runMaintenance(ctx)
	}()

	wg.Wait()
}

func (p *Pipeline) processQueue(ctx context.Context) {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		busy := len(p.processing) >= p.maxConcurrent
		p.mu.Unlock()
		if busy {
			continue
		}

		cmd := p.queue.Next()
		if cmd == nil {
			continue
		}
		promQueueDepth.Set(float64(p.queue.Len()))

		go func(cmd *Command) {
			defer logging.RecoverPanic(p.logger, "processCommand", map[string]any{"id": cmd.ID})
			p.Process(ctx, cmd)
		}(cmd)
	}
}

// monitorTimeouts marks commands that exceed their per-command timeout
// and cancels their execution context.
func (p *Pipeline) monitorTimeouts(ctx context.Context) {
	ticker := time.NewTicker(timeoutCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := p.now()
		p.mu.Lock()
		for id, entry := range p.processing {
			if entry.status != StatusProcessing {
				continue
			}
			if now.Sub(entry.parsed.StartedAt) > entry.parsed.Timeout {
				entry.status = StatusTimeout
				entry.cancel()
				p.logger.Warn().Str("id", id).Msg("command exceeded timeout")
			}
		}
		p.mu.Unlock()
	}
}

// runMaintenance clears the cache and resets oversized metrics once an
// hour.
func (p *Pipeline) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.metrics.Total() > metricsResetThreshold {
			p.metrics.Reset()
			p.logger.Info().Msg("metrics reset due to size")
		}
		p.cache.Clear()
		p.logger.Info().Msg("result cache cleared")
	}
}
