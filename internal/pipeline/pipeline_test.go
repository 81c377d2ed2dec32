package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/rpc"
)

func echoExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		return &Result{
			Success:  true,
			Response: "ok",
			Data:     map[string]any{"intent": string(parsed.Intent)},
		}, nil
	})
}

func newTestPipeline(t *testing.T, exec Executor, opts ...PipelineOption) *Pipeline {
	t.Helper()
	classifier := intent.NewClassifier(zerolog.Nop(), "")
	return New(classifier, exec, zerolog.Nop(), opts...)
}

func TestProcessSuccessAndCache(t *testing.T) {
	calls := 0
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		calls++
		return &Result{Success: true, Response: "done"}, nil
	})
	p := newTestPipeline(t, exec)

	cmd := NewCommand("play some music", "voice")
	res := p.Process(context.Background(), cmd)
	require.True(t, res.Success)
	require.Equal(t, cmd.ID, res.CommandID)
	require.Equal(t, "ai-audio-assistant", res.ServiceUsed)
	require.Equal(t, 1, calls)

	// Second pass with the same id replays the cached result.
	res2 := p.Process(context.Background(), cmd)
	require.True(t, res2.Success)
	require.Equal(t, 1, calls)
}

func TestProcessRejectsEmptyText(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	cmd := NewCommand("   ", "text")
	res := p.Process(context.Background(), cmd)
	require.False(t, res.Success)
	require.Equal(t, rpc.CodeValidationError, res.ErrorDetails["type"])
}

func TestProcessRejectsOversizedText(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	long := make([]byte, MaxCommandLength+1)
	for i := range long {
		long[i] = 'a'
	}
	res := p.Process(context.Background(), NewCommand(string(long), "text"))
	require.False(t, res.Success)
	require.Equal(t, rpc.CodeValidationError, res.ErrorDetails["type"])
}

func TestFailedResultsAreNotCached(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "service down")
	})
	p := newTestPipeline(t, exec)

	cmd := NewCommand("play music", "voice")
	res := p.Process(context.Background(), cmd)
	require.False(t, res.Success)
	require.Equal(t, rpc.CodeServiceUnavailable, res.ErrorDetails["type"])
	require.Equal(t, 0, p.cache.Len())
}

func TestParseRoutesToService(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	parsed := p.Parse(NewCommand("turn on led on pin 13", "voice"))
	require.Equal(t, intent.HardwareControl, parsed.Intent)
	require.Equal(t, "hardware-bridge", parsed.Service)
	require.Equal(t, "control_hardware", parsed.Tool)
	require.Empty(t, parsed.Errors)
}

func TestParsePopulatesValidatedParameters(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	parsed := p.Parse(NewCommand("turn on led on pin 13", "voice"))
	require.Equal(t, 13, parsed.ValidatedParameters["pin"])
	require.Equal(t, "on", parsed.ValidatedParameters["action"])

	// The typed map is part of the wire form even when empty.
	raw, err := json.Marshal(Parsed{})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"validated_parameters"`)
}

func TestExecutorReceivesValidatedParameters(t *testing.T) {
	var got map[string]any
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		got = parsed.ValidatedParameters
		return &Result{Success: true, Response: "ok"}, nil
	})
	p := newTestPipeline(t, exec)

	res := p.Process(context.Background(), NewCommand("turn on led on pin 13", "voice"))
	require.True(t, res.Success)
	require.Equal(t, 13, got["pin"])
	require.Equal(t, "on", got["action"])
}

func TestCommandTimeout(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &Result{Success: true}, nil
		}
	})
	p := newTestPipeline(t, exec)

	cmd := NewCommand("play music", "voice")
	cmd.Timeout = 50 * time.Millisecond

	start := time.Now()
	res := p.Process(context.Background(), cmd)
	require.False(t, res.Success)
	require.Equal(t, rpc.CodeTimeout, res.ErrorDetails["type"])
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestCancelProcessingCommand(t *testing.T) {
	started := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := newTestPipeline(t, exec)

	cmd := NewCommand("play music", "voice")
	done := make(chan *Result, 1)
	go func() { done <- p.Process(context.Background(), cmd) }()

	<-started
	require.True(t, p.Cancel(cmd.ID))

	select {
	case res := <-done:
		require.False(t, res.Success)
		require.Equal(t, "cancelled", res.ErrorDetails["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled command never returned")
	}
}

func TestCancelQueuedCommand(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	cmd := NewCommand("play music", "voice")
	id, err := p.Enqueue(cmd)
	require.NoError(t, err)
	require.True(t, p.Cancel(id))
	require.False(t, p.Cancel(id))
}

func TestStatusOfLifecycle(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	cmd := NewCommand("play music", "voice")
	_, err := p.Enqueue(cmd)
	require.NoError(t, err)

	status, err := p.StatusOf(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status["status"])
	require.Equal(t, 1, status["queue_position"])

	// Unknown command ids are not_found.
	_, err = p.StatusOf("no-such-command")
	require.Equal(t, rpc.CodeNotFound, rpc.CodeOf(err))

	// After direct processing the result is cached and visible.
	dequeued := p.queue.Next()
	res := p.Process(context.Background(), dequeued)
	require.True(t, res.Success)

	status, err = p.StatusOf(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status["status"])
}

func TestMetricsRecorded(t *testing.T) {
	p := newTestPipeline(t, echoExecutor())

	p.Process(context.Background(), NewCommand("play music", "voice"))
	p.Process(context.Background(), NewCommand("turn on the lights", "text"))

	snap := p.Metrics().Snapshot()
	require.Equal(t, int64(2), snap["total_commands"])
	require.Equal(t, int64(2), snap["successful_commands"])
	require.Equal(t, 1.0, snap["success_rate"])

	intents := snap["intent_distribution"].(map[string]int64)
	require.Equal(t, int64(1), intents["audio_control"])
	require.Equal(t, int64(1), intents["smart_home"])
}

func TestRunProcessesQueuedCommands(t *testing.T) {
	results := make(chan string, 4)
	exec := ExecutorFunc(func(ctx context.Context, parsed *Parsed) (*Result, error) {
		results <- parsed.Text
		return &Result{Success: true}, nil
	})
	p := newTestPipeline(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	_, err := p.Enqueue(NewCommand("play music", "voice"))
	require.NoError(t, err)

	select {
	case text := <-results:
		require.Equal(t, "play music", text)
	case <-time.After(3 * time.Second):
		t.Fatal("queued command never executed")
	}
}
