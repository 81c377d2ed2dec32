package msgqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/rpc"
)

type fakeProvider struct {
	channel Channel

	mu       sync.Mutex
	sent     []string
	failures int
}

func (f *fakeProvider) Channel() Channel { return f.channel }

func (f *fakeProvider) Send(ctx context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("provider rejected message")
	}
	f.sent = append(f.sent, msg.Body)
	return nil
}

func (f *fakeProvider) Receive(ctx context.Context, limit, offset int) ([]*Message, error) {
	return nil, nil
}

func (f *fakeProvider) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func smsMessage(body string, prio Priority) *Message {
	msg := NewMessage(ChannelSMS, "+100", "+200", body)
	msg.Priority = prio
	return msg
}

func TestRetryDelays(t *testing.T) {
	require.Equal(t, time.Duration(0), RetryDelay(RetryImmediate, 3, nil))

	require.Equal(t, 2*time.Second, RetryDelay(RetryExponential, 1, nil))
	require.Equal(t, 8*time.Second, RetryDelay(RetryExponential, 3, nil))
	require.Equal(t, 300*time.Second, RetryDelay(RetryExponential, 9, nil))

	require.Equal(t, 60*time.Second, RetryDelay(RetryLinear, 2, nil))
	require.Equal(t, 60*time.Second, RetryDelay(RetryFixedInterval, 7, nil))

	require.Equal(t, time.Second, RetryDelay(RetryIntervalTable, 0, DefaultRetryIntervals))
	require.Equal(t, 60*time.Second, RetryDelay(RetryIntervalTable, 5, DefaultRetryIntervals))
}

func TestEnqueuePriorityInsertion(t *testing.T) {
	provider := &fakeProvider{channel: ChannelSMS}
	m := NewManager(zerolog.Nop())
	m.RegisterProvider(provider)

	require.NoError(t, m.Enqueue(smsMessage("normal", PriorityNormal)))
	require.NoError(t, m.Enqueue(smsMessage("urgent-1", PriorityUrgent)))
	require.NoError(t, m.Enqueue(smsMessage("high", PriorityHigh)))
	require.NoError(t, m.Enqueue(smsMessage("urgent-2", PriorityUrgent)))

	m.ProcessBatch(context.Background())
	require.Equal(t, []string{"urgent-2", "urgent-1", "high", "normal"}, provider.sentBodies())
}

func TestEnqueueQueueFull(t *testing.T) {
	m := NewManager(zerolog.Nop(), WithMaxQueueSize(2))

	require.NoError(t, m.Enqueue(smsMessage("a", PriorityNormal)))
	require.NoError(t, m.Enqueue(smsMessage("b", PriorityNormal)))

	err := m.Enqueue(smsMessage("c", PriorityNormal))
	require.Equal(t, rpc.CodeQueueFull, rpc.CodeOf(err))
}

func TestEnqueueUnknownChannel(t *testing.T) {
	m := NewManager(zerolog.Nop())
	err := m.Enqueue(NewMessage(Channel("pager"), "a", "b", "hi"))
	require.Equal(t, rpc.CodeInvalidParams, rpc.CodeOf(err))
}

func TestDeliverySuccessUpdatesStats(t *testing.T) {
	provider := &fakeProvider{channel: ChannelEmail}
	m := NewManager(zerolog.Nop())
	m.RegisterProvider(provider)

	msg := NewMessage(ChannelEmail, "a@x", "b@x", "hello")
	require.NoError(t, m.Enqueue(msg))
	require.Equal(t, 1, m.ProcessBatch(context.Background()))

	require.Equal(t, StatusSent, msg.Status)
	require.NotNil(t, msg.SentAt)

	stats := m.Stats()
	require.Equal(t, int64(1), stats.TotalMessages)
	require.Equal(t, int64(1), stats.SuccessfulDeliveries)
	require.Equal(t, int64(0), stats.PendingMessages)

	history := m.History(msg.ID)
	require.Len(t, history, 1)
	require.True(t, history[0].Success)
}

func TestRetrySchedulingAndPermanentFailure(t *testing.T) {
	provider := &fakeProvider{channel: ChannelSMS, failures: -1}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(zerolog.Nop(), WithManagerClock(func() time.Time { return now }))
	m.RegisterProvider(provider)

	var retries []int
	m.OnRetry(func(msg *Message, count int) { retries = append(retries, count) })

	msg := smsMessage("flaky", PriorityNormal)
	require.NoError(t, m.Enqueue(msg, WithMaxRetries(3), WithStrategy(RetryExponential)))

	// First attempt fails and reschedules 2s out.
	require.Equal(t, 1, m.ProcessBatch(context.Background()))
	require.Equal(t, StatusPending, msg.Status)

	// Not due yet.
	require.Equal(t, 0, m.ProcessBatch(context.Background()))

	now = now.Add(3 * time.Second)
	require.Equal(t, 1, m.ProcessBatch(context.Background()))

	// Third attempt exhausts the budget.
	now = now.Add(5 * time.Second)
	require.Equal(t, 1, m.ProcessBatch(context.Background()))
	require.Equal(t, StatusFailed, msg.Status)
	require.NotEmpty(t, msg.Error)
	require.Equal(t, []int{1, 2}, retries)

	require.Len(t, m.History(msg.ID), 3)

	stats := m.Stats()
	require.Equal(t, int64(3), stats.FailedDeliveries)
	require.Equal(t, int64(0), stats.PendingMessages)
}

func TestHistoryIsBounded(t *testing.T) {
	provider := &fakeProvider{channel: ChannelSMS, failures: -1}
	m := NewManager(zerolog.Nop())
	m.RegisterProvider(provider)

	msg := smsMessage("always failing", PriorityNormal)
	require.NoError(t, m.Enqueue(msg, WithMaxRetries(70), WithStrategy(RetryImmediate)))

	for i := 0; i < 8; i++ {
		m.ProcessBatch(context.Background())
	}
	require.LessOrEqual(t, len(m.History(msg.ID)), maxAttemptHistory)
}

func TestStopRejectsEnqueue(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Stop()

	err := m.Enqueue(smsMessage("late", PriorityNormal))
	require.Equal(t, rpc.CodeServiceUnavailable, rpc.CodeOf(err))

	m.Resume()
	require.Equal(t, StateActive, m.State())
	require.NoError(t, m.Enqueue(smsMessage("ok", PriorityNormal)))
}

func TestClearQueue(t *testing.T) {
	m := NewManager(zerolog.Nop())
	msgs := make([]*Message, 3)
	for i := range msgs {
		msgs[i] = smsMessage(fmt.Sprintf("m%d", i), PriorityNormal)
		require.NoError(t, m.Enqueue(msgs[i]))
	}

	removed, err := m.ClearQueue(ChannelSMS)
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	for _, msg := range msgs {
		require.Equal(t, StatusCancelled, msg.Status)
	}

	status, err := m.QueueStatus(ChannelSMS)
	require.NoError(t, err)
	require.Equal(t, 0, status["queue_size"])
}

func TestRunDeliversInBackground(t *testing.T) {
	provider := &fakeProvider{channel: ChannelTelegram}
	m := NewManager(zerolog.Nop(), WithProcessingInterval(10*time.Millisecond))
	m.RegisterProvider(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.Enqueue(NewMessage(ChannelTelegram, "me", "you", "ping")))

	require.Eventually(t, func() bool {
		return len(provider.sentBodies()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
