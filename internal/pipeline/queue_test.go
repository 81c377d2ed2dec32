package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/rpc"
)

func cmdWithPriority(text string, prio Priority) *Command {
	cmd := NewCommand(text, "text")
	cmd.Priority = prio
	return cmd
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue(10)

	normal := cmdWithPriority("normal", PriorityNormal)
	high := cmdWithPriority("high", PriorityHigh)
	urgent := cmdWithPriority("urgent", PriorityUrgent)

	require.NoError(t, q.Add(normal))
	require.NoError(t, q.Add(high))
	require.NoError(t, q.Add(urgent))

	// Urgent was enqueued last but dequeues first.
	require.Equal(t, "urgent", q.Next().Text)
	require.Equal(t, "high", q.Next().Text)
	require.Equal(t, "normal", q.Next().Text)
	require.Nil(t, q.Next())
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewQueue(10)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Add(cmdWithPriority(fmt.Sprintf("n%d", i), PriorityNormal)))
	}
	require.Equal(t, "n0", q.Next().Text)
	require.Equal(t, "n1", q.Next().Text)
	require.Equal(t, "n2", q.Next().Text)
}

func TestQueueFullRejectsEleventh(t *testing.T) {
	q := NewQueue(10)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Add(cmdWithPriority(fmt.Sprintf("c%d", i), PriorityNormal)))
	}

	err := q.Add(cmdWithPriority("overflow", PriorityCritical))
	require.Error(t, err)
	require.Equal(t, rpc.CodeQueueFull, rpc.CodeOf(err))

	// Existing entries are untouched.
	require.Equal(t, 10, q.Len())
	require.Equal(t, "c0", q.Next().Text)
}

func TestQueueRemoveAndPosition(t *testing.T) {
	q := NewQueue(10)

	a := cmdWithPriority("a", PriorityNormal)
	b := cmdWithPriority("b", PriorityNormal)
	require.NoError(t, q.Add(a))
	require.NoError(t, q.Add(b))

	require.Equal(t, 1, q.Position(a.ID))
	require.Equal(t, 2, q.Position(b.ID))

	require.True(t, q.Remove(a.ID))
	require.False(t, q.Remove(a.ID))
	require.Equal(t, 1, q.Position(b.ID))
}
