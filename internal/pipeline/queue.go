package pipeline

import (
	"sync"

	"github.com/ai-servis/core/internal/rpc"
)

// DefaultQueueSize caps the command queue.
const DefaultQueueSize = 1000

// Queue is a bounded priority queue of commands. Higher-priority
// commands dequeue first; equal priorities keep arrival order.
type Queue struct {
	mu       sync.Mutex
	commands []*Command
	maxSize  int
}

// NewQueue creates a queue bounded at maxSize (DefaultQueueSize when
// maxSize is zero or negative).
func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &Queue{maxSize: maxSize}
}

// Add inserts a command by priority. A full queue fails with
// queue_full.
func (q *Queue) Add(cmd *Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) >= q.maxSize {
		return rpc.Errorf(rpc.CodeQueueFull, "command queue full (%d)", q.maxSize)
	}

	// Insert before the first command with lower priority; ties go
	// after, preserving FIFO within a priority band.
	for i, existing := range q.commands {
		if cmd.Priority > existing.Priority {
			q.commands = append(q.commands, nil)
			copy(q.commands[i+1:], q.commands[i:])
			q.commands[i] = cmd
			return nil
		}
	}
	q.commands = append(q.commands, cmd)
	return nil
}

// Next pops the highest-priority command, or nil when empty.
func (q *Queue) Next() *Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil
	}
	cmd := q.commands[0]
	q.commands = q.commands[1:]
	return cmd
}

// Remove deletes a queued command by id.
func (q *Queue) Remove(commandID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cmd := range q.commands {
		if cmd.ID == commandID {
			q.commands = append(q.commands[:i], q.commands[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the 1-based queue position of a command, or 0 when
// not queued.
func (q *Queue) Position(commandID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cmd := range q.commands {
		if cmd.ID == commandID {
			return i + 1
		}
	}
	return 0
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Status summarizes the queue for monitoring.
func (q *Queue) Status() map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()

	dist := make(map[string]int)
	names := map[Priority]string{
		PriorityLow:      "low",
		PriorityNormal:   "normal",
		PriorityHigh:     "high",
		PriorityUrgent:   "urgent",
		PriorityCritical: "critical",
	}
	for _, cmd := range q.commands {
		dist[names[cmd.Priority]]++
	}
	return map[string]any{
		"total_commands":        len(q.commands),
		"max_size":              q.maxSize,
		"priority_distribution": dist,
	}
}
