// Package pipeline implements the command processing pipeline: a
// priority queue of natural-language commands that are validated,
// classified, executed against platform services, cached, and
// measured.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/ai-servis/core/internal/intent"
)

// Status of a command in the pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

// Priority orders commands in the queue. Higher values run first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityUrgent   Priority = 4
	PriorityCritical Priority = 5
)

// DefaultCommandTimeout bounds one command's execution.
const DefaultCommandTimeout = 30 * time.Second

// Command is one natural-language request entering the pipeline.
type Command struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	UserID        string         `json:"user_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	InterfaceType string         `json:"interface_type"`
	Priority      Priority       `json:"priority"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	Timeout       time.Duration  `json:"timeout"`
	Context       map[string]any `json:"context,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewCommand builds a pending command with defaults filled in.
func NewCommand(text, interfaceType string) *Command {
	return &Command{
		ID:            uuid.NewString(),
		Text:          text,
		InterfaceType: interfaceType,
		Priority:      PriorityNormal,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
		Timeout:       DefaultCommandTimeout,
	}
}

// Parsed is a command after classification and parameter validation.
type Parsed struct {
	Command

	Intent              intent.Type          `json:"intent"`
	Confidence          float64              `json:"confidence"`
	Parameters          map[string]any       `json:"parameters,omitempty"`
	ValidatedParameters map[string]any       `json:"validated_parameters"`
	Alternatives        []intent.Alternative `json:"alternatives,omitempty"`
	Service             string               `json:"service,omitempty"`
	Tool                string               `json:"tool,omitempty"`
	StartedAt           time.Time            `json:"started_at,omitempty"`
	ProcessingTime      time.Duration        `json:"processing_time"`
	Errors              []string             `json:"errors,omitempty"`
}

// Result is the outcome of executing one command.
type Result struct {
	CommandID     string         `json:"command_id"`
	Success       bool           `json:"success"`
	Response      string         `json:"response"`
	Data          map[string]any `json:"data,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	ServiceUsed   string         `json:"service_used,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	ErrorDetails  map[string]any `json:"error_details,omitempty"`
}
