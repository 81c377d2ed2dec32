// Package intent classifies natural-language commands into platform
// intents and extracts their parameters.
package intent

// Type identifies a command intent.
type Type string

const (
	AudioControl    Type = "audio_control"
	SystemControl   Type = "system_control"
	SmartHome       Type = "smart_home"
	Communication   Type = "communication"
	Navigation      Type = "navigation"
	Information     Type = "information"
	FileOperation   Type = "file_operation"
	HardwareControl Type = "hardware_control"
	Unknown         Type = "unknown"
)

// ParameterSpec describes one parameter an intent accepts.
type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Schema binds an intent to its keywords, parameters, and the service
// tool that executes it.
type Schema struct {
	Intent      Type            `json:"intent"`
	Keywords    []string        `json:"keywords"`
	Parameters  []ParameterSpec `json:"parameters"`
	Service     string          `json:"service"`
	Tool        string          `json:"tool"`
	Description string          `json:"description"`
	Examples    []string        `json:"examples,omitempty"`
}

// Alternative is a runner-up intent with its ensemble score.
type Alternative struct {
	Intent Type    `json:"intent"`
	Score  float64 `json:"score"`
}

// Result is the outcome of classifying one command.
type Result struct {
	Intent       Type           `json:"intent"`
	Confidence   float64        `json:"confidence"`
	Alternatives []Alternative  `json:"alternatives,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

func floatPtr(v float64) *float64 { return &v }
