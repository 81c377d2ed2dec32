package pipeline

import (
	"regexp"
	"strings"

	"github.com/ai-servis/core/internal/rpc"
)

// MaxCommandLength bounds accepted command text.
const MaxCommandLength = 1000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)del\s+/s`),
	regexp.MustCompile(`(?i)format\s+`),
	regexp.MustCompile(`(?i)shutdown\s+`),
	regexp.MustCompile(`(?i)reboot\s+`),
}

// ValidateText rejects empty, oversized, or destructive command text
// with validation_error.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return rpc.Errorf(rpc.CodeValidationError, "command text cannot be empty")
	}
	if len(text) > MaxCommandLength {
		return rpc.Errorf(rpc.CodeValidationError, "command text too long (max %d characters)", MaxCommandLength)
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(text) {
			return rpc.Errorf(rpc.CodeValidationError, "potentially dangerous command detected")
		}
	}
	return nil
}
