// Package config loads service configuration from the environment and
// manages runtime-mutable settings.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check their own
// invariants after parsing.
type Validator interface {
	Validate() error
}

// Load populates cfg from a .env file (if present) and the process
// environment, then validates it.
func Load(cfg any) error {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}
	return nil
}
