// Agent configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

import (
	"github.com/richinex/toolthread/schema"
)

// DefaultMaxRounds bounds the tool rounds of one user turn when the config
// does not set a limit.
const DefaultMaxRounds = 10

// Config holds agent configuration.
type Config struct {
	// Name identifies the agent in logs.
	Name string

	// Description explains what this agent does.
	Description string

	// SystemPrompt guides the agent's behavior. It is sent with every model
	// call and never stored in session transcripts.
	SystemPrompt string

	// MaxRounds is the number of tool rounds allowed per user turn.
	// Zero means DefaultMaxRounds.
	MaxRounds int

	// ResponseSchema, when set, requires every turn to end with a
	// structured answer conforming to it.
	ResponseSchema *schema.Descriptor
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "agent",
		Description:  "A general-purpose agent",
		SystemPrompt: "You are a helpful assistant.",
		MaxRounds:    DefaultMaxRounds,
	}
}

// Rounds returns the effective round limit.
func (c *Config) Rounds() int {
	if c.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return c.MaxRounds
}

// HasResponseSchema returns true if a response schema is configured.
func (c *Config) HasResponseSchema() bool {
	return c.ResponseSchema != nil
}
