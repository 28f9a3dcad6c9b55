// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"fmt"

	"github.com/richinex/toolthread/schema"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder("name") - no stutter.
type Builder struct {
	name           string
	description    string
	systemPrompt   string
	maxRounds      int
	responseSchema *schema.Descriptor
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Description sets the agent's description.
func (b *Builder) Description(description string) *Builder {
	b.description = description
	return b
}

// SystemPrompt sets the agent's system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.systemPrompt = prompt
	return b
}

// MaxRounds sets the number of tool rounds allowed per user turn.
func (b *Builder) MaxRounds(rounds int) *Builder {
	b.maxRounds = rounds
	return b
}

// ResponseSchema requires turns to end with a structured answer.
func (b *Builder) ResponseSchema(desc *schema.Descriptor) *Builder {
	b.responseSchema = desc
	return b
}

// Build creates the agent configuration.
func (b *Builder) Build() Config {
	description := b.description
	if description == "" {
		description = fmt.Sprintf("Agent: %s", b.name)
	}

	systemPrompt := b.systemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf(
			"You are an agent named %s. Use available tools to complete tasks.",
			b.name,
		)
	}

	maxRounds := b.maxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	return Config{
		Name:           b.name,
		Description:    description,
		SystemPrompt:   systemPrompt,
		MaxRounds:      maxRounds,
		ResponseSchema: b.responseSchema,
	}
}
