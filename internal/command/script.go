package command

import "fmt"

// Script replays a fixed list of command lines. Lines are parsed lazily, so
// a malformed line surfaces as an error on the round that reaches it.
type Script[S any] struct {
	registry *Registry[S]
	lines    []string
	pos      int
	cycle    bool
}

// ScriptOption configures a Script.
type ScriptOption func(*scriptConfig)

type scriptConfig struct {
	cycle bool
}

// WithCycle makes the script start over instead of reporting exhaustion.
func WithCycle() ScriptOption {
	return func(c *scriptConfig) {
		c.cycle = true
	}
}

// NewScript creates a scripted commander over lines.
func NewScript[S any](registry *Registry[S], lines []string, opts ...ScriptOption) *Script[S] {
	cfg := scriptConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	linesCopy := make([]string, len(lines))
	copy(linesCopy, lines)
	return &Script[S]{
		registry: registry,
		lines:    linesCopy,
		cycle:    cfg.cycle,
	}
}

// Command returns the next scripted command, or ErrExhausted once every line
// has been issued (unless cycling).
func (s *Script[S]) Command(S) (Command[S], error) {
	if s.pos >= len(s.lines) {
		if !s.cycle || len(s.lines) == 0 {
			return nil, fmt.Errorf("script finished after %d commands: %w", s.pos, ErrExhausted)
		}
		s.pos = 0
	}
	line := s.lines[s.pos]
	s.pos++
	return s.registry.Parse(line)
}

// Position returns the index of the next line to be issued.
func (s *Script[S]) Position() int {
	return s.pos
}
