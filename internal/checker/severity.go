package checker

import (
	"fmt"
	"strings"
)

// Severity controls what a mismatch does.
type Severity int

const (
	// None skips the comparison.
	None Severity = iota
	// Relaxed prints and counts the mismatch, then continues.
	Relaxed
	// Strict prints the mismatch and halts the session.
	Strict
)

func (s Severity) String() string {
	switch s {
	case None:
		return "none"
	case Relaxed:
		return "relaxed"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity parses "none", "relaxed" or "strict", case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, nil
	case "relaxed":
		return Relaxed, nil
	case "strict":
		return Strict, nil
	default:
		return None, fmt.Errorf("unknown severity %q (want none, relaxed or strict)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Phase is the checker's position in the protocol.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseGetState
	PhaseInit
	PhaseCommand
	PhaseCheckRetv
	PhaseCheckState
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "Start"
	case PhaseGetState:
		return "GetState"
	case PhaseInit:
		return "Init"
	case PhaseCommand:
		return "Command"
	case PhaseCheckRetv:
		return "CheckRetv"
	case PhaseCheckState:
		return "CheckState"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
