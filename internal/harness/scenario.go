package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/kernel"
)

// Transport names.
const (
	TransportLoopback = "loopback"
	TransportMem      = "mem"
)

// DefaultTargetIDBase offsets target task ids from the model's so that
// identifier relabeling is exercised on every scenario.
const DefaultTargetIDBase = 100

// Scenario defines one checker session against the kernel model.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Commands is a fixed script, one command per line in the registry's
	// text form (e.g. "mmap 0x1000 0x2000 rw").
	Commands []string `yaml:"commands,omitempty"`

	// Random asks for a seeded random session instead of a script.
	Random *RandomSpec `yaml:"random,omitempty"`

	// Retv and State are severities: none, relaxed or strict.
	// Both default to strict.
	Retv  string `yaml:"retv,omitempty"`
	State string `yaml:"state,omitempty"`

	// ModelIDBase and TargetIDBase seed the task id allocators.
	ModelIDBase  uint64  `yaml:"model_id_base,omitempty"`
	TargetIDBase *uint64 `yaml:"target_id_base,omitempty"`

	// Transport selects the port: loopback (default) or mem.
	Transport string `yaml:"transport,omitempty"`

	// Chunks is the number of extra loopback exchanges per retrieval.
	Chunks int `yaml:"chunks,omitempty"`

	// ChunkSize is the mem transport's bytes per exchange.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// FailFast ends the session on the first command the model rejects.
	FailFast bool `yaml:"fail_fast,omitempty"`

	// MaxRounds bounds the session (0 = until the commander is exhausted).
	MaxRounds int `yaml:"max_rounds,omitempty"`

	// Faults make the target misbehave on chosen rounds.
	Faults []Fault `yaml:"faults,omitempty"`

	// Assertions validate the finished session.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RandomSpec configures a random commander.
type RandomSpec struct {
	Seed  uint64 `yaml:"seed"`
	Count int    `yaml:"count"`
}

// Fault perturbs the target at one round.
type Fault struct {
	Round int `yaml:"round"`

	// Retv is added to the target's result code.
	Retv int64 `yaml:"retv,omitempty"`

	// Extra flips every byte of the extra payload.
	Extra bool `yaml:"extra,omitempty"`

	// Diverge spawns an additional task on the target after the command.
	Diverge bool `yaml:"diverge,omitempty"`
}

// Assertion validates the finished session.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Command is the command text (trace_contains, trace_count).
	Command string `yaml:"command,omitempty"`

	// Commands is the expected order (trace_order).
	Commands []string `yaml:"commands,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Pass and ErrorCode describe the expected outcome (outcome).
	Pass      *bool  `yaml:"pass,omitempty"`
	ErrorCode string `yaml:"error_code,omitempty"`

	// Round and Kind locate an expected mismatch (mismatch).
	Round *int   `yaml:"round,omitempty"`
	Kind  string `yaml:"kind,omitempty"`

	// Tasks, VMAs and Files describe the final model (final_model).
	Tasks *int           `yaml:"tasks,omitempty"`
	VMAs  *int           `yaml:"vmas,omitempty"`
	Files map[string]int `yaml:"files,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertOutcome       = "outcome"
	AssertMismatch      = "mismatch"
	AssertFinalModel    = "final_model"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, violates the
// schema, contains unknown fields, or names commands the kernel does not
// know.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to parse YAML: empty document")
	}
	if err := validateSchema(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	// Strict decoding catches typos the schema would report less clearly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case len(s.Commands) == 0 && s.Random == nil:
		return fmt.Errorf("one of commands or random is required")
	case len(s.Commands) > 0 && s.Random != nil:
		return fmt.Errorf("commands and random are mutually exclusive")
	}

	registry := kernel.Commands()
	for i, line := range s.Commands {
		if _, err := registry.Parse(line); err != nil {
			return fmt.Errorf("commands[%d]: %w", i, err)
		}
	}

	if _, err := s.retvSeverity(); err != nil {
		return fmt.Errorf("retv: %w", err)
	}
	if _, err := s.stateSeverity(); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	switch s.Transport {
	case "", TransportLoopback, TransportMem:
	default:
		return fmt.Errorf("unknown transport %q", s.Transport)
	}

	seen := make(map[int]bool, len(s.Faults))
	for i, f := range s.Faults {
		if f.Round < 0 {
			return fmt.Errorf("faults[%d]: round must be non-negative", i)
		}
		if seen[f.Round] {
			return fmt.Errorf("faults[%d]: duplicate fault for round %d", i, f.Round)
		}
		seen[f.Round] = true
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOutcome:
		if a.Pass == nil {
			return fmt.Errorf("assertions[%d]: pass is required for outcome", index)
		}
	case AssertMismatch:
		if a.Round == nil {
			return fmt.Errorf("assertions[%d]: round is required for mismatch", index)
		}
		switch a.Kind {
		case "retv", "extra", "state":
		default:
			return fmt.Errorf("assertions[%d]: kind must be retv, extra or state", index)
		}
	case AssertFinalModel:
		if a.Tasks == nil && a.VMAs == nil && a.Files == nil {
			return fmt.Errorf("assertions[%d]: final_model needs tasks, vmas or files", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func (s *Scenario) retvSeverity() (checker.Severity, error) {
	return severityOrStrict(s.Retv)
}

func (s *Scenario) stateSeverity() (checker.Severity, error) {
	return severityOrStrict(s.State)
}

func severityOrStrict(text string) (checker.Severity, error) {
	if text == "" {
		return checker.Strict, nil
	}
	return checker.ParseSeverity(text)
}

func (s *Scenario) targetIDBase() uint64 {
	if s.TargetIDBase == nil {
		return DefaultTargetIDBase
	}
	return *s.TargetIDBase
}
