package command

import (
	"fmt"
	"slices"
	"strings"
)

// Factory builds a command from its textual arguments.
type Factory[S any] func(args []string) (Command[S], error)

// Registry maps command names to factories. It is how scripted sessions
// turn "mmap 0x1000 0x2000 rw" into a Command.
type Registry[S any] struct {
	factories map[string]Factory[S]
}

// NewRegistry creates an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{factories: make(map[string]Factory[S])}
}

// Register adds a factory under name. Names are unique.
func (r *Registry[S]) Register(name string, f Factory[S]) error {
	if name == "" {
		return fmt.Errorf("register: empty command name")
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register: duplicate command name %q", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error. Intended for package-level
// registries built at init time.
func (r *Registry[S]) MustRegister(name string, f Factory[S]) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry[S]) Lookup(name string) (Factory[S], bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r *Registry[S]) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Parse builds a command from a whitespace-separated line: the first field
// is the command name, the rest are its arguments.
func (r *Registry[S]) Parse(line string) (Command[S], error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("parse command: empty line")
	}
	f, ok := r.factories[fields[0]]
	if !ok {
		return nil, fmt.Errorf("parse command: unknown command %q", fields[0])
	}
	cmd, err := f(fields[1:])
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", fields[0], err)
	}
	return cmd, nil
}
