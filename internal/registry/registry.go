package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/vk/hostmaint/internal/errs"
)

// ExecDefinition describes one external process.
type ExecDefinition struct {
	// ID is empty for inline definitions.
	ID        string
	Argv      []string
	Env       map[string]string
	ExitCodes ExitCodeSpec
	// StdoutLevel and StderrLevel decide whether the child's streams reach
	// the diagnostic output for a given run verbosity.
	StdoutLevel slog.Level
	StderrLevel slog.Level
}

// NewExecDefinition returns a definition with the documented defaults:
// exit code 0 accepted, stderr at error level, stdout at info level.
func NewExecDefinition(id string, argv ...string) *ExecDefinition {
	return &ExecDefinition{
		ID:          id,
		Argv:        argv,
		Env:         map[string]string{},
		ExitCodes:   DefaultExitCodes(),
		StdoutLevel: slog.LevelInfo,
		StderrLevel: slog.LevelError,
	}
}

// Clone returns a deep copy so callers can extend argv/env freely.
func (d *ExecDefinition) Clone() *ExecDefinition {
	c := *d
	c.Argv = slices.Clone(d.Argv)
	c.Env = maps.Clone(d.Env)
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	return &c
}

// Validate checks the invariants every runnable definition must hold.
func (d *ExecDefinition) Validate() error {
	if len(d.Argv) == 0 || d.Argv[0] == "" {
		name := d.ID
		if name == "" {
			name = "inline exec"
		}
		return errs.Configf("%s: empty argv", name)
	}
	return nil
}

// String renders the definition like a shell command line, env first.
func (d *ExecDefinition) String() string {
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(d.Env)) {
		fmt.Fprintf(&sb, "%s=%q ", k, d.Env[k])
	}
	sb.WriteString(strings.Join(d.Argv, " "))
	return strings.TrimSpace(sb.String())
}

// Registry holds every named exec definition.
type Registry struct {
	execs map[string]*ExecDefinition
}

// New builds a registry. Duplicate or empty identifiers are configuration errors.
func New(defs ...*ExecDefinition) (*Registry, error) {
	r := &Registry{execs: make(map[string]*ExecDefinition, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, errs.Configf("exec definition without id")
		}
		if _, exists := r.execs[d.ID]; exists {
			return nil, errs.Configf("duplicate exec %q", d.ID)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		r.execs[d.ID] = d.Clone()
	}
	return r, nil
}

// Lookup returns a copy of the named definition.
func (r *Registry) Lookup(id string) (*ExecDefinition, error) {
	d, ok := r.execs[id]
	if !ok {
		return nil, &UnknownExecError{ID: id}
	}
	return d.Clone(), nil
}

// IDs returns all identifiers in sorted order.
func (r *Registry) IDs() []string {
	return slices.Sorted(maps.Keys(r.execs))
}

// Len reports the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.execs)
}

// UnknownExecError is returned when a step references an undefined exec.
type UnknownExecError struct {
	ID string
}

func (e *UnknownExecError) Error() string {
	return fmt.Sprintf("%s: unknown exec %q", errs.ErrConfig, e.ID)
}

func (e *UnknownExecError) Unwrap() error { return errs.ErrConfig }
