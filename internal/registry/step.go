package registry

import (
	"log/slog"
	"maps"

	"github.com/vk/hostmaint/internal/errs"
)

// StepKind selects how a ProcessStep obtains its definition.
type StepKind int

const (
	// StepExec uses a registered definition unmodified.
	StepExec StepKind = iota
	// StepExecAppend extends a registered definition with extra argv/env.
	StepExecAppend
	// StepExecInline carries its own definition.
	StepExecInline
)

func (k StepKind) String() string {
	switch k {
	case StepExec:
		return "exec"
	case StepExecAppend:
		return "exec-append"
	case StepExecInline:
		return "exec-inline"
	default:
		return "unknown"
	}
}

// ParseStepKind maps a configuration type string to a StepKind.
func ParseStepKind(s string) (StepKind, error) {
	switch s {
	case "exec":
		return StepExec, nil
	case "exec-append":
		return StepExecAppend, nil
	case "exec-inline":
		return StepExecInline, nil
	}
	return 0, errs.Configf("unknown exec step type %q", s)
}

// ProcessStep is one element of a pipeline or routine.
type ProcessStep struct {
	Kind   StepKind
	ExecID string
	// Argv and Env are appended to the referenced definition (StepExecAppend).
	Argv   []string
	Env    map[string]string
	Inline *ExecDefinition

	// Optional per-step verbosity overrides.
	StdoutLevel *slog.Level
	StderrLevel *slog.Level
}

// Resolve turns a step into a concrete, independent definition.
func (r *Registry) Resolve(step ProcessStep) (*ExecDefinition, error) {
	var def *ExecDefinition
	switch step.Kind {
	case StepExec, StepExecAppend:
		d, err := r.Lookup(step.ExecID)
		if err != nil {
			return nil, err
		}
		def = d
		if step.Kind == StepExecAppend {
			def.Argv = append(def.Argv, step.Argv...)
			maps.Copy(def.Env, step.Env)
		}
	case StepExecInline:
		if step.Inline == nil {
			return nil, errs.Configf("inline exec step without definition")
		}
		def = step.Inline.Clone()
		if err := def.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, errs.Configf("unknown exec step kind %d", step.Kind)
	}

	if step.StdoutLevel != nil {
		def.StdoutLevel = *step.StdoutLevel
	}
	if step.StderrLevel != nil {
		def.StderrLevel = *step.StderrLevel
	}
	return def, nil
}
