// Package routine runs routine tasks: ordered lists of process steps,
// builtins and calls to other tasks, executed one at a time.
package routine

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Builtin is a process-wide operation run in-process.
type Builtin interface {
	Run(ctx context.Context) error
	String() string
}

// BuiltinFactory validates a builtin's param and returns the runnable.
type BuiltinFactory func(param cty.Value) (Builtin, error)

var builtins = map[string]BuiltinFactory{
	"sigmask": NewSigmask,
}

// Builtins lists the available builtin ids, sorted.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for id := range builtins {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// StepRunner runs a single process and checks its exit code.
// *pipeline.Runner implements it.
type StepRunner interface {
	RunStep(ctx context.Context, def *registry.ExecDefinition) (int, error)
}

// Invoker runs another task by id and blocks until it finishes.
type Invoker interface {
	Invoke(ctx context.Context, taskID string) error
}

// Step is one compiled routine step.
type Step interface {
	Run(ctx context.Context) error
	String() string
}

type execStep struct {
	def    *registry.ExecDefinition
	runner StepRunner
}

func (s *execStep) Run(ctx context.Context) error {
	_, err := s.runner.RunStep(ctx, s.def)
	return err
}

func (s *execStep) String() string { return "exec " + s.def.String() }

type taskStep struct {
	id      string
	invoker Invoker
}

func (s *taskStep) Run(ctx context.Context) error { return s.invoker.Invoke(ctx, s.id) }
func (s *taskStep) String() string                { return "task " + s.id }

type builtinStep struct {
	id string
	b  Builtin
}

func (s *builtinStep) Run(ctx context.Context) error { return s.b.Run(ctx) }
func (s *builtinStep) String() string                { return "builtin " + s.b.String() }

// Routine is a compiled routine task.
type Routine struct {
	ID    string
	Steps []Step
	// Calls lists the task ids this routine invokes directly.
	Calls []string
}

// Compile resolves every step of t. All exec references and builtin params
// are checked here, before anything runs.
func Compile(t *config.Task, reg *registry.Registry, runner StepRunner, invoker Invoker) (*Routine, error) {
	if t.Kind != config.RoutineTask {
		return nil, errs.Configf("task %q is not a routine", t.ID)
	}
	r := &Routine{ID: t.ID}
	for i, st := range t.Steps {
		step, err := compileStep(st, reg, runner, invoker)
		if err != nil {
			return nil, fmt.Errorf("routine %q step %d: %w", t.ID, i, err)
		}
		if st.Kind == config.RoutineTaskRef && !slices.Contains(r.Calls, st.TaskID) {
			r.Calls = append(r.Calls, st.TaskID)
		}
		r.Steps = append(r.Steps, step)
	}
	return r, nil
}

func compileStep(st *config.RoutineStep, reg *registry.Registry, runner StepRunner, invoker Invoker) (Step, error) {
	switch st.Kind {
	case config.RoutineExec:
		def, err := reg.Resolve(st.Exec)
		if err != nil {
			return nil, err
		}
		return &execStep{def: def, runner: runner}, nil
	case config.RoutineTaskRef:
		if st.TaskID == "" {
			return nil, errs.Configf("task step without task-id")
		}
		return &taskStep{id: st.TaskID, invoker: invoker}, nil
	case config.RoutineBuiltin:
		factory, ok := builtins[st.BuiltinID]
		if !ok {
			return nil, errs.Builtinf("unknown builtin %q", st.BuiltinID)
		}
		b, err := factory(st.Param)
		if err != nil {
			return nil, err
		}
		return &builtinStep{id: st.BuiltinID, b: b}, nil
	default:
		return nil, errs.Configf("unknown step type %q", st.Kind)
	}
}

// Run executes the steps in order and stops at the first failure. Nothing is
// undone.
func (r *Routine) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("routine", r.ID)
	logger.Info("Routine starting.", "steps", len(r.Steps))
	for i, s := range r.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("routine %q: %w", r.ID, err)
		}
		logger.Debug("Running routine step.", "step", i, "desc", s.String())
		if err := s.Run(ctx); err != nil {
			logger.Error("Routine step failed.", "step", i, "error", err)
			return fmt.Errorf("routine %q step %d (%s): %w", r.ID, i, s, err)
		}
	}
	logger.Info("Routine finished.")
	return nil
}
