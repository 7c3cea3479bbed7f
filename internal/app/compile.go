package app

import (
	"context"
	"fmt"

	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/dag"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/executor"
	"github.com/vk/hostmaint/internal/pipeline"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/vk/hostmaint/internal/routine"
	"github.com/vk/hostmaint/internal/task"
)

// compile resolves every reference in the model: exec ids, backends and
// their params, object-group graphs, builtin params and task calls.
func (a *App) compile(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	execs, err := registry.New(a.model.Execs...)
	if err != nil {
		return err
	}
	a.execs = execs
	a.tasks = task.New(a.newExecutor())

	for _, t := range a.model.Tasks {
		switch t.Kind {
		case config.BackupTask:
			bt, err := a.compileBackup(ctx, t)
			if err != nil {
				return fmt.Errorf("backup task %q: %w", t.ID, err)
			}
			if err := a.tasks.AddBackup(bt); err != nil {
				return err
			}
			logger.Debug("Compiled backup task.", "task", t.ID, "backend", bt.Backend.Name(), "objects", bt.Plan.Len())
		case config.RoutineTask:
			rt, err := routine.Compile(t, execs, a.pipelineRunner(nil), a.tasks)
			if err != nil {
				return err
			}
			if err := a.tasks.AddRoutine(rt); err != nil {
				return err
			}
			logger.Debug("Compiled routine task.", "task", t.ID, "steps", len(rt.Steps))
		default:
			return errs.Configf("task %q: unknown task type %q", t.ID, t.Kind)
		}
	}
	return a.tasks.Validate()
}

func (a *App) compileBackup(ctx context.Context, t *config.Task) (*executor.Task, error) {
	plan, err := dag.Resolve(t.Groups, t.Objects)
	if err != nil {
		return nil, err
	}
	pls := make(map[string]*pipeline.Pipeline, plan.Len())
	for _, obj := range plan.Objects() {
		pl, err := pipeline.Compile(a.execs, obj)
		if err != nil {
			return nil, err
		}
		pls[obj.Path] = pl
	}
	b, err := a.backends.New(ctx, t.Backend, t.BackendParams)
	if err != nil {
		return nil, err
	}
	return &executor.Task{
		ID:        t.ID,
		Plan:      plan,
		Backend:   b,
		Pipelines: pls,
		Runner:    a.pipelineRunner(b),
	}, nil
}
