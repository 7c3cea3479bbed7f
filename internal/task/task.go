// Package task dispatches task invocations by id to the backup executor or
// the routine runner.
package task

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/dag"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/executor"
	"github.com/vk/hostmaint/internal/routine"
)

// BackupRunner runs one backup task. *executor.Executor implements it.
type BackupRunner interface {
	Run(ctx context.Context, t *executor.Task) (*executor.Report, error)
}

// Runner holds every compiled task of a configuration.
type Runner struct {
	backups  map[string]*executor.Task
	routines map[string]*routine.Routine
	order    []string
	exec     BackupRunner

	mu      sync.Mutex
	reports []*executor.Report
}

var _ routine.Invoker = (*Runner)(nil)

// New creates an empty runner that executes backups with exec.
func New(exec BackupRunner) *Runner {
	return &Runner{
		backups:  make(map[string]*executor.Task),
		routines: make(map[string]*routine.Routine),
		exec:     exec,
	}
}

// AddBackup registers a compiled backup task.
func (r *Runner) AddBackup(t *executor.Task) error {
	if err := r.claim(t.ID); err != nil {
		return err
	}
	r.backups[t.ID] = t
	return nil
}

// AddRoutine registers a compiled routine.
func (r *Runner) AddRoutine(rt *routine.Routine) error {
	if err := r.claim(rt.ID); err != nil {
		return err
	}
	r.routines[rt.ID] = rt
	return nil
}

func (r *Runner) claim(id string) error {
	if r.has(id) {
		return errs.Configf("duplicate task %q", id)
	}
	r.order = append(r.order, id)
	return nil
}

func (r *Runner) has(id string) bool {
	_, b := r.backups[id]
	_, rt := r.routines[id]
	return b || rt
}

// IDs lists the task ids in registration order.
func (r *Runner) IDs() []string { return slices.Clone(r.order) }

// Validate checks that every task a routine calls exists and that no chain
// of calls leads back to its caller.
func (r *Runner) Validate() error {
	g := dag.New()
	for _, id := range r.order {
		g.AddNode(id)
	}
	for _, id := range r.order {
		rt, ok := r.routines[id]
		if !ok {
			continue
		}
		for _, callee := range rt.Calls {
			if !r.has(callee) {
				return errs.Configf("routine %q calls unknown task %q", id, callee)
			}
			if callee == id {
				return errs.Configf("routine %q calls itself", id)
			}
			if err := g.AddEdge(callee, id); err != nil {
				return fmt.Errorf("%w: %w", errs.ErrConfig, err)
			}
		}
	}
	if err := g.DetectCycles(); err != nil {
		return fmt.Errorf("%w: task invocations: %w", errs.ErrConfig, err)
	}
	return nil
}

type stackKey struct{}

// Stack returns the chain of task ids being run in ctx, outermost first.
func Stack(ctx context.Context) []string {
	s, _ := ctx.Value(stackKey{}).([]string)
	return s
}

// Run runs the task id and blocks until it finishes.
func (r *Runner) Run(ctx context.Context, id string) error {
	stack := Stack(ctx)
	if slices.Contains(stack, id) {
		return errs.Configf("task %q invoked recursively: %s", id, strings.Join(append(slices.Clone(stack), id), " -> "))
	}
	ctx = context.WithValue(ctx, stackKey{}, append(slices.Clone(stack), id))
	logger := ctxlog.FromContext(ctx)

	if t, ok := r.backups[id]; ok {
		logger.Info("Running backup task.", "task", id, "depth", len(stack))
		rep, err := r.exec.Run(ctx, t)
		if rep != nil {
			r.mu.Lock()
			r.reports = append(r.reports, rep)
			r.mu.Unlock()
		}
		return err
	}
	if rt, ok := r.routines[id]; ok {
		logger.Info("Running routine task.", "task", id, "depth", len(stack))
		return rt.Run(ctx)
	}
	return errs.Configf("unknown task %q", id)
}

// Invoke implements routine.Invoker.
func (r *Runner) Invoke(ctx context.Context, id string) error {
	return r.Run(ctx, id)
}

// Reports returns the reports of every backup run so far.
func (r *Runner) Reports() []*executor.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reports)
}
