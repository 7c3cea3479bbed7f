// Package executor is the backup scheduler. It runs every object of one
// backup task on a bounded worker pool, starting an object group only after
// every object of the groups it depends on committed, and rolls the whole run
// back when any object fails.
package executor

import (
	"context"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/dag"
	"github.com/vk/hostmaint/internal/pipeline"
)

// PipelineRunner runs one object's pipeline into a sink. *pipeline.Runner
// implements it.
type PipelineRunner interface {
	Run(ctx context.Context, p *pipeline.Pipeline, sink backend.Sink) (pipeline.Result, error)
}

// Task is a compiled backup task.
type Task struct {
	ID      string
	Plan    *dag.Plan
	Backend backend.Backend
	// Pipelines holds every object's resolved pipeline keyed by path.
	Pipelines map[string]*pipeline.Pipeline
	// Runner overrides the executor's runner for this task, e.g. to match
	// the backend's block size.
	Runner PipelineRunner
}

// Executor runs backup tasks. It is safe for concurrent use by independent
// tasks.
type Executor struct {
	numWorkers int
	runner     PipelineRunner
}

// New creates an executor. nbWorkers follows the configuration semantics:
// 0 uses the CPUs available to the process, a positive value is a fixed cap
// and a negative value dispatches every eligible object at once.
func New(nbWorkers int, runner PipelineRunner) *Executor {
	return &Executor{numWorkers: nbWorkers, runner: runner}
}

// PoolSize resolves nbWorkers for a task of n objects.
func PoolSize(nbWorkers, n int) int {
	size := nbWorkers
	switch {
	case nbWorkers == 0:
		size = cpuCount()
	case nbWorkers < 0:
		size = n
	}
	return max(1, min(size, max(n, 1)))
}
