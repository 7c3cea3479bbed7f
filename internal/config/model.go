package config

import (
	"github.com/vk/hostmaint/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// DefaultTask is run when no task id is given.
const DefaultTask = "default"

// Model is the merged configuration of every loaded file.
type Model struct {
	// NbWorkers and Verbosity are nil when no file sets them.
	NbWorkers *int
	Verbosity *int

	Execs []*registry.ExecDefinition
	Tasks []*Task

	// Files lists every source file in load order.
	Files []string
}

// TaskKind distinguishes backup tasks from routines.
type TaskKind string

const (
	BackupTask  TaskKind = "backup"
	RoutineTask TaskKind = "routine"
)

// Task is one `task` block.
type Task struct {
	Kind   TaskKind
	ID     string
	Source string

	// Backup tasks.
	Backend       string
	BackendParams Params
	Groups        []*ObjectGroup
	Objects       []*Object

	// Routine tasks.
	Steps []*RoutineStep
}

// ObjectGroup is a named set of objects with ordering dependencies.
type ObjectGroup struct {
	ID      string
	Depends []string
}

// Object is one backup artifact and the pipeline producing it.
type Object struct {
	Path string
	// Group is empty for objects in the implicit default group.
	Group     string
	AllocSize *int64
	Pipeline  []registry.ProcessStep
}

// RoutineStepKind selects what a routine step does.
type RoutineStepKind string

const (
	RoutineExec    RoutineStepKind = "exec"
	RoutineTaskRef RoutineStepKind = "task"
	RoutineBuiltin RoutineStepKind = "builtin"
)

// RoutineStep is one element of a routine.
type RoutineStep struct {
	Kind RoutineStepKind

	Exec registry.ProcessStep

	TaskID string

	BuiltinID string
	Param     cty.Value
}

// Params holds backend parameters verbatim; each backend interprets its own.
type Params map[string]cty.Value
