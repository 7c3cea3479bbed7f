package hcl

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// translateFile converts one decoded file into a format-agnostic model.
func translateFile(path string, root *fileRoot) (*config.Model, error) {
	m := &config.Model{
		NbWorkers: root.NbWorkers,
		Files:     []string{path},
	}
	if root.Verbosity != nil {
		if err := checkVerbosity("vl", *root.Verbosity); err != nil {
			return nil, err
		}
		m.Verbosity = root.Verbosity
	}

	seenExec := make(map[string]bool, len(root.Execs))
	for _, b := range root.Execs {
		if seenExec[b.ID] {
			return nil, errs.Configf("duplicate exec %q", b.ID)
		}
		seenExec[b.ID] = true
		def, err := translateExec(b.ID, b.Argv, b.Env, b.EC, b.VlStdout, b.VlStderr)
		if err != nil {
			return nil, err
		}
		m.Execs = append(m.Execs, def)
	}

	seenTask := make(map[string]bool, len(root.Tasks))
	for _, b := range root.Tasks {
		if seenTask[b.ID] {
			return nil, errs.Configf("duplicate task %q", b.ID)
		}
		seenTask[b.ID] = true
		t, err := translateTask(path, b)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", b.ID, err)
		}
		m.Tasks = append(m.Tasks, t)
	}
	return m, nil
}

func translateExec(id string, argv []string, env map[string]string, ec *string, vlOut, vlErr *int) (*registry.ExecDefinition, error) {
	def := registry.NewExecDefinition(id, argv...)
	for k, v := range env {
		def.Env[k] = v
	}
	if ec != nil {
		spec, err := registry.ParseExitCodes(*ec)
		if err != nil {
			return nil, err
		}
		def.ExitCodes = spec
	}
	if vlOut != nil {
		if err := checkVerbosity("vl-stdout", *vlOut); err != nil {
			return nil, err
		}
		def.StdoutLevel = registry.LevelFromVerbosity(*vlOut)
	}
	if vlErr != nil {
		if err := checkVerbosity("vl-stderr", *vlErr); err != nil {
			return nil, err
		}
		def.StderrLevel = registry.LevelFromVerbosity(*vlErr)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func translateTask(path string, b *taskBlock) (*config.Task, error) {
	t := &config.Task{
		Kind:   config.TaskKind(b.Kind),
		ID:     b.ID,
		Source: path,
	}
	switch t.Kind {
	case config.BackupTask:
		return t, translateBackup(t, b)
	case config.RoutineTask:
		if b.Backend != nil || b.BackendParam != nil || len(b.Groups) > 0 || len(b.Objects) > 0 {
			return nil, errs.Configf("routine task cannot declare backup attributes")
		}
		for i, sb := range b.Steps {
			step, err := translateRoutineStep(sb)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			t.Steps = append(t.Steps, step)
		}
		return t, nil
	}
	return nil, errs.Configf("unknown task type %q", b.Kind)
}

func translateBackup(t *config.Task, b *taskBlock) error {
	if b.Backend == nil || *b.Backend == "" {
		return errs.Configf("backup task requires a backend")
	}
	if len(b.Steps) > 0 {
		return errs.Configf("backup task cannot declare routine steps")
	}
	t.Backend = *b.Backend

	t.BackendParams = config.Params{}
	if b.BackendParam != nil {
		attrs, diags := b.BackendParam.Body.JustAttributes()
		if diags.HasErrors() {
			return fmt.Errorf("%w: backend-param: %w", errs.ErrConfig, diags)
		}
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return fmt.Errorf("%w: backend-param %q: %w", errs.ErrConfig, name, diags)
			}
			t.BackendParams[name] = v
		}
	}

	for _, g := range b.Groups {
		t.Groups = append(t.Groups, &config.ObjectGroup{ID: g.ID, Depends: g.Depends})
	}

	for _, ob := range b.Objects {
		obj := &config.Object{Path: ob.Path, AllocSize: ob.AllocSize}
		if ob.Group != nil {
			obj.Group = *ob.Group
		}
		for i, sb := range ob.Steps {
			step, err := translateProcessStep(sb)
			if err != nil {
				return fmt.Errorf("object %q step %d: %w", ob.Path, i, err)
			}
			obj.Pipeline = append(obj.Pipeline, step)
		}
		t.Objects = append(t.Objects, obj)
	}
	return nil
}

func translateProcessStep(sb *stepBlock) (registry.ProcessStep, error) {
	kind, err := registry.ParseStepKind(sb.Kind)
	if err != nil {
		return registry.ProcessStep{}, err
	}
	step := registry.ProcessStep{Kind: kind}

	switch kind {
	case registry.StepExec, registry.StepExecAppend:
		if sb.ExecID == nil || *sb.ExecID == "" {
			return step, errs.Configf("%s step at %s requires exec-id", sb.Kind, sb.DefRange)
		}
		step.ExecID = *sb.ExecID
		if kind == registry.StepExec && (len(sb.Argv) > 0 || len(sb.Env) > 0) {
			return step, errs.Configf("exec step at %s cannot extend argv or env, use exec-append", sb.DefRange)
		}
		step.Argv = sb.Argv
		step.Env = sb.Env
	case registry.StepExecInline:
		def, err := translateExec("", sb.Argv, sb.Env, sb.EC, nil, nil)
		if err != nil {
			return step, err
		}
		step.Inline = def
	}

	if sb.VlStdout != nil {
		if err := checkVerbosity("vl-stdout", *sb.VlStdout); err != nil {
			return step, err
		}
		step.StdoutLevel = levelPtr(registry.LevelFromVerbosity(*sb.VlStdout))
	}
	if sb.VlStderr != nil {
		if err := checkVerbosity("vl-stderr", *sb.VlStderr); err != nil {
			return step, err
		}
		step.StderrLevel = levelPtr(registry.LevelFromVerbosity(*sb.VlStderr))
	}
	return step, nil
}

func translateRoutineStep(sb *stepBlock) (*config.RoutineStep, error) {
	switch sb.Kind {
	case "task":
		if sb.TaskID == nil || *sb.TaskID == "" {
			return nil, errs.Configf("task step at %s requires task-id", sb.DefRange)
		}
		return &config.RoutineStep{Kind: config.RoutineTaskRef, TaskID: *sb.TaskID}, nil
	case "builtin":
		if sb.BuiltinID == nil || *sb.BuiltinID == "" {
			return nil, errs.Configf("builtin step at %s requires builtin-id", sb.DefRange)
		}
		param, err := exprValue(sb.Param)
		if err != nil {
			return nil, err
		}
		return &config.RoutineStep{Kind: config.RoutineBuiltin, BuiltinID: *sb.BuiltinID, Param: param}, nil
	}

	step, err := translateProcessStep(sb)
	if err != nil {
		return nil, err
	}
	return &config.RoutineStep{Kind: config.RoutineExec, Exec: step}, nil
}

// exprValue evaluates a literal expression. An absent attribute yields
// cty.NilVal.
func exprValue(expr hcl.Expression) (cty.Value, error) {
	if expr == nil {
		return cty.NilVal, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %w", errs.ErrConfig, diags)
	}
	if v.IsNull() {
		return cty.NilVal, nil
	}
	return v, nil
}

func checkVerbosity(name string, vl int) error {
	if vl < 0 || vl > 4 {
		return errs.Configf("%s must be between 0 and 4, got %d", name, vl)
	}
	return nil
}

func levelPtr(l slog.Level) *slog.Level { return &l }
