package routine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/pipeline"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/vk/hostmaint/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

type recordingInvoker struct {
	calls []string
	err   error
}

func (r *recordingInvoker) Invoke(ctx context.Context, id string) error {
	r.calls = append(r.calls, id)
	return r.err
}

func shStep(script string) *config.RoutineStep {
	return &config.RoutineStep{
		Kind: config.RoutineExec,
		Exec: registry.ProcessStep{
			Kind:   registry.StepExecInline,
			Inline: registry.NewExecDefinition("", "/bin/sh", "-c", script),
		},
	}
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.NewExecDefinition("touch", "/bin/touch"))
	require.NoError(t, err)
	return reg
}

func TestRoutine_RunsStepsInOrder(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.LogContext(t)
	dir := t.TempDir()
	log := filepath.Join(dir, "log")
	inv := &recordingInvoker{}
	task := &config.Task{
		Kind: config.RoutineTask,
		ID:   "nightly",
		Steps: []*config.RoutineStep{
			shStep("echo one >> " + log),
			{Kind: config.RoutineTaskRef, TaskID: "backup"},
			shStep("echo two >> " + log),
			{Kind: config.RoutineExec, Exec: registry.ProcessStep{
				Kind: registry.StepExecAppend, ExecID: "touch", Argv: []string{filepath.Join(dir, "done")},
			}},
		},
	}

	// --- Act ---
	r, err := Compile(task, newRegistry(t), &pipeline.Runner{}, inv)
	require.NoError(t, err)
	err = r.Run(ctx)

	// --- Assert ---
	require.NoError(t, err)
	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
	assert.Equal(t, []string{"backup"}, inv.calls)
	assert.Equal(t, []string{"backup"}, r.Calls)
	assert.FileExists(t, filepath.Join(dir, "done"))
}

func TestRoutine_StopsAtFirstFailure(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	marker := filepath.Join(t.TempDir(), "marker")
	task := &config.Task{
		Kind: config.RoutineTask,
		ID:   "r",
		Steps: []*config.RoutineStep{
			shStep("exit 3"),
			shStep("touch " + marker),
		},
	}

	r, err := Compile(task, newRegistry(t), &pipeline.Runner{}, &recordingInvoker{})
	require.NoError(t, err)
	err = r.Run(ctx)

	require.ErrorIs(t, err, errs.ErrPipeline)
	var stepErr *pipeline.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 3, stepErr.Code)
	assert.NoFileExists(t, marker)
}

func TestRoutine_TaskFailurePropagates(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	inv := &recordingInvoker{err: errs.Backend(os.ErrPermission, "begin")}
	task := &config.Task{
		Kind: config.RoutineTask,
		ID:   "r",
		Steps: []*config.RoutineStep{
			{Kind: config.RoutineTaskRef, TaskID: "backup"},
			{Kind: config.RoutineTaskRef, TaskID: "never"},
		},
	}

	r, err := Compile(task, newRegistry(t), &pipeline.Runner{}, inv)
	require.NoError(t, err)
	err = r.Run(ctx)

	require.ErrorIs(t, err, errs.ErrBackend)
	assert.Equal(t, []string{"backup"}, inv.calls)
}

func TestCompile_Errors(t *testing.T) {
	testCases := []struct {
		name string
		step *config.RoutineStep
		kind error
	}{
		{
			name: "unknown exec",
			step: &config.RoutineStep{Kind: config.RoutineExec, Exec: registry.ProcessStep{Kind: registry.StepExec, ExecID: "nope"}},
			kind: errs.ErrConfig,
		},
		{
			name: "unknown builtin",
			step: &config.RoutineStep{Kind: config.RoutineBuiltin, BuiltinID: "reboot"},
			kind: errs.ErrBuiltin,
		},
		{
			name: "bad signal",
			step: &config.RoutineStep{Kind: config.RoutineBuiltin, BuiltinID: "sigmask", Param: cty.TupleVal([]cty.Value{
				cty.ObjectVal(map[string]cty.Value{
					"action": cty.StringVal("block"),
					"sig":    cty.TupleVal([]cty.Value{cty.StringVal("SIGFOO")}),
				}),
			})},
			kind: errs.ErrBuiltin,
		},
		{
			name: "task step without id",
			step: &config.RoutineStep{Kind: config.RoutineTaskRef},
			kind: errs.ErrConfig,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			task := &config.Task{Kind: config.RoutineTask, ID: "r", Steps: []*config.RoutineStep{tc.step}}
			_, err := Compile(task, newRegistry(t), &pipeline.Runner{}, &recordingInvoker{})
			require.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"sigmask"}, Builtins())
}
