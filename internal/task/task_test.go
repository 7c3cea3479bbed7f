package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/executor"
	"github.com/vk/hostmaint/internal/pipeline"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/vk/hostmaint/internal/routine"
	"github.com/vk/hostmaint/internal/testutil"
)

type fakeBackups struct {
	ran    []string
	stacks [][]string
	err    error
}

func (f *fakeBackups) Run(ctx context.Context, t *executor.Task) (*executor.Report, error) {
	f.ran = append(f.ran, t.ID)
	f.stacks = append(f.stacks, Stack(ctx))
	return &executor.Report{TaskID: t.ID, Err: f.err}, f.err
}

func callRoutine(t *testing.T, r *Runner, id string, callees ...string) *routine.Routine {
	t.Helper()
	task := &config.Task{Kind: config.RoutineTask, ID: id}
	for _, c := range callees {
		task.Steps = append(task.Steps, &config.RoutineStep{Kind: config.RoutineTaskRef, TaskID: c})
	}
	reg, err := registry.New()
	require.NoError(t, err)
	rt, err := routine.Compile(task, reg, &pipeline.Runner{}, r)
	require.NoError(t, err)
	return rt
}

func TestRunner_RoutineCallsBackup(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.LogContext(t)
	backups := &fakeBackups{}
	r := New(backups)
	require.NoError(t, r.AddBackup(&executor.Task{ID: "snapshot"}))
	require.NoError(t, r.AddRoutine(callRoutine(t, r, "default", "prepare", "snapshot")))
	require.NoError(t, r.AddRoutine(callRoutine(t, r, "prepare")))
	require.NoError(t, r.Validate())

	// --- Act ---
	err := r.Run(ctx, "default")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot"}, backups.ran)
	assert.Equal(t, [][]string{{"default", "snapshot"}}, backups.stacks)
	require.Len(t, r.Reports(), 1)
	assert.Equal(t, "snapshot", r.Reports()[0].TaskID)
	assert.Equal(t, []string{"snapshot", "default", "prepare"}, r.IDs())
}

func TestRunner_BackupFailurePropagates(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	backups := &fakeBackups{err: errs.ErrPipeline}
	r := New(backups)
	require.NoError(t, r.AddBackup(&executor.Task{ID: "snapshot"}))
	require.NoError(t, r.AddRoutine(callRoutine(t, r, "default", "snapshot", "snapshot")))

	err := r.Run(ctx, "default")

	require.ErrorIs(t, err, errs.ErrPipeline)
	assert.Len(t, backups.ran, 1, "the routine stops at the first failure")
	assert.Len(t, r.Reports(), 1)
}

func TestRunner_UnknownTask(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	r := New(&fakeBackups{})

	err := r.Run(ctx, "missing")

	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestRunner_RecursionRejectedAtRunTime(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	r := New(&fakeBackups{})
	require.NoError(t, r.AddRoutine(callRoutine(t, r, "a", "b")))
	require.NoError(t, r.AddRoutine(callRoutine(t, r, "b", "a")))

	err := r.Run(ctx, "a")

	require.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestRunner_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		routines map[string][]string
		order    []string
		wantErr  string
	}{
		{
			name:     "unknown callee",
			routines: map[string][]string{"a": {"ghost"}},
			order:    []string{"a"},
			wantErr:  `routine "a" calls unknown task "ghost"`,
		},
		{
			name:     "self call",
			routines: map[string][]string{"a": {"a"}},
			order:    []string{"a"},
			wantErr:  `routine "a" calls itself`,
		},
		{
			name:     "indirect cycle",
			routines: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			order:    []string{"a", "b", "c"},
			wantErr:  "cycle detected",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(&fakeBackups{})
			for _, id := range tc.order {
				require.NoError(t, r.AddRoutine(callRoutine(t, r, id, tc.routines[id]...)))
			}
			err := r.Validate()
			require.ErrorIs(t, err, errs.ErrConfig)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRunner_DuplicateID(t *testing.T) {
	r := New(&fakeBackups{})
	require.NoError(t, r.AddBackup(&executor.Task{ID: "x"}))
	err := r.AddRoutine(&routine.Routine{ID: "x"})
	require.ErrorIs(t, err, errs.ErrConfig)
}
