//go:build unix

package routine

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestParseSignal(t *testing.T) {
	testCases := []struct {
		in   string
		want syscall.Signal
	}{
		{"INT", syscall.SIGINT},
		{"sigterm", syscall.SIGTERM},
		{"SIGHUP", syscall.SIGHUP},
		{"Usr1", syscall.SIGUSR1},
		{"15", syscall.SIGTERM},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSignal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"SIGFOO", "0", "-1", "100000", ""} {
		_, err := ParseSignal(bad)
		assert.ErrorIs(t, err, errs.ErrBuiltin, bad)
	}
}

func sigmaskParam(action string, sigs ...cty.Value) cty.Value {
	return cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{
			"action": cty.StringVal(action),
			"sig":    cty.TupleVal(sigs),
		}),
	})
}

func TestNewSigmask(t *testing.T) {
	b, err := NewSigmask(sigmaskParam("BLOCK", cty.StringVal("int"), cty.NumberIntVal(15)))
	require.NoError(t, err)
	s := b.(*Sigmask)
	require.Len(t, s.Actions, 1)
	assert.True(t, s.Actions[0].Block)
	assert.Equal(t, []syscall.Signal{syscall.SIGINT, syscall.SIGTERM}, s.Actions[0].Signals)
	assert.Equal(t, "sigmask[block(SIGINT,SIGTERM)]", s.String())
}

func TestNewSigmask_Errors(t *testing.T) {
	testCases := map[string]cty.Value{
		"null param":       cty.NullVal(cty.DynamicPseudoType),
		"not a list":       cty.StringVal("block"),
		"unknown action":   sigmaskParam("ignore", cty.StringVal("INT")),
		"sigkill":          sigmaskParam("block", cty.StringVal("KILL")),
		"sigstop":          sigmaskParam("block", cty.NumberIntVal(int64(syscall.SIGSTOP))),
		"fractional":       sigmaskParam("block", cty.NumberFloatVal(2.5)),
		"bool signal":      sigmaskParam("block", cty.True),
		"missing sig attr": cty.TupleVal([]cty.Value{cty.ObjectVal(map[string]cty.Value{"action": cty.StringVal("block")})}),
	}
	for name, param := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSigmask(param)
			require.ErrorIs(t, err, errs.ErrBuiltin)
		})
	}
}

func TestMask_HoldsAndRedelivers(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.LogContext(t)
	m := newMask()
	var redelivered []syscall.Signal
	m.kill = func(pid int, sig syscall.Signal) error {
		redelivered = append(redelivered, sig)
		return nil
	}
	block := &Sigmask{mask: m, Actions: []MaskAction{{Block: true, Signals: []syscall.Signal{syscall.SIGUSR2, syscall.SIGWINCH}}}}
	unblock := &Sigmask{mask: m, Actions: []MaskAction{{Signals: []syscall.Signal{syscall.SIGUSR2, syscall.SIGWINCH}}}}

	// --- Act ---
	require.NoError(t, block.Run(ctx))
	assert.Equal(t, []syscall.Signal{syscall.SIGUSR2, syscall.SIGWINCH}, m.Blocked())
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, func() bool { return m.pending(syscall.SIGUSR2) }, time.Second, 5*time.Millisecond)
	require.NoError(t, unblock.Run(ctx))

	// --- Assert ---
	assert.Equal(t, []syscall.Signal{syscall.SIGUSR2}, redelivered, "only the pending signal is re-raised")
	assert.Empty(t, m.Blocked())
}

func TestMask_ChildrenDoNotInherit(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.LogContext(t)
	m := newMask()
	m.kill = func(pid int, sig syscall.Signal) error { return nil }
	sigs := []syscall.Signal{syscall.SIGUSR1}
	block := &Sigmask{mask: m, Actions: []MaskAction{{Block: true, Signals: sigs}}}
	unblock := &Sigmask{mask: m, Actions: []MaskAction{{Signals: sigs}}}
	require.NoError(t, block.Run(ctx))
	t.Cleanup(func() { _ = unblock.Run(ctx) })

	// --- Act ---
	err := exec.Command("/bin/sh", "-c", "kill -USR1 $$; sleep 5").Run()

	// --- Assert ---
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child should be killed, got %v", err)
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled())
	assert.Equal(t, syscall.SIGUSR1, status.Signal())
}
