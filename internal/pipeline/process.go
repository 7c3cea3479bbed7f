package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"

	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/registry"
)

// StepError reports a process whose exit code is not accepted.
type StepError struct {
	Step     int
	Command  string
	Code     int
	Accepted registry.ExitCodeSpec
	// Later lists the downstream steps whose codes were rejected too. A
	// failing consumer often makes its producer die of SIGPIPE first, so the
	// real cause may be here.
	Later []RejectedStep
}

// RejectedStep is a step whose exit code was not accepted.
type RejectedStep struct {
	Step    int
	Command string
	Code    int
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("step %d (%s): exit code %d not in %s", e.Step, e.Command, e.Code, e.Accepted)
	if len(e.Later) == 0 {
		return msg
	}
	later := make([]string, len(e.Later))
	for i, l := range e.Later {
		later[i] = fmt.Sprintf("step %d (%s) exited %d", l.Step, l.Command, l.Code)
	}
	return msg + "; also rejected: " + strings.Join(later, ", ")
}

func (e *StepError) Unwrap() error { return errs.ErrPipeline }

// envList merges overrides into the inherited environment.
func envList(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	out := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; !ok {
			out = append(out, kv)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// exitCode maps a Wait error to a shell-style exit code: 128+signo for
// signaled children.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return -1, err
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return ee.ExitCode(), nil
}

// stream returns where a child stream at level goes: the diagnostic writer
// when the level is enabled, otherwise nowhere.
func (r *Runner) stream(level slog.Level) io.Writer {
	if level < r.Threshold {
		return nil
	}
	if r.Diag == nil {
		return os.Stderr
	}
	return r.Diag
}
