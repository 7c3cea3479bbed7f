package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/registry"
)

// DefaultBufferSize is the copy buffer between the last step and the sink.
const DefaultBufferSize = 32 << 10

// Pipeline is a backup object with every step resolved.
type Pipeline struct {
	Path string
	// SizeHint is negative when unknown.
	SizeHint int64
	Steps    []*registry.ExecDefinition
}

// Compile resolves obj's steps against reg.
func Compile(reg *registry.Registry, obj *config.Object) (*Pipeline, error) {
	if len(obj.Pipeline) == 0 {
		return nil, errs.Configf("object %q: empty pipeline", obj.Path)
	}
	p := &Pipeline{Path: obj.Path, SizeHint: -1}
	if obj.AllocSize != nil {
		p.SizeHint = *obj.AllocSize
	}
	for i, step := range obj.Pipeline {
		def, err := reg.Resolve(step)
		if err != nil {
			return nil, fmt.Errorf("object %q step %d: %w", obj.Path, i, err)
		}
		p.Steps = append(p.Steps, def)
	}
	return p, nil
}

// Runner spawns processes. The zero value writes enabled child output to
// os.Stderr at the info threshold.
type Runner struct {
	// Threshold is the run verbosity; child streams below it are discarded.
	Threshold slog.Level
	// Diag receives forwarded child output.
	Diag       io.Writer
	BufferSize int
}

// Result describes a committed object.
type Result struct {
	// Written is the number of bytes the last step produced.
	Written int64
	// Retained is what the backend reported keeping.
	Retained int64
	Codes    []int
}

// Run executes p and streams its output into sink. The sink is committed only
// when every step exited with an accepted code; otherwise it is aborted.
func (r *Runner) Run(ctx context.Context, p *Pipeline, sink backend.Sink) (res Result, err error) {
	logger := ctxlog.FromContext(ctx).With("object", p.Path)
	defer func() {
		if err != nil {
			if aerr := sink.Abort(ctx); aerr != nil && !errors.Is(aerr, backend.ErrSinkClosed) {
				err = errors.Join(err, aerr)
			}
		}
	}()

	cmds := make([]*exec.Cmd, len(p.Steps))
	// parentFiles are pipe ends the children inherit; closed once started.
	var parentFiles []*os.File
	closeParent := func() {
		for _, f := range parentFiles {
			f.Close()
		}
		parentFiles = nil
	}
	defer closeParent()

	for i, def := range p.Steps {
		cmd := exec.CommandContext(ctx, def.Argv[0], def.Argv[1:]...)
		cmd.Env = envList(def.Env)
		cmd.Stderr = r.stream(def.StderrLevel)
		cmds[i] = cmd
	}

	for i := 0; i < len(cmds)-1; i++ {
		pr, pw, err := os.Pipe()
		if err != nil {
			return res, fmt.Errorf("%w: creating pipe: %w", errs.ErrPipeline, err)
		}
		cmds[i].Stdout = pw
		cmds[i+1].Stdin = pr
		parentFiles = append(parentFiles, pr, pw)
	}
	out, outW, err := os.Pipe()
	if err != nil {
		return res, fmt.Errorf("%w: creating pipe: %w", errs.ErrPipeline, err)
	}
	defer out.Close()
	cmds[len(cmds)-1].Stdout = outW
	parentFiles = append(parentFiles, outW)

	logger.Debug("Starting pipeline.", "steps", len(cmds))
	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			closeParent()
			for _, started := range cmds[:i] {
				started.Process.Kill()
				started.Wait()
			}
			return res, fmt.Errorf("%w: step %d (%s): %w", errs.ErrPipeline, i, p.Steps[i], err)
		}
		logger.Debug("Process spawned.", "step", i, "pid", cmd.Process.Pid, "cmd", p.Steps[i].String())
	}
	closeParent()

	bufSize := r.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	written, copyErr := io.CopyBuffer(struct{ io.Writer }{sink}, struct{ io.Reader }{out}, make([]byte, bufSize))
	res.Written = written
	if copyErr != nil {
		// Unblock the last step so the chain can exit.
		out.Close()
	}

	var waitErr error
	res.Codes = make([]int, len(cmds))
	for i, cmd := range cmds {
		code, err := exitCode(cmd.Wait())
		if err != nil && waitErr == nil {
			waitErr = fmt.Errorf("%w: step %d: %w", errs.ErrPipeline, i, err)
		}
		res.Codes[i] = code
	}
	logger.Debug("Pipeline exited.", "codes", res.Codes, "written", written)

	if ctx.Err() != nil {
		return res, fmt.Errorf("%w: %w", errs.ErrPipeline, context.Cause(ctx))
	}
	if copyErr != nil {
		return res, errs.Backend(copyErr, "writing %s", p.Path)
	}
	if waitErr != nil {
		return res, waitErr
	}
	if err := checkCodes(ctx, p, res.Codes); err != nil {
		return res, err
	}

	retained, err := sink.Commit(ctx)
	if err != nil {
		return res, err
	}
	res.Retained = retained
	return res, nil
}

// RunStep runs a single process with stdin from /dev/null, forwarding its
// output per the definition's verbosity, and checks its exit code.
func (r *Runner) RunStep(ctx context.Context, def *registry.ExecDefinition) (int, error) {
	logger := ctxlog.FromContext(ctx)
	cmd := exec.CommandContext(ctx, def.Argv[0], def.Argv[1:]...)
	cmd.Env = envList(def.Env)
	cmd.Stdout = r.stream(def.StdoutLevel)
	cmd.Stderr = r.stream(def.StderrLevel)

	logger.Debug("Running process.", "cmd", def.String())
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %s: %w", errs.ErrPipeline, def, err)
	}
	code, err := exitCode(cmd.Wait())
	if err != nil {
		return code, fmt.Errorf("%w: %s: %w", errs.ErrPipeline, def, err)
	}
	if ctx.Err() != nil {
		return code, fmt.Errorf("%w: %w", errs.ErrPipeline, context.Cause(ctx))
	}
	logger.Debug("Process exited.", "cmd", def.String(), "code", code)
	if !def.ExitCodes.Accepts(code) {
		return code, &StepError{Step: 0, Command: def.String(), Code: code, Accepted: def.ExitCodes}
	}
	return code, nil
}

// checkCodes fails on the first step, in pipeline order, whose exit code is
// not accepted. Every rejected code is logged.
func checkCodes(ctx context.Context, p *Pipeline, codes []int) error {
	logger := ctxlog.FromContext(ctx)
	var stepErr *StepError
	for i, code := range codes {
		step := p.Steps[i]
		if step.ExitCodes.Accepts(code) {
			continue
		}
		logger.Debug("Exit code rejected.", "object", p.Path, "step", i, "cmd", step.String(), "code", code)
		if stepErr == nil {
			stepErr = &StepError{Step: i, Command: step.String(), Code: code, Accepted: step.ExitCodes}
			continue
		}
		stepErr.Later = append(stepErr.Later, RejectedStep{Step: i, Command: step.String(), Code: code})
	}
	if stepErr == nil {
		return nil
	}
	return stepErr
}
