package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/dag"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/pipeline"
)

type object struct {
	rep    *ObjectReport
	pl     *pipeline.Pipeline
	group  *group
	runner PipelineRunner
}

type group struct {
	g *dag.Group
	// remaining counts objects that have not committed yet.
	remaining int
	// unmet counts dependencies that have not fully committed yet.
	unmet   int
	objects []*object
}

// run holds the coordinator's state. Only the goroutine executing
// Executor.Run touches it.
type run struct {
	groups map[string]*group
	// order is the declaration order of groups.
	order []*group
	ready []*object
}

// Run executes every object of t and returns the run's report. The returned
// error is the report's Err.
func (e *Executor) Run(ctx context.Context, t *Task) (*Report, error) {
	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "task", t.ID, "run_id", runID)
	logger := ctxlog.FromContext(ctx)

	rep := &Report{TaskID: t.ID, RunID: runID, Start: time.Now()}
	finish := func(err error) (*Report, error) {
		rep.End = time.Now()
		rep.Err = err
		return rep, err
	}

	st, err := e.prepare(t, rep)
	if err != nil {
		return finish(err)
	}

	sess, err := t.Backend.Begin(ctx)
	if err != nil {
		for _, o := range rep.Objects {
			o.State = Cancelled
		}
		return finish(fmt.Errorf("backup task %q: %w", t.ID, errs.Backend(err, "begin run on %s", t.Backend.Name())))
	}
	rep.Prefix = sess.Prefix()
	ctx = ctxlog.With(ctx, "prefix", rep.Prefix)
	logger = ctxlog.FromContext(ctx)

	size := PoolSize(e.numWorkers, len(rep.Objects))
	logger.Info("Executor starting run.", "objects", len(rep.Objects), "workers", size, "backend", t.Backend.Name())

	failed := e.dispatch(ctx, sess, st, rep, size)

	if failed != nil {
		return finish(e.rollback(ctx, t, sess, rep, failed))
	}

	if cerr := sess.Close(ctx, true); cerr != nil {
		// The copy is not durable, so it must not count toward rotation.
		logger.Error("Closing run failed, rolling back.", "error", cerr)
		err := fmt.Errorf("backup task %q: %w", t.ID, errs.Backend(cerr, "close run %s", rep.Prefix))
		return finish(errors.Join(err, abortCommitted(ctx, sess, rep)))
	}
	logger.Info("Run committed.", "retained", humanize.IBytes(uint64(max(rep.Retained(), 0))))

	deleted, err := backend.Rotate(ctx, t.Backend, rep.Prefix)
	rep.Rotated = deleted
	if err != nil {
		return finish(fmt.Errorf("backup task %q: %w", t.ID, err))
	}
	logger.Info("Executor finished run.", "rotated", len(deleted))
	return finish(nil)
}

func (e *Executor) prepare(t *Task, rep *Report) (*run, error) {
	st := &run{groups: make(map[string]*group)}
	runner := e.runner
	if t.Runner != nil {
		runner = t.Runner
	}
	for _, g := range t.Plan.Groups() {
		gs := &group{g: g, remaining: len(g.Objects), unmet: len(g.Depends)}
		st.groups[g.ID] = gs
		st.order = append(st.order, gs)
		for _, obj := range g.Objects {
			pl, ok := t.Pipelines[obj.Path]
			if !ok {
				return nil, errs.Configf("backup task %q: object %q has no pipeline", t.ID, obj.Path)
			}
			o := &object{rep: &ObjectReport{Path: obj.Path, Group: g.ID}, pl: pl, group: gs, runner: runner}
			gs.objects = append(gs.objects, o)
			rep.Objects = append(rep.Objects, o.rep)
		}
	}
	return st, nil
}

// dispatch runs the coordinator loop and returns the first failed object, or
// nil when every object committed.
func (e *Executor) dispatch(ctx context.Context, sess backend.Session, st *run, rep *Report, size int) *object {
	logger := ctxlog.FromContext(ctx)

	work := make(chan *object)
	results := make(chan *object, len(rep.Objects))
	for i := 1; i <= size; i++ {
		go e.worker(ctx, sess, work, results, i)
	}
	defer close(work)

	for _, g := range st.order {
		if g.unmet == 0 {
			st.activate(g)
		}
	}

	var failed *object
	inflight := 0
	for {
		for failed == nil && inflight < size && len(st.ready) > 0 {
			if ctx.Err() != nil {
				break
			}
			o := st.ready[0]
			st.ready = st.ready[1:]
			o.rep.State = Running
			rep.Dispatched = append(rep.Dispatched, o.rep.Path)
			inflight++
			work <- o
		}
		if inflight == 0 {
			break
		}

		o := <-results
		inflight--
		if o.rep.Err != nil {
			o.rep.State = Failed
			if failed == nil {
				failed = o
				logger.Warn("Stopping dispatch after failure, draining running objects.", "object", o.rep.Path, "running", inflight)
			}
			continue
		}
		o.rep.State = Succeeded
		o.group.remaining--
		if o.group.remaining == 0 && failed == nil {
			st.complete(o.group)
		}
	}

	if failed == nil && ctx.Err() != nil && rep.Count(Pending) > 0 {
		// Cancelled between dispatches; report it like a failed object.
		for _, o := range rep.Objects {
			if o.State == Pending {
				o.State = Failed
				o.Err = ctx.Err()
				failed = &object{rep: o}
				break
			}
		}
	}
	for _, o := range rep.Objects {
		if o.State == Pending {
			o.State = Cancelled
		}
	}
	return failed
}

func (e *Executor) rollback(ctx context.Context, t *Task, sess backend.Session, rep *Report, failed *object) error {
	// Cleanup must outlive a cancelled caller.
	ctx = context.WithoutCancel(ctx)

	err := fmt.Errorf("backup task %q: object %q: %w", t.ID, failed.rep.Path, failed.rep.Err)
	err = errors.Join(err, abortCommitted(ctx, sess, rep))
	if cerr := sess.Close(ctx, false); cerr != nil {
		err = errors.Join(err, errs.Backend(cerr, "close run %s", rep.Prefix))
	}
	return err
}

// abortCommitted removes the run's committed objects and its prefix. On
// success the committed objects are reported as rolled back.
func abortCommitted(ctx context.Context, sess backend.Session, rep *Report) error {
	logger := ctxlog.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	var committed []string
	for _, o := range rep.Objects {
		if o.State == Succeeded {
			committed = append(committed, o.Path)
		}
	}
	logger.Warn("Rolling back run.", "committed", len(committed))

	if err := sess.Abort(ctx, committed); err != nil {
		logger.Error("Rollback failed.", "error", err)
		return errs.Backend(err, "roll back %s", rep.Prefix)
	}
	for _, o := range rep.Objects {
		if o.State == Succeeded {
			o.State = RolledBack
		}
	}
	return nil
}

// activate queues g's objects. An empty group completes immediately so its
// dependents are not held back.
func (st *run) activate(g *group) {
	if len(g.objects) == 0 {
		st.complete(g)
		return
	}
	st.ready = append(st.ready, g.objects...)
}

// complete releases every dependent whose last dependency was g.
func (st *run) complete(g *group) {
	for _, id := range g.g.Dependents {
		d := st.groups[id]
		d.unmet--
		if d.unmet == 0 {
			st.activate(d)
		}
	}
}
