package executor

import (
	"context"
	"time"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
)

// worker runs objects handed over by the coordinator until work is closed.
// Every received object is sent back on results exactly once.
func (e *Executor) worker(ctx context.Context, sess backend.Session, work <-chan *object, results chan<- *object, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for o := range work {
		workerLogger := logger.With("workerID", workerID, "object", o.rep.Path, "group", o.rep.Group)
		workerLogger.Debug("Worker picked up object for execution.")

		o.rep.Start = time.Now()
		o.rep.Err = e.runObject(ctxlog.WithLogger(ctx, workerLogger), sess, o)
		o.rep.End = time.Now()

		if o.rep.Err != nil {
			workerLogger.Error("Object execution failed.", "error", o.rep.Err)
		} else {
			workerLogger.Debug("Object execution succeeded.", "retained", o.rep.Retained)
		}
		results <- o
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) runObject(ctx context.Context, sess backend.Session, o *object) error {
	sink, err := sess.OpenSink(ctx, o.pl.Path, o.pl.SizeHint)
	if err != nil {
		return errs.Backend(err, "open sink for %s", o.pl.Path)
	}
	res, err := o.runner.Run(ctx, o.pl, sink)
	o.rep.Written = res.Written
	o.rep.Retained = res.Retained
	o.rep.Codes = res.Codes
	return err
}
