package submit

import (
	"context"
	"time"

	"github.com/gammazero/workerpool"
	"golang.org/x/time/rate"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/logger"
)

// orchestrator hands a validated job table to dispatch workers in table
// order, pacing dispatches and yielding to a full cluster queue.
type orchestrator struct {
	worker  worker
	conf    config.SubmitConfig
	ceiling int

	// countSubmitted polls the cluster for the account's queued job
	// count, and sleep waits out a full queue. Both are replaced in
	// tests.
	countSubmitted func(ctx context.Context) (int, error)
	sleep          func(d time.Duration)

	log *logger.Logger
}

func newOrchestrator(w worker, conf config.SubmitConfig, ceiling int, count func(ctx context.Context) (int, error), log *logger.Logger) *orchestrator {
	return &orchestrator{
		worker:         w,
		conf:           conf,
		ceiling:        ceiling,
		countSubmitted: count,
		sleep:          time.Sleep,
		log:            log,
	}
}

// Dispatch fans the table out to the worker pool and returns once every
// record has been handed over. Callers observe individual outcomes through
// the returned futures, which line up with the table. When admission
// control fails, the futures dispatched so far are returned with the error.
func (o *orchestrator) Dispatch(ctx context.Context, table jobs.Table) ([]*Future, error) {
	limit := rate.Inf
	if d := time.Duration(o.conf.DispatchInterval); d > 0 {
		limit = rate.Every(d)
	}
	limiter := rate.NewLimiter(limit, 1)

	size := o.conf.PoolSize
	if size < 1 {
		size = 1
	}
	wp := workerpool.New(size)

	futures := make([]*Future, 0, len(table))
	for i, rec := range table {
		if err := o.admit(ctx, i); err != nil {
			go wp.StopWait()
			return futures, err
		}
		if err := limiter.Wait(ctx); err != nil {
			go wp.StopWait()
			return futures, err
		}

		f := newFuture(rec.Index)
		futures = append(futures, f)
		rec := rec
		wp.Submit(func() {
			f.complete(o.worker.Run(ctx, rec))
		})
	}

	// Release the pool's workers once the queue drains. Completion is
	// observed through the futures, never by blocking here.
	go wp.StopWait()
	return futures, nil
}

// admit blocks before every Step'th dispatch while the cluster has no
// headroom for another step's worth of jobs. The check is coarse: it
// bounds how far a batch can run ahead of the ceiling, it does not hold
// an exact limit.
func (o *orchestrator) admit(ctx context.Context, pos int) error {
	step := o.conf.Throttle.Step
	if o.ceiling <= 0 || step <= 0 || (pos+1)%step != 0 {
		return nil
	}
	for {
		n, err := o.countSubmitted(ctx)
		if err != nil {
			return err
		}
		if n+step <= o.ceiling {
			return nil
		}
		o.log.Info("cluster queue is full, pausing dispatch",
			"submitted", n, "limit", o.ceiling)
		o.sleep(time.Duration(o.conf.Throttle.Delay))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
