package submit

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Future is the handle for one dispatched job. It settles when the job has
// been handed to the target scheduler, or, for local jobs, when the child
// process exits. The job itself may keep running on the cluster long after.
type Future struct {
	// Index is the job table index the dispatch belongs to.
	Index string

	done chan struct{}
	out  string
	err  error
}

func newFuture(index string) *Future {
	return &Future{Index: index, done: make(chan struct{})}
}

// complete settles the future. Called exactly once, by the dispatch worker.
func (f *Future) complete(out string, err error) {
	f.out = out
	f.err = err
	close(f.done)
}

// Wait blocks until the dispatch settles. It returns the scheduler's
// acknowledgment line for remote jobs and the empty string for local ones.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.done:
		return f.out, f.err
	}
}

// WaitAll waits for every future and joins the failures into one error,
// so one job's failure never hides another's.
func WaitAll(ctx context.Context, futures []*Future) error {
	var errs *multierror.Error
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("job %s: %w", f.Index, err))
		}
	}
	return errs.ErrorOrNil()
}
