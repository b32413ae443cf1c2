package submit

import (
	"context"
	"strconv"
	"strings"
)

// The introspection pipelines are the same on every supported scheduler;
// Slurm sites ship a qstat shim. Counting lines that carry the user name
// sidesteps the headers, which differ between qstat builds.
const (
	submittedCountCommand = `qstat -u "$USER" | grep "$USER" | wc -l`
	runningCountCommand   = `qstat -u "$USER" | grep "$USER" | grep -i " r  " | wc -l`
)

// queuePoller is the slice of remote.Channel the queue needs.
type queuePoller interface {
	Poll(ctx context.Context, command string, accept func(string) bool) (string, error)
}

// Queue reads the connecting account's job counts off a cluster head node.
// A busy qstat sometimes prints nothing or a partial table, so counts are
// polled until the output parses.
type Queue struct {
	poller queuePoller
}

// NewQueue returns a Queue reading counts through p.
func NewQueue(p queuePoller) *Queue {
	return &Queue{poller: p}
}

// NumSubmitted returns how many jobs the account has on the cluster,
// queued and running both.
func (q *Queue) NumSubmitted(ctx context.Context) (int, error) {
	return q.count(ctx, submittedCountCommand)
}

// NumRunning returns how many of the account's jobs are in the running
// state.
func (q *Queue) NumRunning(ctx context.Context) (int, error) {
	return q.count(ctx, runningCountCommand)
}

func (q *Queue) count(ctx context.Context, command string) (int, error) {
	out, err := q.poller.Poll(ctx, command, isCount)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// isCount accepts command output that parses as a bare integer.
func isCount(out string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(out))
	return err == nil
}
