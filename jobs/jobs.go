// Package jobs defines the job-table data model shared by the submission
// and status packages: per-batch options, job records, and per-job results.
package jobs

import (
	"fmt"
	"path/filepath"

	"github.com/getlantern/deepcopy"
)

// Status describes the terminal state of a job as read back from its
// log files.
type Status string

// The four job states derivable from a job's log files. A job is "missing"
// until its wrapper starts writing an error log, "frozen" once the log
// exists but carries no completion sentinel, and "error" or "done" once the
// log ends with the matching sentinel.
const (
	Missing Status = "missing"
	Frozen  Status = "frozen"
	Error   Status = "error"
	Done    Status = "done"
)

// Opts is the collection of options shared by every job in a batch.
// A Submitter treats it as read-only for its whole lifetime.
type Opts struct {
	// JobID names the batch on the scheduler.
	JobID string

	// WorkingDir is the directory jobs run in.
	WorkingDir string

	// Resource requests. Walltime and the memory fields are opaque
	// strings handed to the scheduler untouched; only the scheduler
	// validates them.
	Nproc    int
	Walltime string
	Mem      string
	Pmem     string
	Vmem     string
	Pvmem    string
	Gpus     int

	// ArrayJobs holds a scheduler-native array expression such as
	// "1-100%5", where the part after '%' caps how many array tasks run
	// at once. It is passed through, never fabricated.
	ArrayJobs string

	// Allocation attributes.
	Account string
	Queue   string

	// Email receives scheduler notifications. Think twice before using a
	// work address; a large batch can send thousands of mails.
	Email string

	// Env is serialized into the submission command and forwarded to the
	// job by the scheduler.
	Env map[string]string

	// Shell interprets the submitted script. /bin/bash by default;
	// non-shell interpreters are known to break on some PBS sites.
	Shell string

	// Script is the wrapper script every job runs. When empty, the
	// submitter resolves the bundled wrapper on the target's PATH.
	Script string
}

// DefaultOpts returns job options with the usual defaults: one process,
// a two hour walltime and a bash login shell.
func DefaultOpts(jobID string) Opts {
	return Opts{
		JobID:    jobID,
		Nproc:    1,
		Walltime: "02:00:00",
		Shell:    "/bin/bash",
	}
}

// Clone returns a deep copy of the options so a caller's Opts (env map
// included) is never mutated when the submitter overlays per-job variables.
func (o Opts) Clone() Opts {
	c := Opts{}
	deepcopy.Copy(&c, &o)
	return c
}

// Record is one row of a caller's job table: an index that must be unique
// within the table, the literal command to run, and optional metadata
// columns that are echoed back in results.
type Record struct {
	Index   string
	Command string
	Meta    map[string]string
}

// Result is the status-reader's report for one Record. Fields is set only
// when Status is Done and the job's stdout held a single JSON object;
// StdoutData holds the raw stdout otherwise.
type Result struct {
	Index      string
	Meta       map[string]string
	Status     Status
	Fields     map[string]interface{}
	StdoutData string
}

// Table is an ordered set of job records. Dispatch follows table order.
type Table []Record

// DuplicateIndexError reports a job table holding the same index twice,
// which is a caller error caught before anything is dispatched.
type DuplicateIndexError struct {
	Index string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("duplicate job index %q in job table", e.Index)
}

// Validate checks table-level invariants. Currently that is only index
// uniqueness; resource strings are left to the scheduler.
func (t Table) Validate() error {
	seen := make(map[string]bool, len(t))
	for _, rec := range t {
		if seen[rec.Index] {
			return &DuplicateIndexError{Index: rec.Index}
		}
		seen[rec.Index] = true
	}
	return nil
}

// OutPath returns the stdout log path for a job index within a job dir.
func OutPath(dir, index string) string {
	return filepath.Join(dir, index+".out")
}

// ErrPath returns the error log path for a job index within a job dir.
// The wrapper writes to ErrPath+".tmp" while running and renames it on
// completion.
func ErrPath(dir, index string) string {
	return filepath.Join(dir, index+".err")
}
