// Package status reads job outcomes back from the log files jobs leave
// behind. Classification is a pure function of file presence and content,
// so reading is safe to repeat at any time, including while jobs run.
package status

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/logger"
)

// Reader classifies jobs by inspecting their log files in one job
// directory.
//
// A job with no error log is "missing". An error log with no completion
// sentinel on its last line means "frozen" (queued, running, or killed
// without a trace). A final "error!" or "done!" line (case-insensitive)
// decides between "error" and "done". Only done jobs have their stdout
// loaded: a single JSON object is merged into the result's fields,
// anything else is kept as raw text.
type Reader struct {
	dir string
	max int64
	log *logger.Logger
}

// NewReader returns a Reader for a job directory.
func NewReader(dir string, conf config.StatusConfig) *Reader {
	return &Reader{
		dir: dir,
		max: int64(conf.MaxStdoutSize),
		log: logger.Sub("status", "dir", dir),
	}
}

// ReadTable classifies every record in the table, in table order. It never
// fails for reasons internal to one job: absent or malformed artifacts
// degrade to missing/frozen or a raw-text fallback instead.
func (r *Reader) ReadTable(table jobs.Table) []jobs.Result {
	// Listing the directory first forces NFS clients to refresh their
	// attribute caches before the per-file opens below.
	_, _ = os.ReadDir(r.dir)

	results := make([]jobs.Result, 0, len(table))
	for _, rec := range table {
		results = append(results, r.Read(rec))
	}
	return results
}

// Read classifies a single record.
func (r *Reader) Read(rec jobs.Record) jobs.Result {
	res := jobs.Result{Index: rec.Index, Meta: rec.Meta}

	// The wrapper writes stderr to the .tmp path while the job runs and
	// renames it at the end, so prefer the .tmp view when both exist.
	errPath := jobs.ErrPath(r.dir, rec.Index)
	b, err := os.ReadFile(errPath + ".tmp")
	if err != nil {
		b, err = os.ReadFile(errPath)
	}
	if err != nil {
		res.Status = jobs.Missing
		return res
	}

	data := strings.ToLower(strings.TrimSpace(string(b)))
	switch {
	case strings.HasSuffix(data, "error!"):
		res.Status = jobs.Error
		return res
	case strings.HasSuffix(data, "done!"):
		res.Status = jobs.Done
	default:
		res.Status = jobs.Frozen
		return res
	}

	stdout, err := r.readStdout(rec.Index)
	if err != nil {
		// A done job with unreadable stdout still counts as done.
		r.log.Debug("no stdout for done job", "index", rec.Index, "error", err)
		return res
	}

	fields := map[string]interface{}{}
	if err := json.Unmarshal([]byte(stdout), &fields); err == nil && fields != nil {
		res.Fields = fields
	} else {
		res.StdoutData = stdout
	}
	return res
}

// readStdout loads a job's stdout log, trimmed, capped at the configured
// size.
func (r *Reader) readStdout(index string) (string, error) {
	f, err := os.Open(jobs.OutPath(r.dir, index))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var rd io.Reader = f
	if r.max > 0 {
		rd = io.LimitReader(f, r.max)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Counts tallies results by status.
func Counts(results []jobs.Result) map[jobs.Status]int {
	counts := make(map[jobs.Status]int, 4)
	for _, res := range results {
		counts[res.Status]++
	}
	return counts
}
