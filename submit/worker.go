package submit

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/armon/circbuf"

	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/logger"
	"github.com/pkimlab/jobsubmitter/scheduler"
)

// worker dispatches one job record and returns the dispatch output.
type worker interface {
	Run(ctx context.Context, rec jobs.Record) (string, error)
}

// executor is the slice of remote.Channel workers need.
type executor interface {
	Exec(ctx context.Context, command string) (string, error)
}

// remoteWorker formats one submission command per record and runs it on
// the cluster head node. The record's command and log paths travel in the
// job's environment; everything else comes from the shared options.
type remoteWorker struct {
	opts      jobs.Opts
	formatter scheduler.Formatter
	channel   executor
	settle    time.Duration
	log       *logger.Logger
}

func (w *remoteWorker) Run(ctx context.Context, rec jobs.Record) (string, error) {
	opts := w.opts.Clone()
	if opts.Env == nil {
		opts.Env = map[string]string{}
	}
	opts.Env["SYSTEM_COMMAND"] = rec.Command
	opts.Env["STDOUT_LOG"] = jobs.OutPath(opts.WorkingDir, rec.Index)
	opts.Env["STDERR_LOG"] = jobs.ErrPath(opts.WorkingDir, rec.Index)

	command, err := w.formatter.FormatSubmission(opts)
	if err != nil {
		return "", err
	}

	w.log.Debug("submitting job", "index", rec.Index, "command", command)
	out, err := w.channel.Exec(ctx, command)
	if err != nil {
		return "", err
	}

	// Give the head node's sshd a moment before the next session opens.
	time.Sleep(w.settle)
	return strings.TrimSpace(out), nil
}

// stderrTailSize bounds how much of a failed local job's stderr is carried
// in its error message. The full stream is always in the log file.
const stderrTailSize = 1024

// localWorker runs jobs as child processes, standing in for a scheduler.
// It keeps the wrapper script's log contract: stdout to <index>.out,
// stderr to <index>.err.tmp plus a final DONE! or ERROR! line, renamed to
// <index>.err once the process exits.
type localWorker struct {
	dir   string
	shell string
	log   *logger.Logger
}

func (w *localWorker) Run(ctx context.Context, rec jobs.Record) (string, error) {
	stdout, err := os.Create(jobs.OutPath(w.dir, rec.Index))
	if err != nil {
		return "", err
	}
	defer stdout.Close()

	errPath := jobs.ErrPath(w.dir, rec.Index)
	stderr, err := os.Create(errPath + ".tmp")
	if err != nil {
		return "", err
	}

	tail, err := circbuf.NewBuffer(stderrTailSize)
	if err != nil {
		stderr.Close()
		return "", err
	}

	cmd := exec.CommandContext(ctx, w.shell, "-c", rec.Command)
	cmd.Dir = w.dir
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)

	w.log.Debug("running job", "index", rec.Index, "command", rec.Command)
	runErr := cmd.Run()

	sentinel := "DONE!\n"
	if runErr != nil {
		sentinel = "ERROR!\n"
	}
	if _, err := io.WriteString(stderr, sentinel); err != nil {
		stderr.Close()
		return "", err
	}
	if err := stderr.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(errPath+".tmp", errPath); err != nil {
		return "", err
	}

	if runErr != nil {
		if msg := strings.TrimSpace(tail.String()); msg != "" {
			return "", fmt.Errorf("job %s: %v: %s", rec.Index, runErr, msg)
		}
		return "", fmt.Errorf("job %s: %v", rec.Index, runErr)
	}
	return "", nil
}
