// Package scheduler formats single-line submission commands for the batch
// schedulers a cluster head node may run: Sun Grid Engine, PBS/Torque and
// Slurm. Every variant places the job's literal command and log paths in
// environment variables and submits the shared wrapper script, which runs
// the command and records its outcome.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
)

// Formatter builds scheduler-ready submission commands.
type Formatter interface {
	// FormatSubmission maps job options, including the job's environment
	// overlay, to a single-line command understood by the scheduler's
	// submission CLI.
	FormatSubmission(opts jobs.Opts) (string, error)
}

// NewFormatter returns the Formatter for a connection scheme. Local targets
// run jobs in-process and have no submission CLI, so only the three remote
// schemes are known here.
func NewFormatter(scheme string) (Formatter, error) {
	switch scheme {
	case config.SchemeSGE:
		return &SGE{}, nil
	case config.SchemePBS:
		return &PBS{}, nil
	case config.SchemeSlurm:
		return &Slurm{}, nil
	default:
		return nil, &config.ConfigurationError{
			Msg: fmt.Sprintf("no submission command formatter for scheme %q", scheme),
		}
	}
}

// InvalidCommandError reports a literal command that the target scheduler's
// CLI cannot carry.
type InvalidCommandError struct {
	Scheme  string
	Command string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf(
		"%s can't carry command %q: commas collide with the scheduler's comma-delimited argument lists",
		e.Scheme, e.Command,
	)
}

// CheckCommand validates a literal command against a scheme's restrictions
// without formatting anything. The submitter runs it over a whole job table
// before opening any connection. PBS and Grid Engine pass environment
// variables and resource requests through comma-delimited lists, so for
// those schemes the command may not contain a comma. Slurm quotes exported
// values and has no such restriction.
func CheckCommand(scheme, command string) error {
	switch scheme {
	case config.SchemeSGE, config.SchemePBS:
		if strings.Contains(command, ",") {
			return &InvalidCommandError{Scheme: scheme, Command: command}
		}
	}
	return nil
}
