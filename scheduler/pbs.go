package scheduler

import (
	"fmt"
	"strings"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
)

// PBS formats submission commands for PBS and Torque.
type PBS struct{}

// FormatSubmission builds a qsub command line. Resource requests travel in
// a single comma-delimited -l list; the array expression passes through -t
// in the scheduler's native range%concurrency form.
func (p *PBS) FormatSubmission(o jobs.Opts) (string, error) {
	if err := CheckCommand(config.SchemePBS, o.Env["SYSTEM_COMMAND"]); err != nil {
		return "", err
	}

	res := "nodes=1"
	if o.Nproc != 0 {
		res += fmt.Sprintf(":ppn=%d", o.Nproc)
	}
	if o.Gpus != 0 {
		res += fmt.Sprintf(":gpus=%d", o.Gpus)
	}
	res += ",walltime=" + o.Walltime
	if o.Mem != "" {
		res += ",mem=" + o.Mem
	}
	if o.Pmem != "" {
		res += ",pmem=" + o.Pmem
	}
	if o.Vmem != "" {
		res += ",vmem=" + o.Vmem
	}
	if o.Pvmem != "" {
		res += ",pvmem=" + o.Pvmem
	}

	parts := []string{
		"qsub",
		"-S", o.Shell,
		"-N", o.JobID,
		"-o", "/dev/null", "-e", "/dev/null",
		"-d", o.WorkingDir,
		"-l", res,
	}
	if o.ArrayJobs != "" {
		parts = append(parts, "-t", o.ArrayJobs)
	}
	if o.Account != "" {
		parts = append(parts, "-A", o.Account)
	}
	if o.Email != "" {
		parts = append(parts, "-M", o.Email, "-ma")
	}
	if env := listEnvString(o.Env); env != "" {
		parts = append(parts, "-v", env)
	}
	parts = append(parts, `"`+o.Script+`"`)
	return strings.Join(parts, " "), nil
}
