package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
)

// SGE formats submission commands for Sun Grid Engine and its forks.
type SGE struct{}

// FormatSubmission builds a qsub command line. Array expressions are split
// at the first '%': the range goes to -t and the concurrency cap, when
// present, to -tc.
func (s *SGE) FormatSubmission(o jobs.Opts) (string, error) {
	if err := CheckCommand(config.SchemeSGE, o.Env["SYSTEM_COMMAND"]); err != nil {
		return "", err
	}

	parts := []string{
		"qsub",
		"-S", o.Shell,
		"-N", o.JobID,
		"-o", "/dev/null", "-e", "/dev/null",
		"-wd", o.WorkingDir,
		"-pe", "smp", strconv.Itoa(o.Nproc),
		"-l", "h_rt=" + o.Walltime,
	}
	if o.Mem != "" {
		parts = append(parts, "-l", "mem_free="+o.Mem)
	}
	if o.Vmem != "" {
		parts = append(parts, "-l", "h_vmem="+o.Vmem)
	}
	if o.Gpus != 0 {
		parts = append(parts, "-l", fmt.Sprintf("gpu=%d", o.Gpus))
	}
	if o.ArrayJobs != "" {
		rng, conc := splitArray(o.ArrayJobs)
		parts = append(parts, "-t", rng)
		if conc != "" {
			parts = append(parts, "-tc", conc)
		}
	}
	if o.Email != "" {
		parts = append(parts, "-M", o.Email, "-ma")
	}
	if env := flagEnvString(o.Env); env != "" {
		parts = append(parts, env)
	}
	parts = append(parts, `"`+o.Script+`"`)
	return strings.Join(parts, " "), nil
}

// splitArray splits a scheduler array expression such as "1-100%5" at the
// first '%' into its range and concurrency parts.
func splitArray(expr string) (rng, conc string) {
	if i := strings.Index(expr, "%"); i >= 0 {
		return expr[:i], expr[i+1:]
	}
	return expr, ""
}
