package scheduler

import (
	"fmt"
	"strings"

	"github.com/pkimlab/jobsubmitter/jobs"
)

// Slurm formats submission commands for Slurm.
type Slurm struct{}

// FormatSubmission builds an sbatch command line. Slurm quotes every
// exported variable, so unlike PBS and Grid Engine the literal command may
// contain commas. The array expression passes through --array in the
// scheduler's native range%concurrency form.
func (s *Slurm) FormatSubmission(o jobs.Opts) (string, error) {
	parts := []string{
		"sbatch",
		"-o", "/dev/null", "-e", "/dev/null",
		"--job-name=" + o.JobID,
		fmt.Sprintf(`--workdir="%s"`, o.WorkingDir),
		fmt.Sprintf("--cpus-per-task=%d", o.Nproc),
		"--time=" + o.Walltime,
	}
	if o.Mem != "" {
		parts = append(parts, "--mem="+o.Mem)
	}
	if o.Gpus != 0 {
		parts = append(parts, fmt.Sprintf("--gres=gpu:%d", o.Gpus))
	}
	if o.ArrayJobs != "" {
		parts = append(parts, "--array="+o.ArrayJobs)
	}
	if o.Account != "" {
		parts = append(parts, "--account="+o.Account)
	}
	if o.Email != "" {
		parts = append(parts, "--mail-user="+o.Email, "--mail-type=FAIL")
	}
	if env := listEnvString(o.Env); env != "" {
		parts = append(parts, "--export="+env)
	}
	parts = append(parts, `"`+o.Script+`"`)
	return strings.Join(parts, " "), nil
}
