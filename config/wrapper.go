package config

import (
	"os"
	"path/filepath"

	"github.com/pkimlab/jobsubmitter/util"
)

// The wrapper script receives the following environment variables from
// the submission command:
//
// SYSTEM_COMMAND   the command to run
// STDOUT_LOG       path of the stdout log file
// STDERR_LOG       path of the stderr log file
//
// Stderr is written to $STDERR_LOG.tmp while the job runs and the file is
// renamed when the job finishes, so the presence of a plain .err file
// always means the job is over. The last line of the finished log is a
// "DONE!" or "ERROR!" sentinel picked by the job's exit code.

// WrapperName is the file name of the per-job wrapper script. Submission
// commands resolve it on the target's PATH with "which".
const WrapperName = "jobsubmitter.sh"

// WrapperScript is the bundled wrapper. Install it on a cluster with:
//
//	jobsubmitter wrapper > ~/bin/jobsubmitter.sh
//	chmod +x ~/bin/jobsubmitter.sh
var WrapperScript = `#!/bin/bash

set -u

TMP_LOG="${STDERR_LOG}.tmp"

eval "${SYSTEM_COMMAND}" 1>"${STDOUT_LOG}" 2>"${TMP_LOG}"
SYSTEM_COMMAND_RC=$?

if [ ${SYSTEM_COMMAND_RC} -eq 0 ]; then
    echo "DONE!" >>"${TMP_LOG}"
else
    echo "ERROR!" >>"${TMP_LOG}"
fi

mv "${TMP_LOG}" "${STDERR_LOG}"

exit ${SYSTEM_COMMAND_RC}
`

// WriteWrapperScript writes the bundled wrapper into dir, executable, and
// returns its path. The directory is created if needed.
func WriteWrapperScript(dir string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", err
	}
	p := filepath.Join(dir, WrapperName)
	if err := os.WriteFile(p, []byte(WrapperScript), 0755); err != nil {
		return "", err
	}
	return p, nil
}
