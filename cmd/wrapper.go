package cmd

import (
	"fmt"
	"io"

	"github.com/pkimlab/jobsubmitter/config"
)

// runWrapper prints the bundled job wrapper script, or installs it into
// the given directory. The script must sit on the PATH of the cluster
// accounts that run jobs.
func runWrapper(dir string, w io.Writer) error {
	if dir == "" {
		_, err := io.WriteString(w, config.WrapperScript)
		return err
	}
	path, err := config.WriteWrapperScript(dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, path)
	return nil
}
