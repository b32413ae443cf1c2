package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/submit"
	"github.com/pkimlab/jobsubmitter/util"
	"github.com/pkimlab/jobsubmitter/version"
)

// runSubmit reads the job table, dispatches every row to the configured
// cluster and waits for the dispatches to settle. The jobs themselves keep
// running on the cluster after it returns; "status" reports on them later.
func runSubmit(conf config.Config, opts jobs.Opts, dir, tablePath string, w io.Writer) error {
	table, err := jobs.ReadTableFile(tablePath)
	if err != nil {
		return err
	}

	log.Debug("starting submission", version.LogFields()...)

	sub, err := submit.New(conf, opts, dir)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx := util.SignalContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := sub.Connect(ctx); err != nil {
		return err
	}

	futures, err := sub.Submit(ctx, table)
	if werr := submit.WaitAll(ctx, futures); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "submitted %d jobs as %q to cluster %q\n", len(table), opts.JobID, conf.Cluster)
	fmt.Fprintf(w, "job directory: %s\n", dir)
	return nil
}
