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
)

// runSync mirrors the local job directory with the batch's directory on
// the cluster. Push sends inputs up before a submission is retried; pull
// brings logs down so "status" can read them. A data directory rides
// along next to the job directory when one is named.
func runSync(conf config.Config, opts jobs.Opts, dir, dataDir string, pull bool, w io.Writer) error {
	sub, err := submit.New(conf, opts, dir)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx := util.SignalContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := sub.Connect(ctx); err != nil {
		return err
	}
	if sub.RemoteDir() == "" {
		fmt.Fprintln(w, "local cluster target, nothing to sync")
		return nil
	}

	if pull {
		err = sub.SyncLocal(ctx)
	} else {
		err = sub.SyncRemote(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "synced %s with %s:%s\n", dir, conf.Cluster, sub.RemoteDir())

	if dataDir != "" {
		if err := sub.SyncData(ctx, dataDir); err != nil {
			return err
		}
		fmt.Fprintf(w, "synced data directory %s with cluster %q\n", dataDir, conf.Cluster)
	}
	return nil
}
