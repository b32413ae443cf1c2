package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/remote"
	"github.com/pkimlab/jobsubmitter/submit"
	"github.com/pkimlab/jobsubmitter/util"
)

// runQueue prints how many of the connecting account's jobs sit on the
// cluster queue. Local targets have no queue, so the count is zero.
func runQueue(conf config.Config, running bool, w io.Writer) error {
	target, err := conf.ActiveCluster()
	if err != nil {
		return err
	}
	conn, err := config.ParseConnection(target.ConnectionString)
	if err != nil {
		return err
	}
	if conn.Scheme == config.SchemeLocal {
		fmt.Fprintln(w, 0)
		return nil
	}

	ch := remote.NewChannel(conn, target.KeyFile, nil)
	defer ch.Close()

	ctx := util.SignalContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	queue := submit.NewQueue(ch)

	var n int
	if running {
		n, err = queue.NumRunning(ctx)
	} else {
		n, err = queue.NumSubmitted(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, n)
	return nil
}
