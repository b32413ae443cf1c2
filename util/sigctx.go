package util

import (
	"context"
	"os"
	"os/signal"
)

// SignalContext returns a context that is canceled when any of the given
// signals is received. A second signal falls through to the default
// handler, so a stuck process can still be killed from the keyboard.
func SignalContext(ctx context.Context, sigs ...os.Signal) context.Context {
	sch := make(chan os.Signal, 1)
	sub, cancel := context.WithCancel(ctx)
	signal.Notify(sch, sigs...)

	go func() {
		select {
		case <-sub.Done():
		case <-sch:
			cancel()
		}
		signal.Stop(sch)
	}()

	return sub
}
