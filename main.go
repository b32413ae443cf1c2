package main

import (
	"os"

	"github.com/pkimlab/jobsubmitter/cmd"
	"github.com/pkimlab/jobsubmitter/logger"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		logger.PrintSimpleError(err)
		os.Exit(1)
	}
}
