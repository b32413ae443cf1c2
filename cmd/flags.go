package cmd

import (
	"github.com/spf13/pflag"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
)

// globalFlags returns the flags shared by every command: cluster selection
// and logging.
func globalFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVar(&flagConf.Cluster, "cluster", flagConf.Cluster, "Cluster name from the config")
	f.StringVar(&flagConf.Logger.Level, "log-level", flagConf.Logger.Level, "Level of logging")
	f.StringVar(&flagConf.Logger.OutputFile, "log-path", flagConf.Logger.OutputFile, "File path to write logs to")

	return f
}

// resourceFlags returns the per-job resource request flags.
func resourceFlags(opts *jobs.Opts) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.IntVar(&opts.Nproc, "nproc", opts.Nproc, "Processors per job")
	f.StringVar(&opts.Walltime, "walltime", opts.Walltime, "Wall clock limit per job")
	f.StringVar(&opts.Mem, "mem", opts.Mem, "Memory request per job")
	f.StringVar(&opts.Pmem, "pmem", opts.Pmem, "Memory request per process")
	f.StringVar(&opts.Vmem, "vmem", opts.Vmem, "Virtual memory limit per job")
	f.StringVar(&opts.Pvmem, "pvmem", opts.Pvmem, "Virtual memory limit per process")
	f.IntVar(&opts.Gpus, "gpus", opts.Gpus, "GPUs per job")

	return f
}
