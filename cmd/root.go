// Package cmd wires the jobsubmitter command line: flag parsing, config
// file loading and the subcommands for submitting, inspecting and syncing
// job batches.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/imdario/mergo"
	"github.com/spf13/cobra"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/examples"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/logger"
	"github.com/pkimlab/jobsubmitter/util"
	"github.com/pkimlab/jobsubmitter/version"
)

var log = logger.Sub("cmd")

// NewRootCommand returns the jobsubmitter command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

func newCommandHooks() (*cobra.Command, *hooks) {

	h := &hooks{
		Submit:  runSubmit,
		Status:  runStatus,
		Queue:   runQueue,
		Sync:    runSync,
		Wrapper: runWrapper,
	}

	var (
		configFile string
		flagConf   config.Config
		opts       = jobs.DefaultOpts("")
		tablePath  string
		dir        string
		envPairs   []string
	)

	// loadConfig layers the config file over the defaults, and the command
	// line flags over both.
	loadConfig := func() (config.Config, error) {
		conf := config.DefaultConfig()
		if err := config.ParseFile(configFile, &conf); err != nil {
			return conf, err
		}
		if err := mergo.MergeWithOverwrite(&conf, flagConf); err != nil {
			return conf, err
		}
		logger.Configure(conf.Logger)
		return conf, nil
	}

	// batchOpts finalizes the job options for a new batch: a generated
	// batch ID when none was given, plus any --env variables.
	batchOpts := func() (jobs.Opts, error) {
		o := opts.Clone()
		if o.JobID == "" {
			o.JobID = util.GenBatchID()
		}
		env, err := parseEnv(envPairs)
		if err != nil {
			return o, err
		}
		o.Env = env
		return o, nil
	}

	jobDir := func(jobID string) string {
		if dir != "" {
			return dir
		}
		return filepath.Join("jobs", jobID)
	}

	cmd := &cobra.Command{
		Use:           "jobsubmitter",
		Short:         "Submit batches of shell commands to an HPC cluster over SSH.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", configFile, "Config file")
	f.AddFlagSet(globalFlags(&flagConf))

	submit := &cobra.Command{
		Use:   "submit",
		Short: "Dispatch a table of jobs to the cluster.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if tablePath == "" {
				return fmt.Errorf("a job table is required, set one with --table")
			}
			o, err := batchOpts()
			if err != nil {
				return err
			}
			return h.Submit(conf, o, jobDir(o.JobID), tablePath, cmd.OutOrStdout())
		},
	}

	sf := submit.Flags()
	sf.StringVarP(&tablePath, "table", "f", tablePath, "Job table file, TSV with a command column")
	sf.StringVarP(&dir, "dir", "d", dir, "Local job directory (default jobs/<job-id>)")
	sf.StringVarP(&opts.JobID, "job-id", "n", opts.JobID, "Batch name on the scheduler (default generated)")
	sf.AddFlagSet(resourceFlags(&opts))
	sf.StringVar(&opts.ArrayJobs, "array", opts.ArrayJobs, `Array job expression, e.g. "1-100%5"`)
	sf.StringVar(&opts.Account, "account", opts.Account, "Account the jobs are billed to")
	sf.StringVar(&opts.Email, "email", opts.Email, "Address for scheduler failure mail")
	sf.StringVar(&opts.Shell, "shell", opts.Shell, "Shell interpreting the wrapper script")
	sf.StringVar(&opts.Script, "script", opts.Script, "Wrapper script path on the cluster (default found on the PATH)")
	sf.StringArrayVar(&envPairs, "env", envPairs, "KEY=VALUE exported to every job, repeatable")

	var (
		asJSON bool
		counts bool
	)

	status := &cobra.Command{
		Use:   "status",
		Short: "Report the state of every job in a table from its log files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if tablePath == "" {
				return fmt.Errorf("a job table is required, set one with --table")
			}
			if dir == "" && opts.JobID == "" {
				return fmt.Errorf("either --dir or --job-id is required")
			}
			return h.Status(conf, jobDir(opts.JobID), tablePath, asJSON, counts, cmd.OutOrStdout())
		},
	}

	stf := status.Flags()
	stf.StringVarP(&tablePath, "table", "f", tablePath, "Job table file, TSV with a command column")
	stf.StringVarP(&dir, "dir", "d", dir, "Local job directory (default jobs/<job-id>)")
	stf.StringVarP(&opts.JobID, "job-id", "n", opts.JobID, "Batch name the jobs were submitted under")
	stf.BoolVar(&asJSON, "json", asJSON, "Print results as JSON")
	stf.BoolVar(&counts, "counts", counts, "Print per-state totals only")

	var running bool
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Count your jobs on the cluster queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			return h.Queue(conf, running, cmd.OutOrStdout())
		},
	}
	queue.Flags().BoolVar(&running, "running", running, "Count only running jobs")

	var pull bool
	var dataDir string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the local job directory with the cluster.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.JobID == "" {
				return fmt.Errorf("--job-id is required")
			}
			return h.Sync(conf, opts.Clone(), jobDir(opts.JobID), dataDir, pull, cmd.OutOrStdout())
		},
	}

	syf := sync.Flags()
	syf.StringVarP(&dir, "dir", "d", dir, "Local job directory (default jobs/<job-id>)")
	syf.StringVarP(&opts.JobID, "job-id", "n", opts.JobID, "Batch name the jobs were submitted under")
	syf.BoolVar(&pull, "pull", pull, "Pull logs from the cluster instead of pushing inputs")
	syf.StringVar(&dataDir, "data", dataDir, "Also reconcile this data directory with the cluster")

	var wrapperDir string
	wrapper := &cobra.Command{
		Use:   "wrapper",
		Short: "Print the job wrapper script, or install it into a directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Wrapper(wrapperDir, cmd.OutOrStdout())
		},
	}
	wrapper.Flags().StringVarP(&wrapperDir, "dir", "d", wrapperDir, "Install the script into this directory")

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the version and build details.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	cmd.AddCommand(submit, status, queue, sync, wrapper, examplesCmd(), ver, completionCmd(cmd))
	return cmd, h
}

func examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "examples [name]",
		Aliases: []string{"example"},
		Short:   "Print example config and job table files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			byName := examples.Examples()
			if len(args) == 0 || args[0] == "list" {
				names := make([]string, 0, len(byName))
				for n := range byName {
					names = append(names, n)
				}
				sort.Strings(names)
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			data, ok := byName[args[0]]
			if !ok {
				return fmt.Errorf("no example by the name of %s", args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), data)
			return nil
		},
	}
}

type hooks struct {
	Submit  func(conf config.Config, opts jobs.Opts, dir, tablePath string, w io.Writer) error
	Status  func(conf config.Config, dir, tablePath string, asJSON, counts bool, w io.Writer) error
	Queue   func(conf config.Config, running bool, w io.Writer) error
	Sync    func(conf config.Config, opts jobs.Opts, dir, dataDir string, pull bool, w io.Writer) error
	Wrapper func(dir string, w io.Writer) error
}

// parseEnv parses repeated KEY=VALUE flag values into an environment map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("can't parse environment variable %q, expected KEY=VALUE", pair)
		}
		env[k] = v
	}
	return env, nil
}

func completionCmd(root *cobra.Command) *cobra.Command {
	completion := &cobra.Command{
		Use:   "completion",
		Short: "Generate shell completion code",
	}
	bash := &cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion code",
		Long: `This command generates bash CLI completion code.
Add "source <(jobsubmitter completion bash)" to your bash profile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.GenBashCompletion(os.Stdout)
		},
	}
	completion.AddCommand(bash)
	return completion
}
