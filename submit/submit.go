// Package submit dispatches batches of jobs to a cluster scheduler over
// SSH, or to this machine for the "local" scheme, and reads their results
// back from the log files the jobs leave behind.
package submit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/logger"
	"github.com/pkimlab/jobsubmitter/remote"
	"github.com/pkimlab/jobsubmitter/scheduler"
	"github.com/pkimlab/jobsubmitter/status"
	"github.com/pkimlab/jobsubmitter/util"
)

// channel is the slice of remote.Channel the submitter uses.
type channel interface {
	Connect() error
	Close() error
	Exec(ctx context.Context, command string) (string, error)
	Poll(ctx context.Context, command string, accept func(string) bool) (string, error)
}

// Submitter drives one batch of jobs against one cluster target. It owns
// the SSH channel, lays out the job directories, dispatches the job table
// and reads results back. For the "local" scheme the channel and every
// remote path concern are bypassed and jobs run as children of this
// process.
type Submitter struct {
	conf   config.Config
	target config.ClusterTarget
	conn   config.Connection
	opts   jobs.Opts
	dir    string

	channel   channel
	formatter scheduler.Formatter
	queue     *Queue
	syncer    *Syncer
	reader    *status.Reader
	log       *logger.Logger

	remoteDir string
	connected bool

	// settle waits for directory changes to reach the cluster's NFS
	// view. Replaced in tests.
	settle func()
}

// New wires a Submitter from configuration. opts carries the
// scheduler-facing job options shared by the whole batch; dir is the local
// job directory where logs are written (local scheme) or mirrored to
// (remote schemes).
func New(conf config.Config, opts jobs.Opts, dir string) (*Submitter, error) {
	target, err := conf.ActiveCluster()
	if err != nil {
		return nil, err
	}
	conn, err := config.ParseConnection(target.ConnectionString)
	if err != nil {
		return nil, err
	}

	s := &Submitter{
		conf:   conf,
		target: target,
		conn:   conn,
		opts:   opts.Clone(),
		dir:    dir,
		reader: status.NewReader(dir, conf.Status),
		log: logger.Sub("submitter",
			"cluster", conf.Cluster, "batch", opts.JobID),
		settle: func() { time.Sleep(time.Second) },
	}

	if conn.Scheme == config.SchemeLocal {
		return s, nil
	}

	s.formatter, err = scheduler.NewFormatter(conn.Scheme)
	if err != nil {
		return nil, err
	}
	s.channel = remote.NewChannel(conn, target.KeyFile, nil)
	s.queue = NewQueue(s.channel)
	s.syncer = NewSyncer(conf.Sync, conn)
	return s, nil
}

// Connect prepares the session: the local job directory always, and for
// remote targets the SSH connection and the remote job directory. Remote
// paths are resolved once per session.
func (s *Submitter) Connect(ctx context.Context) error {
	if err := s.ensureLocalDir(); err != nil {
		return err
	}
	if s.conn.Scheme == config.SchemeLocal {
		s.connected = true
		return nil
	}

	if err := s.channel.Connect(); err != nil {
		return err
	}
	if err := s.resolveRemoteDir(ctx); err != nil {
		return err
	}
	s.connected = true
	s.log.Info("connected", "host", s.conn.Host, "remoteDir", s.remoteDir)
	return nil
}

// Close releases the SSH connection. In-flight dispatches should be
// awaited first; a closed channel fails them like any other dropped
// connection.
func (s *Submitter) Close() error {
	if s.channel == nil {
		return nil
	}
	return s.channel.Close()
}

// Submit validates the table and dispatches every record, in table order.
// A duplicate index or an illegal command anywhere in the table fails the
// whole batch before any network traffic. Per-job dispatch failures
// surface only on that job's future.
func (s *Submitter) Submit(ctx context.Context, table jobs.Table) ([]*Future, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	for _, rec := range table {
		if err := scheduler.CheckCommand(s.conn.Scheme, rec.Command); err != nil {
			return nil, err
		}
	}
	if s.conn.Scheme != config.SchemeLocal {
		if !s.connected {
			return nil, fmt.Errorf("submitter is not connected; call Connect before Submit")
		}
		if err := s.resolveWrapper(ctx); err != nil {
			return nil, err
		}
	}

	s.log.Info("dispatching job table", "jobs", len(table))
	orch := newOrchestrator(
		s.worker(), s.conf.Submit, s.target.ConcurrentJobLimit, s.countSubmitted, s.log)
	return orch.Dispatch(ctx, table)
}

// JobStatus reads back every record's state from the local job directory,
// pulling the latest logs down first for remote targets.
func (s *Submitter) JobStatus(ctx context.Context, table jobs.Table) ([]jobs.Result, error) {
	if s.conn.Scheme != config.SchemeLocal {
		if err := s.SyncLocal(ctx); err != nil {
			return nil, err
		}
	}
	return s.reader.ReadTable(table), nil
}

// NumSubmittedJobs returns how many jobs the connecting account has on the
// cluster, queued and running both. Local targets have no shared queue.
func (s *Submitter) NumSubmittedJobs(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	return s.queue.NumSubmitted(ctx)
}

// NumRunningJobs returns how many of the account's jobs are running.
func (s *Submitter) NumRunningJobs(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	return s.queue.NumRunning(ctx)
}

// SyncRemote pushes the local job directory to the cluster.
func (s *Submitter) SyncRemote(ctx context.Context) error {
	if s.syncer == nil {
		return nil
	}
	if s.remoteDir == "" {
		return fmt.Errorf("no remote job directory; call Connect first")
	}
	return s.syncer.Push(ctx, s.dir, s.remoteDir)
}

// SyncLocal pulls the cluster's job directory back to this machine.
func (s *Submitter) SyncLocal(ctx context.Context) error {
	if s.syncer == nil {
		return nil
	}
	if s.remoteDir == "" {
		return fmt.Errorf("no remote job directory; call Connect first")
	}
	return s.syncer.Pull(ctx, s.remoteDir, s.dir)
}

// SyncData reconciles a data directory with its counterpart next to the
// job directory on the cluster. Newer files win on either side, so staged
// inputs go up and job-produced data comes back in one call.
func (s *Submitter) SyncData(ctx context.Context, dataDir string) error {
	if s.syncer == nil {
		return nil
	}
	if s.remoteDir == "" {
		return fmt.Errorf("no remote job directory; call Connect first")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return err
	}
	remoteDir := path.Join(path.Dir(s.remoteDir), filepath.Base(abs))
	if err := s.syncer.Push(ctx, dataDir, remoteDir); err != nil {
		return err
	}
	return s.syncer.Pull(ctx, remoteDir, dataDir)
}

// Dir returns the local job directory.
func (s *Submitter) Dir() string {
	return s.dir
}

// RemoteDir returns the job directory on the cluster, empty until Connect
// and for local targets.
func (s *Submitter) RemoteDir() string {
	return s.remoteDir
}

// worker picks the dispatch strategy for the target scheme.
func (s *Submitter) worker() worker {
	if s.conn.Scheme == config.SchemeLocal {
		shell := s.opts.Shell
		if shell == "" {
			shell = "/bin/bash"
		}
		return &localWorker{dir: s.dir, shell: shell, log: s.log}
	}

	opts := s.opts.Clone()
	opts.WorkingDir = s.remoteDir
	return &remoteWorker{
		opts:      opts,
		formatter: s.formatter,
		channel:   s.channel,
		settle:    time.Duration(s.conf.Submit.RemoteSettleDelay),
		log:       s.log,
	}
}

// countSubmitted adapts the queue poll for admission control.
func (s *Submitter) countSubmitted(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	return s.queue.NumSubmitted(ctx)
}

func (s *Submitter) ensureLocalDir() error {
	if _, err := os.Stat(s.dir); err == nil {
		s.log.Warn("job directory already exists, reusing it", "dir", s.dir)
		return nil
	}
	return util.EnsureDir(s.dir)
}

// resolveRemoteDir expands the configured scratch root on the remote side
// and creates this batch's job directory under it.
func (s *Submitter) resolveRemoteDir(ctx context.Context) error {
	root := s.target.RemoteScratch
	if root == "" {
		root = s.target.RemoteHome
	}
	if root == "" {
		return &config.ConfigurationError{
			Msg: fmt.Sprintf("cluster %q has no remote scratch or home directory", s.conf.Cluster),
		}
	}

	root, err := s.resolvePath(ctx, root)
	if err != nil {
		return err
	}
	s.remoteDir = path.Join(root, s.opts.JobID)

	if _, err := s.channel.Exec(ctx, "mkdir -p "+shellquote.Join(s.remoteDir)); err != nil {
		return err
	}
	// Compute nodes see the new directory only after their NFS attribute
	// caches turn over.
	s.settle()
	return nil
}

// resolvePath expands environment variable references in a configured
// remote path by echoing the path through the remote shell.
func (s *Submitter) resolvePath(ctx context.Context, p string) (string, error) {
	if !strings.Contains(p, "$") {
		return p, nil
	}
	out, err := s.channel.Exec(ctx, fmt.Sprintf(`echo "%s"`, p))
	if err != nil {
		return "", err
	}
	resolved := strings.TrimSpace(out)
	if resolved == "" {
		return "", &config.ConfigurationError{
			Msg: fmt.Sprintf("remote path %q resolved to nothing", p),
		}
	}
	s.log.Debug("resolved remote path", "path", p, "resolved", resolved)
	return resolved, nil
}

// resolveWrapper locates the wrapper script on the remote PATH, once per
// session, unless the caller picked one already.
func (s *Submitter) resolveWrapper(ctx context.Context) error {
	if s.opts.Script != "" {
		return nil
	}
	out, err := s.channel.Exec(ctx, "which "+config.WrapperName)
	if err != nil {
		return err
	}
	script := strings.TrimSpace(out)
	if script == "" {
		return &config.ConfigurationError{
			Msg: fmt.Sprintf("%s was not found on the PATH of %s", config.WrapperName, s.conn.Host),
		}
	}
	s.opts.Script = script
	return nil
}
