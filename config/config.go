// Package config describes configuration for the submission pipeline:
// cluster connection targets, dispatch pacing, status reading and logging.
package config

import (
	"fmt"
	"net/url"

	"github.com/pkimlab/jobsubmitter/logger"
)

// Supported connection string schemes. The scheme picks the submission
// command style for the cluster's batch system.
const (
	SchemeSGE   = "sge"
	SchemePBS   = "pbs"
	SchemeSlurm = "slurm"
	SchemeLocal = "local"
)

// Config describes configuration for the job submitter.
type Config struct {
	// Cluster selects the active entry in Clusters.
	Cluster string

	// Clusters is the registry of submission targets, keyed by name.
	Clusters map[string]ClusterTarget `validate:"dive"`

	Submit SubmitConfig
	Status StatusConfig
	Sync   SyncConfig
	Logger logger.Config
}

// ClusterTarget describes one batch cluster.
type ClusterTarget struct {
	// ConnectionString locates the cluster head node and picks the
	// submission style, e.g. "sge://jdoe@beagle.example.edu:22".
	// "local://" runs jobs on this machine instead.
	ConnectionString string

	// KeyFile is an optional path to the SSH private key for this
	// cluster. The running agent and ~/.ssh/id_rsa are always tried.
	KeyFile string

	// RemoteHome and RemoteScratch name the home and scratch roots on the
	// cluster filesystem. Environment variable references such as "$HOME"
	// are resolved on the remote side.
	RemoteHome    string
	RemoteScratch string

	// ConcurrentJobLimit caps how many jobs this account may have queued
	// on the cluster at once. Zero means no cap.
	ConcurrentJobLimit int `validate:"min=0"`
}

// SubmitConfig controls batch dispatch.
type SubmitConfig struct {
	// PoolSize is the number of concurrent dispatch workers.
	PoolSize int `validate:"min=0"`

	// DispatchInterval is the pause between handing consecutive jobs to
	// the worker pool. Head node sshd instances rate limit bursts.
	DispatchInterval Duration

	// RemoteSettleDelay is a short pause after each remote submission
	// command returns.
	RemoteSettleDelay Duration

	// Throttle controls the queue-depth admission check.
	Throttle ThrottleConfig
}

// ThrottleConfig controls how dispatch yields to a full cluster queue.
// Before every Step'th dispatch, while the account's queued job count plus
// Step would exceed the cluster's ConcurrentJobLimit, dispatch sleeps for
// Delay and polls again.
type ThrottleConfig struct {
	Step  int `validate:"min=0"`
	Delay Duration
}

// StatusConfig controls how job results are read back from log files.
type StatusConfig struct {
	// MaxStdoutSize caps how much of a job's stdout log is loaded into
	// a result. Zero means no limit.
	MaxStdoutSize Bytes
}

// SyncConfig controls rsync transfers between the local and remote job
// directories.
type SyncConfig struct {
	RsyncPath string

	// Tries is how many times a transfer is attempted before giving up.
	Tries int `validate:"min=0"`
}

// ActiveCluster returns the cluster entry selected by Cluster.
func (c Config) ActiveCluster() (ClusterTarget, error) {
	t, ok := c.Clusters[c.Cluster]
	if !ok {
		return ClusterTarget{}, &ConfigurationError{
			Msg: fmt.Sprintf("no cluster named %q in configuration", c.Cluster),
		}
	}
	return t, nil
}

// ConfigurationError reports invalid or incomplete configuration.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

// Connection is the parsed form of a cluster connection string.
type Connection struct {
	Scheme string
	User   string
	Host   string
	Port   string
}

// Addr returns the dialable "host:port" address of the head node.
func (c Connection) Addr() string {
	return c.Host + ":" + c.Port
}

// ParseConnection parses a connection string of the form
// "scheme://user@host[:port]". The port defaults to 22. The scheme must
// be one of sge, pbs, slurm or local; local connection strings need no
// user or host.
func ParseConnection(raw string) (Connection, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Connection{}, &ConfigurationError{
			Msg: fmt.Sprintf("can't parse connection string %q: %v", raw, err),
		}
	}

	c := Connection{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   u.Port(),
	}
	if u.User != nil {
		c.User = u.User.Username()
	}

	switch c.Scheme {
	case SchemeLocal:
		return c, nil
	case SchemeSGE, SchemePBS, SchemeSlurm:
	default:
		return Connection{}, &ConfigurationError{
			Msg: fmt.Sprintf("unsupported scheme %q in connection string %q", c.Scheme, raw),
		}
	}

	if c.User == "" {
		return Connection{}, &ConfigurationError{
			Msg: fmt.Sprintf("connection string %q is missing a user", raw),
		}
	}
	if c.Host == "" {
		return Connection{}, &ConfigurationError{
			Msg: fmt.Sprintf("connection string %q is missing a host", raw),
		}
	}
	if c.Port == "" {
		c.Port = "22"
	}
	return c, nil
}
