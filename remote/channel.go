// Package remote executes command strings on a cluster head node over one
// shared SSH connection, absorbing transient transport failures with
// retries.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/logger"
	"github.com/pkimlab/jobsubmitter/util"
)

// Channel owns one SSH connection to a cluster head node. Commands from
// concurrent workers multiplex sessions over the single connection.
type Channel struct {
	conn    config.Connection
	keyFile string
	env     map[string]string
	log     *logger.Logger

	retry *util.Retrier
	poll  *util.Retrier

	mtx    sync.Mutex
	client *ssh.Client

	// execOnce runs a single command attempt. Tests swap it out.
	execOnce func(ctx context.Context, command string) (string, error)
}

// NewChannel returns a Channel for the given connection. keyFile names a
// private key tried alongside the agent and default key; it may be empty.
// The env map is an environment overlay applied to every command; it may
// be nil.
func NewChannel(conn config.Connection, keyFile string, env map[string]string) *Channel {
	c := &Channel{
		conn:    conn,
		keyFile: keyFile,
		env:     env,
		log:     logger.Sub("remote", "host", conn.Host),
		poll:    util.NewLinearRetrier(5, time.Second),
	}
	c.retry = util.NewRetrier()
	c.retry.ShouldRetry = IsConnectivity
	c.retry.Notify = func(err error, d time.Duration) {
		c.log.Warn("remote command failed, retrying", "error", err, "wait", d)
	}
	c.execOnce = c.runSession
	return c
}

// Connect dials the head node. Calling it up front is optional since Exec
// connects on demand, and connecting twice is a no-op.
func (c *Channel) Connect() error {
	_, err := c.connect()
	return err
}

// Close releases the connection. It is safe to call at any time, on any
// exit path, any number of times.
func (c *Channel) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.log.Debug("connection closed", "addr", c.conn.Addr())
	return err
}

// Exec runs a command on the head node and returns its stdout. Transport
// failures are retried with exponential backoff up to the attempt ceiling;
// a command that writes to stderr fails immediately with *ExecutionError.
func (c *Channel) Exec(ctx context.Context, command string) (string, error) {
	var out string
	err := c.retry.Retry(ctx, func() error {
		var err error
		out, err = c.execOnce(ctx, command)
		return err
	})
	return out, err
}

// Poll runs a command whose output must satisfy accept, rerunning it up to
// five times with linearly growing pauses. Interactive scheduler CLIs under
// load routinely return empty or garbled output for a moment, so callers
// reading counts or listings should come through here rather than Exec.
func (c *Channel) Poll(ctx context.Context, command string, accept func(string) bool) (string, error) {
	var out string
	err := c.poll.Retry(ctx, func() error {
		var err error
		out, err = c.Exec(ctx, command)
		if err != nil {
			return err
		}
		if !accept(out) {
			return fmt.Errorf("unusable output from %q: %q", command, out)
		}
		return nil
	})
	return out, err
}

// connect returns the live client, dialing if there is none.
func (c *Channel) connect() (*ssh.Client, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	conf := &ssh.ClientConfig{
		User:            c.conn.User,
		Auth:            auths(c.keyFile),
		Timeout:         10 * time.Second,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	client, err := ssh.Dial("tcp", c.conn.Addr(), conf)
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	c.log.Debug("connected", "addr", c.conn.Addr(), "user", c.conn.User)
	c.client = client
	return client, nil
}

// drop closes a client that produced a transport error, but only while it
// is still the current one, so the next attempt redials.
func (c *Channel) drop(client *ssh.Client) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.client == client {
		client.Close()
		c.client = nil
	}
}

// runSession executes one command attempt on its own SSH session.
func (c *Channel) runSession(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client, err := c.connect()
	if err != nil {
		return "", err
	}

	sess, err := client.NewSession()
	if err != nil {
		// A dead session usually means the connection is gone.
		c.drop(client)
		return "", &ConnectivityError{Err: err}
	}
	defer sess.Close()

	// Scheduler CLIs behave differently without a terminal.
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm", 80, 40, modes); err != nil {
		c.drop(client)
		return "", &ConnectivityError{Err: err}
	}

	// Sshd silently drops variables missing from AcceptEnv, and commands
	// are expected to cope, so per-variable rejections are not errors.
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = sess.Setenv(k, c.env[k])
	}

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	err = sess.Run(command)

	if stderr.Len() > 0 {
		return "", &ExecutionError{Stderr: strings.TrimSpace(stderr.String())}
	}
	if err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			// The wrapper script owns job outcomes and head-node CLIs
			// misuse exit codes, so a clean-stderr nonzero exit passes.
			return stdout.String(), nil
		}
		c.drop(client)
		return "", &ConnectivityError{Err: err}
	}
	return stdout.String(), nil
}

// auths collects the usable SSH auth methods: the running agent first,
// then the configured key, then the default private key.
func auths(keyFile string) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if a := sshAgent(); a != nil {
		methods = append(methods, a)
	}
	if keyFile != "" {
		if k := publicKeyFile(keyFile); k != nil {
			methods = append(methods, k)
		}
	}
	if k := publicKeyFile(path.Join(os.Getenv("HOME"), ".ssh", "id_rsa")); k != nil {
		methods = append(methods, k)
	}
	return methods
}

func publicKeyFile(file string) ssh.AuthMethod {
	buffer, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(key)
}

func sshAgent() ssh.AuthMethod {
	sock, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
	if err != nil {
		return nil
	}
	return ssh.PublicKeysCallback(agent.NewClient(sock).Signers)
}
