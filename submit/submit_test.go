package submit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/scheduler"
)

func testConfig() config.Config {
	conf := config.DefaultConfig()
	conf.Submit.DispatchInterval = 0
	conf.Submit.RemoteSettleDelay = 0
	return conf
}

func pbsConfig() config.Config {
	conf := testConfig()
	conf.Cluster = "beagle"
	conf.Clusters["beagle"] = config.ClusterTarget{
		ConnectionString: "pbs://jdoe@beagle.example.org",
		RemoteScratch:    "$SCRATCH",
	}
	return conf
}

// fakeChannel scripts the SSH channel for facade tests.
type fakeChannel struct {
	exec     func(command string) (string, error)
	mtx      sync.Mutex
	commands []string
	closed   bool
}

func (f *fakeChannel) Connect() error { return nil }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func (f *fakeChannel) Exec(ctx context.Context, command string) (string, error) {
	f.mtx.Lock()
	f.commands = append(f.commands, command)
	f.mtx.Unlock()
	return f.exec(command)
}

func (f *fakeChannel) Poll(ctx context.Context, command string, accept func(string) bool) (string, error) {
	out, err := f.Exec(ctx, command)
	if err != nil {
		return "", err
	}
	if !accept(out) {
		return "", fmt.Errorf("output %q not accepted", out)
	}
	return out, nil
}

func (f *fakeChannel) history() []string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]string(nil), f.commands...)
}

func TestSubmitLocalEndToEnd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	s, err := New(testConfig(), jobs.DefaultOpts("e2e"), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	table := jobs.Table{{Index: "1", Command: "echo 'hello world'"}}
	futures, err := s.Submit(ctx, table)
	if err != nil {
		t.Fatal(err)
	}
	if err := WaitAll(ctx, futures); err != nil {
		t.Fatal(err)
	}

	results, err := s.JobStatus(ctx, table)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != jobs.Done {
		t.Fatalf("expected done, got %s", results[0].Status)
	}
	if results[0].StdoutData != "hello world" {
		t.Fatalf("expected stdout %q, got %q", "hello world", results[0].StdoutData)
	}
}

func TestSubmitLocalFailureSurfacesOnFuture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	s, err := New(testConfig(), jobs.DefaultOpts("fail"), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	table := jobs.Table{{Index: "1", Command: "echo nope 1>&2; exit 3"}}
	futures, err := s.Submit(ctx, table)
	if err != nil {
		t.Fatal(err)
	}

	err = WaitAll(ctx, futures)
	if err == nil || !strings.Contains(err.Error(), "job 1") {
		t.Fatalf("expected an error naming job 1, got %v", err)
	}

	results, err := s.JobStatus(ctx, table)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != jobs.Error {
		t.Fatalf("expected error status, got %s", results[0].Status)
	}
}

func TestSubmitCommaFailsBeforeConnect(t *testing.T) {
	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// No Connect: an illegal command must be rejected before anything
	// touches the network.
	futures, err := s.Submit(context.Background(), jobs.Table{
		{Index: "1", Command: "echo one"},
		{Index: "2", Command: "echo one,two"},
	})
	var invalid *scheduler.InvalidCommandError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected an InvalidCommandError, got %v", err)
	}
	if futures != nil {
		t.Fatal("expected no futures for a rejected batch")
	}
}

func TestSubmitDuplicateIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	s, err := New(testConfig(), jobs.DefaultOpts("dup"), dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = s.Submit(ctx, jobs.Table{
		{Index: "1", Command: "true"},
		{Index: "1", Command: "true"},
	})
	var dup *jobs.DuplicateIndexError
	if !errors.As(err, &dup) {
		t.Fatalf("expected a DuplicateIndexError, got %v", err)
	}
}

func TestSubmitRequiresConnect(t *testing.T) {
	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Submit(context.Background(), jobs.Table{{Index: "1", Command: "echo hi"}})
	if err == nil || !strings.Contains(err.Error(), "Connect") {
		t.Fatalf("expected a not-connected error, got %v", err)
	}
}

func TestNewRejectsUnknownCluster(t *testing.T) {
	conf := testConfig()
	conf.Cluster = "nope"

	_, err := New(conf, jobs.DefaultOpts("x"), t.TempDir())
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
}

func TestNewRejectsUnknownScheme(t *testing.T) {
	conf := testConfig()
	conf.Cluster = "lsfbox"
	conf.Clusters["lsfbox"] = config.ClusterTarget{ConnectionString: "lsf://jdoe@lsf.example.org"}

	_, err := New(conf, jobs.DefaultOpts("x"), t.TempDir())
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
}

func TestLocalQueueCountsAreZero(t *testing.T) {
	s, err := New(testConfig(), jobs.DefaultOpts("x"), filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.NumSubmittedJobs(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected 0 jobs on a local target, got %d, %v", n, err)
	}
}

func TestConnectResolvesRemotePaths(t *testing.T) {
	ch := &fakeChannel{exec: func(command string) (string, error) {
		switch {
		case command == `echo "$SCRATCH"`:
			return "/scratch/jdoe\n", nil
		case strings.HasPrefix(command, "mkdir -p "):
			return "", nil
		}
		return "", fmt.Errorf("unexpected command %q", command)
	}}

	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatal(err)
	}
	s.channel = ch
	s.queue = NewQueue(ch)
	s.settle = func() {}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.RemoteDir() != "/scratch/jdoe/sweep" {
		t.Fatalf("unexpected remote dir %q", s.RemoteDir())
	}

	history := ch.history()
	if history[1] != "mkdir -p /scratch/jdoe/sweep" {
		t.Fatalf("unexpected bootstrap commands %v", history)
	}
}

func TestSubmitFailsWithoutWrapper(t *testing.T) {
	ch := &fakeChannel{exec: func(command string) (string, error) {
		switch {
		case command == `echo "$SCRATCH"`:
			return "/scratch/jdoe\n", nil
		case strings.HasPrefix(command, "mkdir -p "):
			return "", nil
		case command == "which "+config.WrapperName:
			return "", nil
		}
		return "", fmt.Errorf("unexpected command %q", command)
	}}

	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatal(err)
	}
	s.channel = ch
	s.settle = func() {}

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = s.Submit(ctx, jobs.Table{{Index: "1", Command: "echo hi"}})
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), config.WrapperName) {
		t.Fatalf("expected the wrapper name in the error, got %v", err)
	}
}

func TestSubmitRemoteDispatches(t *testing.T) {
	ch := &fakeChannel{exec: func(command string) (string, error) {
		switch {
		case command == `echo "$SCRATCH"`:
			return "/scratch/jdoe\n", nil
		case strings.HasPrefix(command, "mkdir -p "):
			return "", nil
		case command == "which "+config.WrapperName:
			return "/usr/local/bin/jobsubmitter.sh\n", nil
		case strings.HasPrefix(command, "qsub "):
			return "12345.beagle\n", nil
		}
		return "", fmt.Errorf("unexpected command %q", command)
	}}

	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatal(err)
	}
	s.channel = ch
	s.queue = NewQueue(ch)
	s.settle = func() {}

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	futures, err := s.Submit(ctx, jobs.Table{{Index: "7", Command: "echo hi"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := futures[0].Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out != "12345.beagle" {
		t.Fatalf("expected the scheduler acknowledgment, got %q", out)
	}

	var qsub string
	for _, command := range ch.history() {
		if strings.HasPrefix(command, "qsub ") {
			qsub = command
		}
	}
	for _, want := range []string{
		"-N sweep",
		"-d /scratch/jdoe/sweep",
		`SYSTEM_COMMAND="echo hi"`,
		`STDOUT_LOG="/scratch/jdoe/sweep/7.out"`,
		`STDERR_LOG="/scratch/jdoe/sweep/7.err"`,
		`"/usr/local/bin/jobsubmitter.sh"`,
	} {
		if !strings.Contains(qsub, want) {
			t.Fatalf("expected %q in %q", want, qsub)
		}
	}
}

func TestSyncDataBothDirections(t *testing.T) {
	ch := &fakeChannel{exec: func(command string) (string, error) {
		switch {
		case command == `echo "$SCRATCH"`:
			return "/scratch/jdoe\n", nil
		case strings.HasPrefix(command, "mkdir -p "):
			return "", nil
		}
		return "", fmt.Errorf("unexpected command %q", command)
	}}

	s, err := New(pbsConfig(), jobs.DefaultOpts("sweep"), filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatal(err)
	}
	s.channel = ch
	s.settle = func() {}

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	var transfers [][]string
	s.syncer.runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		transfers = append(transfers, args[len(args)-2:])
		return nil, nil
	}

	dataDir := filepath.Join(t.TempDir(), "inputs")
	if err := s.SyncData(ctx, dataDir); err != nil {
		t.Fatal(err)
	}

	if len(transfers) != 2 {
		t.Fatalf("expected a push and a pull, got %v", transfers)
	}
	remote := "jdoe@beagle.example.org:/scratch/jdoe/inputs/"
	if transfers[0][0] != dataDir+"/" || transfers[0][1] != remote {
		t.Fatalf("unexpected push %v", transfers[0])
	}
	if transfers[1][0] != remote || transfers[1][1] != dataDir+"/" {
		t.Fatalf("unexpected pull %v", transfers[1])
	}
}
