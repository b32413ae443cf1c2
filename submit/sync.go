package submit

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/logger"
	"github.com/pkimlab/jobsubmitter/util"
)

// Syncer mirrors directories between this machine and the cluster with
// rsync. Transfers retry, so a dropped connection costs one sync round,
// not a batch.
type Syncer struct {
	conf  config.SyncConfig
	conn  config.Connection
	retry *util.Retrier
	log   *logger.Logger

	// runCommand is replaced in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewSyncer returns a Syncer transferring over conn.
func NewSyncer(conf config.SyncConfig, conn config.Connection) *Syncer {
	log := logger.Sub("sync", "host", conn.Host)

	retry := util.NewRetrier()
	retry.MaxTries = conf.Tries
	retry.Notify = func(err error, d time.Duration) {
		log.Warn("transfer failed, retrying", "error", err, "in", d)
	}

	return &Syncer{
		conf:  conf,
		conn:  conn,
		retry: retry,
		log:   log,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Push mirrors the local directory's contents into the remote one.
func (s *Syncer) Push(ctx context.Context, localDir, remoteDir string) error {
	return s.run(ctx, localDir+"/", s.remoteSpec(remoteDir))
}

// Pull mirrors the remote directory's contents into the local one.
func (s *Syncer) Pull(ctx context.Context, remoteDir, localDir string) error {
	return s.run(ctx, s.remoteSpec(remoteDir), localDir+"/")
}

// remoteSpec builds an rsync remote location. The path is quoted for the
// remote shell, which parses its side of the location itself.
func (s *Syncer) remoteSpec(dir string) string {
	return fmt.Sprintf("%s@%s:%s/", s.conn.User, s.conn.Host, shellquote.Join(dir))
}

func (s *Syncer) run(ctx context.Context, src, dst string) error {
	// In-flight ".tmp" logs are skipped so a half-written log never
	// shadows a renamed one. --update keeps an older copy from clobbering
	// a newer log on either side.
	args := []string{
		"-az", "--update", "--exclude", "*.tmp",
		"-e", "ssh -p " + s.conn.Port,
		src, dst,
	}

	return s.retry.Retry(ctx, func() error {
		s.log.Debug("rsync", "src", src, "dst", dst)
		out, err := s.runCommand(ctx, s.conf.RsyncPath, args...)
		if err != nil {
			return fmt.Errorf("rsync %s to %s: %v: %s", src, dst, err, out)
		}
		return nil
	})
}
