package config

import (
	"time"

	"github.com/alecthomas/units"

	"github.com/pkimlab/jobsubmitter/logger"
)

// DefaultConfig returns configuration with default values.
func DefaultConfig() Config {
	return Config{
		Cluster: "local",
		Clusters: map[string]ClusterTarget{
			"local": {
				ConnectionString: "local://",
			},
		},
		Submit: SubmitConfig{
			PoolSize:          8,
			DispatchInterval:  Duration(50 * time.Millisecond),
			RemoteSettleDelay: Duration(20 * time.Millisecond),
			Throttle: ThrottleConfig{
				Step:  50,
				Delay: Duration(120 * time.Second),
			},
		},
		Status: StatusConfig{
			MaxStdoutSize: Bytes(16 * units.MiB),
		},
		Sync: SyncConfig{
			RsyncPath: "rsync",
			Tries:     3,
		},
		Logger: logger.DefaultConfig(),
	}
}
