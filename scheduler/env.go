package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// envKeys returns the environment's keys in sorted order, so formatted
// commands come out the same on every run.
func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flagEnvString serializes an environment as one "-v" flag per variable,
// space separated, the way Grid Engine expects.
func flagEnvString(env map[string]string) string {
	parts := make([]string, 0, len(env))
	for _, k := range envKeys(env) {
		parts = append(parts, fmt.Sprintf(`-v %s="%s"`, k, env[k]))
	}
	return strings.Join(parts, " ")
}

// listEnvString serializes an environment as a comma-joined list of
// KEY="VALUE" pairs, the form shared by the PBS -v flag and the Slurm
// --export flag.
func listEnvString(env map[string]string) string {
	parts := make([]string, 0, len(env))
	for _, k := range envKeys(env) {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, env[k]))
	}
	return strings.Join(parts, ",")
}
