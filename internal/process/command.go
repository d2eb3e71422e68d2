package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrEmptyCommand is returned by BuildCmd when the argv is empty.
const ErrEmptyCommand = sentinel.Error("command must not be empty")

// CommandSpec describes how to launch a service binary.
type CommandSpec struct {
	Argv []string          // program and arguments, e.g. ["npm", "run", "dev"]
	Dir  string            // working directory; empty means the supervisor's
	Env  map[string]string // added on top of the supervisor's environment
}

// BuildCmd resolves the program on PATH and returns a ready-to-start command.
// The context is not attached to the command: stopping is always done through
// Stop so the SIGTERM grace period applies.
func BuildCmd(_ context.Context, spec CommandSpec) (*exec.Cmd, error) {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	path, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", spec.Argv[0], err)
	}

	cmd := exec.Command(path, spec.Argv[1:]...) //nolint:gosec // G204: argv comes from the services file
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	return cmd, nil
}

// mergeEnv appends extra as KEY=VALUE pairs in a stable order. Later entries
// win in exec, so extra overrides base.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
