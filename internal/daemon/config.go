package daemon

import (
	"path/filepath"
	"time"

	"ragrep/internal/errkit"
)

// SocketFileName and PIDFileName are the persisted
// artifact names spec.md §6.1 fixes under <project>/.data/.
const (
	SocketFileName = "server.sock"
	PIDFileName    = "server.pid"
)

// Config holds the per-project daemon runtime paths and timeouts. Unlike
// the teacher's multi-project daemon, spec.md describes one server
// process per project: there is no project LRU or auto-start policy
// here, only the artifact locations and the timeouts spec.md §5 and §6.4
// name.
type Config struct {
	// SocketPath is this project's Unix-domain socket, <dataDir>/server.sock.
	SocketPath string

	// PIDPath is this project's PID file, <dataDir>/server.pid.
	PIDPath string

	// Timeout bounds a client's connect and round-trip wait, per spec.md
	// §5's 5s connect timeout.
	Timeout time.Duration

	// ShutdownGracePeriod is how long the server awaits in-flight
	// handlers during shutdown before proceeding, spec.md §4.7's
	// drain_timeout_ms (default 5000).
	ShutdownGracePeriod time.Duration
}

// PathsFor builds the daemon Config for a project whose persisted state
// lives under dataDir (<project>/.data).
func PathsFor(dataDir string) Config {
	return Config{
		SocketPath:          filepath.Join(dataDir, SocketFileName),
		PIDPath:             filepath.Join(dataDir, PIDFileName),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 5 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return errkit.New(errkit.InvalidConfig, "socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return errkit.New(errkit.InvalidConfig, "PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return errkit.New(errkit.InvalidConfig, "timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return errkit.New(errkit.InvalidConfig, "shutdown grace period must be positive")
	}
	return nil
}
