package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the immutable run configuration for the harness. It is
// constructed once, before any node process is started, and passed down to
// every component; nothing mutates process-wide state (environment, PATH)
// at startup.
type Config struct {
	// Home is the harness home directory; runs, caches and the record
	// store live underneath it.
	Home string `toml:"-" validate:"required"`

	// Nodes is the cluster size for the scenario run.
	Nodes int `toml:"nodes" validate:"min=1"`

	// NodeBinary is the node executable started for every regular node.
	NodeBinary string `toml:"node_binary" validate:"required"`

	// CandidateBinary and ReferenceBinary are used by differential
	// scenarios: node 0 runs the candidate, all others the reference.
	// They default to NodeBinary.
	CandidateBinary string `toml:"candidate_binary"`
	ReferenceBinary string `toml:"reference_binary"`

	// KeepDirs leaves node working directories behind after the run.
	KeepDirs bool `toml:"keep_dirs"`

	// NoShutdown skips stopping node processes at teardown. Implies
	// KeepDirs, since removing a live node's datadir is not sane.
	NoShutdown bool `toml:"no_shutdown"`

	// TraceRPC logs every remote call and its outcome at debug level.
	TraceRPC bool `toml:"trace_rpc"`

	// Collect archives the node working directories into a .tgz when the
	// run fails.
	Collect bool `toml:"collect"`

	// BasePort and BaseRPCPort are the first p2p / rpc ports handed out;
	// node i listens on BasePort+i and BaseRPCPort+i.
	BasePort    int `toml:"base_port" validate:"min=1024"`
	BaseRPCPort int `toml:"base_rpc_port" validate:"min=1024"`

	// InitBlocks is the number of blocks each node mines while the shared
	// starting chain is established.
	InitBlocks int `toml:"init_blocks" validate:"min=0"`

	// BootTimeout bounds how long a single node may take to become
	// reachable after its process starts.
	BootTimeout time.Duration `toml:"boot_timeout" validate:"gt=0"`

	// SyncTimeout bounds every convergence barrier.
	SyncTimeout time.Duration `toml:"sync_timeout" validate:"gt=0"`

	// PollInterval is the fixed delay between barrier observations.
	PollInterval time.Duration `toml:"poll_interval" validate:"gt=0"`

	// RPCTimeout bounds each individual remote call, so one unresponsive
	// node cannot hang the whole run.
	RPCTimeout time.Duration `toml:"rpc_timeout" validate:"gt=0"`
}

var configValidator = validator.New()

// Validate checks the configuration for structural sanity.
func (c *Config) Validate() error {
	return configValidator.Struct(c)
}

// Binary resolves the executable for node index i: differential scenarios
// set candidate/reference, everything else falls through to NodeBinary.
func (c *Config) Binary(i int, differential bool) string {
	if differential {
		if i == 0 && c.CandidateBinary != "" {
			return c.CandidateBinary
		}
		if i > 0 && c.ReferenceBinary != "" {
			return c.ReferenceBinary
		}
	}
	return c.NodeBinary
}
