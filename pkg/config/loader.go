package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chainharness/chainharness/pkg/logging"
)

const EnvHarnessHomeDir = "CHAINHARNESS_HOME"

// Load populates the configuration: defaults first, then the optional
// .env.toml under the harness home directory. Flag overrides are applied
// by the caller afterwards, before Validate.
func (c *Config) Load() error {
	c.applyDefaults()

	// calculate home directory; use env var, or fall back to
	// $HOME/chainharness otherwise.
	var home string
	if v, ok := os.LookupEnv(EnvHarnessHomeDir); ok {
		home = v
	} else {
		v, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to obtain user home dir: %w", err)
		}
		home = filepath.Join(v, "chainharness")
	}

	switch fi, err := os.Stat(home); {
	case os.IsNotExist(err):
		logging.S().Infof("creating home directory at %s", home)
		if err := os.MkdirAll(home, 0777); err != nil {
			return fmt.Errorf("failed to create home directory at %s: %w", home, err)
		}
	case err != nil:
		return err
	case !fi.IsDir():
		return fmt.Errorf("home path is not a directory: %s", home)
	}
	c.Home = home

	dirs := c.Dirs()
	for _, d := range []string{dirs.Runs(), dirs.Cache(), dirs.Records()} {
		if err := os.MkdirAll(d, 0777); err != nil {
			return fmt.Errorf("failed to check/create directory %s: %w", d, err)
		}
	}

	// parse the .env.toml file, if it exists.
	f := filepath.Join(home, ".env.toml")
	if _, err := os.Stat(f); err == nil {
		if _, err := toml.DecodeFile(f, c); err != nil {
			return fmt.Errorf("found .env.toml at %s, but failed to parse: %w", f, err)
		}
		logging.S().Infof(".env.toml loaded from: %s", f)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Nodes = 4
	c.NodeBinary = "chaind"
	c.BasePort = 18400
	c.BaseRPCPort = 18500
	c.InitBlocks = 25
	c.BootTimeout = 30 * time.Second
	c.SyncTimeout = 60 * time.Second
	c.PollInterval = 100 * time.Millisecond
	c.RPCTimeout = 10 * time.Second
}

// Default returns a validated configuration without touching the
// filesystem; tests use it with Home pointed at a temp dir.
func Default(home string) *Config {
	c := &Config{}
	c.applyDefaults()
	c.Home = home
	return c
}

// Directories resolves paths under the harness home dir.
type Directories struct {
	home string
}

func (c *Config) Dirs() Directories {
	return Directories{c.Home}
}

func (d Directories) Home() string {
	return d.home
}

// Runs holds the per-run working directories (one subdir per run ID).
func (d Directories) Runs() string {
	return filepath.Join(d.home, "runs")
}

// Cache holds the pre-mined chain cache copied into node workdirs.
func (d Directories) Cache() string {
	return filepath.Join(d.home, "cache")
}

// Records holds the leveldb run-record store.
func (d Directories) Records() string {
	return filepath.Join(d.home, "records")
}
