package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"

	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/logging"
	"github.com/chainharness/chainharness/pkg/proc"
)

// WarmCache boots a throwaway cluster, mines the shared starting chain,
// tears it down, and stores the resulting datadirs under the cache dir.
// Later boots copy the cache instead of re-mining, the same trick the
// classic initialize_chain setup uses.
func WarmCache(ctx context.Context, cfg *config.Config, ctrl proc.Controller, n int) error {
	cacheDir := cfg.Dirs().Cache()
	if populated, err := cachePopulated(cacheDir, n); err != nil {
		return err
	} else if populated {
		logging.S().Debugw("chain cache already warm", "dir", cacheDir)
		return nil
	}

	logging.S().Infow("warming chain cache", "nodes", n)

	// Keep the workdirs of this throwaway run alive until we copied them.
	warmCfg := *cfg
	warmCfg.KeepDirs = true
	warmCfg.NoShutdown = false

	c, err := Boot(ctx, &warmCfg, ctrl, n, Options{})
	if err != nil {
		return err
	}
	if err := c.InitializeSharedState(ctx); err != nil {
		_ = c.Teardown(ctx)
		return err
	}
	if err := c.Teardown(ctx); err != nil {
		return err
	}

	for i, nd := range c.Nodes() {
		dst := filepath.Join(cacheDir, fmt.Sprintf("node%d", i))
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
		if err := cp.Copy(nd.WorkDir, dst); err != nil {
			return fmt.Errorf("failed to cache datadir of node %d: %w", i, err)
		}
	}

	return os.RemoveAll(c.Dir())
}

// DropCache removes any cached datadirs.
func DropCache(cfg *config.Config) error {
	return os.RemoveAll(cfg.Dirs().Cache())
}

func cachePopulated(dir string, n int) (bool, error) {
	for i := 0; i < n; i++ {
		fi, err := os.Stat(filepath.Join(dir, fmt.Sprintf("node%d", i)))
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !fi.IsDir() {
			return false, nil
		}
	}
	return true, nil
}
