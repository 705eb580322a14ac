package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mholt/archiver"

	"github.com/chainharness/chainharness/pkg/barrier"
	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/logging"
	"github.com/chainharness/chainharness/pkg/proc"
	"github.com/chainharness/chainharness/pkg/topology"
)

// State is the scenario run's lifecycle state.
type State int

const (
	StateInit State = iota
	StateChainInitialized
	StateNetworkUp
	StateRunning
	StateSucceeded
	StateFailed
	StateTornDown
)

func (s State) String() string {
	return [...]string{
		"init",
		"chain_initialized",
		"network_up",
		"running",
		"succeeded",
		"failed",
		"torn_down",
	}[s]
}

// Result is the outcome of one scenario run.
type Result struct {
	RunID    string
	Scenario string
	State    State
	Err      error
	Started  time.Time
	Finished time.Time
}

// Ok reports whether the run succeeded.
func (r *Result) Ok() bool {
	return r.Err == nil
}

// Runner drives a scenario through its lifecycle: boot, shared-state
// initialization, topology setup, body, and unconditional teardown.
// Every failure raised anywhere in that sequence is captured here and
// recorded as the run's failure cause; nothing skips teardown.
type Runner struct {
	cfg  *config.Config
	ctrl proc.Controller
	rep  *Reporter
}

func NewRunner(cfg *config.Config, ctrl proc.Controller) *Runner {
	return &Runner{cfg: cfg, ctrl: ctrl, rep: NewReporter()}
}

// Run executes one scenario to completion and reports its result. The
// passed params override the scenario's defaults.
func (r *Runner) Run(ctx context.Context, name string, hooks Hooks, defaults, params map[string]interface{}) *Result {
	res := &Result{
		Scenario: name,
		State:    StateInit,
		Started:  time.Now(),
	}
	defer func() { res.Finished = time.Now() }()

	r.rep.Start(name)

	fail := func(err error) *Result {
		res.State = StateFailed
		res.Err = err
		r.rep.Fail(name, err, time.Since(res.Started))
		return res
	}

	merged, err := mergeParams(defaults, params)
	if err != nil {
		return fail(err)
	}

	opts, err := hooks.Options(r.cfg, merged)
	if err != nil {
		return fail(err)
	}

	c, err := cluster.Boot(ctx, r.cfg, r.ctrl, hooks.NodeCount(r.cfg), opts)
	if err != nil {
		return fail(err)
	}
	res.RunID = c.RunID

	// From here on the cluster exists, and teardown is unconditional.
	res.Err = r.drive(ctx, c, hooks, merged, res)
	if res.Err == nil {
		res.State = StateSucceeded
	} else {
		res.State = StateFailed
	}

	if res.Err != nil && r.cfg.Collect {
		// Snapshot the workdirs before teardown can remove them.
		r.collect(c)
	}

	if terr := c.Teardown(ctx); terr != nil {
		// A teardown failure never masks the scenario's own failure, but
		// a clean run that failed to tear down is not a pass either.
		if res.Err == nil {
			res.Err = terr
			res.State = StateFailed
		} else {
			logging.S().Warnw("teardown reported errors", "run", c.RunID, "error", terr)
		}
	}

	failed := res.Err != nil
	res.State = StateTornDown

	if failed {
		r.rep.Fail(name, res.Err, time.Since(res.Started))
	} else {
		r.rep.Ok(name, time.Since(res.Started))
	}
	return res
}

// drive runs the lifecycle phases between boot and teardown, capturing
// panics from hook code.
func (r *Runner) drive(ctx context.Context, c *cluster.Cluster, hooks Hooks, params map[string]interface{}, res *Result) error {
	if err := c.InitializeSharedState(ctx); err != nil {
		return err
	}
	res.State = StateChainInitialized
	logging.S().Debugw("scenario state", "run", c.RunID, "state", res.State)

	topo := topology.NewController(c.Nodes())
	env := &Env{
		Config:   r.cfg,
		Cluster:  c,
		Topology: topo,
		Barrier:  barrier.New(r.cfg, topo),
		params:   params,
	}

	if err := capture(func() error { return hooks.SetupNetwork(ctx, env) }); err != nil {
		return err
	}
	res.State = StateNetworkUp
	logging.S().Debugw("scenario state", "run", c.RunID, "state", res.State)

	res.State = StateRunning
	return capture(func() error { return hooks.Run(ctx, env) })
}

func (r *Runner) collect(c *cluster.Cluster) {
	dst := filepath.Join(r.cfg.Dirs().Runs(), c.RunID+".tgz")
	if err := archiver.Archive([]string{c.Dir()}, dst); err != nil {
		logging.S().Warnw("failed to collect node workdirs", "run", c.RunID, "error", err)
		return
	}
	size := "unknown size"
	if fi, err := os.Stat(dst); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	logging.S().Infow("collected node workdirs", "run", c.RunID, "archive", dst, "size", size)
}

func capture(f func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scenario panicked: %v", rec)
		}
	}()
	return f()
}
