package proc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/chainharness/chainharness/pkg/logging"
)

// stopGrace is how long a node gets between SIGTERM and SIGKILL.
const stopGrace = 10 * time.Second

// LocalController spawns node binaries as local child processes.
type LocalController struct{}

var _ Controller = (*LocalController)(nil)

func (*LocalController) Start(ctx context.Context, spec StartSpec) (Process, error) {
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.WorkDir

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}

	logging.S().Infow("started node process", "binary", spec.Binary, "pid", cmd.Process.Pid, "workdir", spec.WorkDir)

	p := &localProcess{
		cmd:      cmd,
		rpcAddr:  spec.RPCAddr,
		peerAddr: spec.PeerAddr,
	}

	// Relay combined process output to the logger at debug level.
	go func() {
		combined := io.MultiReader(stdout, stderr)
		scanner := bufio.NewScanner(combined)
		for scanner.Scan() {
			logging.S().Debugw("node output", "pid", cmd.Process.Pid, "line", scanner.Text())
		}
	}()

	return p, nil
}

type localProcess struct {
	cmd      *exec.Cmd
	rpcAddr  string
	peerAddr string

	stopOnce sync.Once
	stopErr  error

	waitOnce sync.Once
	waitErr  error
}

func (p *localProcess) RPCAddr() string {
	return p.rpcAddr
}

func (p *localProcess) PeerAddr() string {
	return p.peerAddr
}

func (p *localProcess) Stop() error {
	p.stopOnce.Do(func() {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Already gone is not a failure; Stop must be callable after
			// the process exited on its own.
			p.waitDone()
			return
		}

		done := make(chan struct{})
		go func() {
			p.waitDone()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(stopGrace):
			logging.S().Warnw("node did not exit in time, killing", "pid", p.cmd.Process.Pid)
			p.stopErr = p.cmd.Process.Kill()
			p.waitDone()
		}
	})
	return p.stopErr
}

func (p *localProcess) Wait() error {
	p.waitDone()
	return p.waitErr
}

func (p *localProcess) waitDone() {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		// A non-zero exit after SIGTERM is the normal shutdown path.
		if err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				err = nil
			}
		}
		p.waitErr = err
	})
}
