// Package proc is the process-control collaborator consumed by the
// cluster lifecycle manager. The harness only ever needs to start a node
// with a working directory and a list of string flags, stop it, and wait
// for it to exit; tests substitute an in-process stub controller.
package proc

import "context"

// StartSpec describes one node process to launch.
type StartSpec struct {
	// Binary is the node executable.
	Binary string

	// Args are the string flags passed verbatim to the process.
	Args []string

	// WorkDir is the node's working directory (datadir).
	WorkDir string

	// RPCAddr and PeerAddr are the listen addresses the harness assigned
	// to this node; the controller passes them to the process and reports
	// them back through the Process handle.
	RPCAddr  string
	PeerAddr string
}

// Process is a handle to one running node process.
type Process interface {
	// RPCAddr returns the URL of the node's remote-call endpoint.
	RPCAddr() string

	// PeerAddr returns the address other nodes use to peer with this one.
	PeerAddr() string

	// Stop terminates the process. It is idempotent and safe to call on a
	// process that already exited.
	Stop() error

	// Wait blocks until the process has exited.
	Wait() error
}

// Controller starts node processes.
type Controller interface {
	Start(ctx context.Context, spec StartSpec) (Process, error)
}
