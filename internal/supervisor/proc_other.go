//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setProcAttrs(cmd *exec.Cmd) {}

// No SIGTERM equivalent; terminate is immediate.
func terminate(p *os.Process) error { return p.Kill() }

func forceKill(p *os.Process) error { return p.Kill() }
