//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttrs puts the child in its own process group so terminal signals
// do not reach it and the whole group can be terminated on shutdown.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err != nil {
		return p.Signal(syscall.SIGTERM)
	}
	return nil
}

func forceKill(p *os.Process) error {
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
	return p.Kill()
}
