//go:build windows

package runner

import (
	"os"
	"os/exec"
	"syscall"
)

func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: 0x08000000,
	}
}

// Windows has no SIGTERM for console children; the caller falls back to Kill.
func terminate(p *os.Process) error {
	return p.Signal(os.Interrupt)
}
