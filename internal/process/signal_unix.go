//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the child in its own process group so that
// signals reach the whole tree it spawns.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate sends SIGTERM to pid's process group, falling back to pid alone
// when it does not lead a group.
func Terminate(pid int) error { return signalTree(pid, syscall.SIGTERM) }

// Kill sends SIGKILL to pid's process group, falling back to pid alone.
func Kill(pid int) error { return signalTree(pid, syscall.SIGKILL) }

func signalTree(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		return syscall.Kill(pid, sig)
	}
	return err
}
