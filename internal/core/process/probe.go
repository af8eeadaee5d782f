// Package process provides liveness probing of agent OS processes.
package process

import (
	"errors"
	"os"
	"syscall"
)

// Alive reports whether pid refers to a running process, using a
// non-destructive signal-0 probe. EPERM means the process exists but
// belongs to another privilege context, so it counts as alive; only a
// definitive "no such process" counts as dead.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
