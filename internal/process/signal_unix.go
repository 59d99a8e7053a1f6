//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// signalGroup delivers sig to the process group led by pid, falling back to
// the leader alone when the group is already gone.
func signalGroup(p *os.Process, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.Signal(sig)
	}
	err := syscall.Kill(-p.Pid, s)
	if errors.Is(err, syscall.ESRCH) {
		return p.Signal(sig)
	}
	return err
}
