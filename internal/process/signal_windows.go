//go:build windows

package process

import "os"

// Windows has no process-group signals; only os.Kill is deliverable.
func signalGroup(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}
