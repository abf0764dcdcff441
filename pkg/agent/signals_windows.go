//go:build windows

package agent

import "os"

// no SIGHUP on Windows; relaunches arrive through the control endpoint
func reloadSignals() []os.Signal {
	return nil
}
