//go:build !unix

package runner

import "syscall"

// withHardRlimit is a no-op outside POSIX: rlimits are a POSIX mechanism,
// so the only backstop on a non-unix host is the context.Context timeout
// Run already enforces.
func withHardRlimit(addressSpace uint64, cpuSeconds uint64, fn func() error) error {
	return fn()
}

func isHardLimitSignal(sig syscall.Signal) bool {
	return false
}
