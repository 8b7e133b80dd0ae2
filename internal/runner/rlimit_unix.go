//go:build unix

package runner

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// hardLimitSignals are the signals a process can die from when it runs into
// a POSIX resource limit rather than exiting on its own: SIGKILL/SIGSEGV for
// RLIMIT_AS (the kernel can't always deliver a catchable signal for an
// address-space violation), SIGXCPU/SIGKILL for RLIMIT_CPU once the hard
// limit is reached.
var hardLimitSignals = map[syscall.Signal]bool{
	syscall.SIGKILL: true,
	syscall.SIGSEGV: true,
	syscall.SIGXCPU: true,
	syscall.SIGABRT: true,
}

// withHardRlimit lowers the calling process's RLIMIT_AS to addressSpace
// bytes for the duration of fn, restoring the prior limit before returning.
// rlimits are a per-process (not per-thread) kernel property, so the window
// between the two Setrlimit calls is exactly when fn should fork+exec the
// child it wants constrained — the child inherits the lowered limit at fork
// time and keeps it across exec even after the parent restores its own.
// This is a last-resort hard rlimit backstop for run-os* worlds, sitting
// above whatever X07_MEM_CAP the emitted binary enforces on itself;
// it exists for run-os programs that could otherwise escape that
// self-accounting (raw syscalls via an ffi/unsafe capability grant).
func withHardRlimit(addressSpace uint64, cpuSeconds uint64, fn func() error) error {
	var asLim, cpuLim unix.Rlimit
	haveAS := addressSpace > 0
	haveCPU := cpuSeconds > 0

	if haveAS {
		if err := unix.Getrlimit(unix.RLIMIT_AS, &asLim); err != nil {
			return fn()
		}
		lowered := unix.Rlimit{Cur: addressSpace, Max: asLim.Max}
		if addressSpace > asLim.Max && asLim.Max != unix.RLIM_INFINITY {
			lowered.Cur = asLim.Max
		}
		if err := unix.Setrlimit(unix.RLIMIT_AS, &lowered); err == nil {
			defer unix.Setrlimit(unix.RLIMIT_AS, &asLim)
		}
	}
	if haveCPU {
		if err := unix.Getrlimit(unix.RLIMIT_CPU, &cpuLim); err == nil {
			lowered := unix.Rlimit{Cur: cpuSeconds, Max: cpuLim.Max}
			if cpuSeconds > cpuLim.Max && cpuLim.Max != unix.RLIM_INFINITY {
				lowered.Cur = cpuLim.Max
			}
			if err := unix.Setrlimit(unix.RLIMIT_CPU, &lowered); err == nil {
				defer unix.Setrlimit(unix.RLIMIT_CPU, &cpuLim)
			}
		}
	}
	return fn()
}

func isHardLimitSignal(sig syscall.Signal) bool {
	return hardLimitSignals[sig]
}
