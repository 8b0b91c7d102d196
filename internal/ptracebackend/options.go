//go:build linux

package ptracebackend

import "golang.org/x/sys/unix"

// traceOptions builds the PTRACE_SETOPTIONS bitmask for a tracee. Fork,
// vfork, and clone events are always requested so the process table can
// track the whole tree; seccomp-stop is requested only when the
// accelerator is active for this session, and TRACEEXEC/TRACEEXIT let the
// loop distinguish "exec succeeded" from "exec failed, syscall returned"
// without single-stepping every instruction.
func traceOptions(seccompEnabled bool) int {
	opts := unix.PTRACE_O_TRACEEXEC |
		unix.PTRACE_O_TRACEEXIT |
		unix.PTRACE_O_TRACEFORK |
		unix.PTRACE_O_TRACEVFORK |
		unix.PTRACE_O_TRACECLONE |
		unix.PTRACE_O_TRACESYSGOOD |
		unix.PTRACE_O_EXITKILL
	if seccompEnabled {
		opts |= unix.PTRACE_O_TRACESECCOMP
	}
	return opts
}

func setOptions(pid int, opts int) error {
	return unix.PtraceSetOptions(pid, opts)
}
