// Package seccomp compiles the seccomp-BPF filter that accelerates the
// ptrace backend (spec.md §4.6): it traps only the exec-family syscalls to
// the tracer and silently allows everything else, collapsing per-syscall
// stops by orders of magnitude compared to tracing every syscall.
package seccomp

import "syscall"

// Filter is a BPF program in the format the kernel's
// prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, ...) expects.
type Filter []syscall.SockFilter

// SockFprog converts Filter into the struct sock_fprog the kernel syscall
// takes. The returned pointer aliases f's backing array, so f must outlive
// any use of the result.
func (f Filter) SockFprog() *syscall.SockFprog {
	if len(f) == 0 {
		return nil
	}
	raw := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(raw)),
		Filter: &raw[0],
	}
}
