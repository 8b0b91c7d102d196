//go:build arm64

package abi

import "golang.org/x/sys/unix"

// aarch64 syscall argument registers: the generic AArch64 Linux syscall
// ABI keeps the syscall number in x8 and arguments in x0..x5. There is no
// 32-bit compat execve/execveat pair registered here because aarch64's
// 32-bit (AArch32) compat mode uses a disjoint syscall table that this
// engine does not decode; SyscallNumbers(ArchAarch64, Compat32) reports
// not-ok.
func init() {
	register(ArchAarch64, Native, int(unix.SYS_EXECVE), int(unix.SYS_EXECVEAT))
}

// Aarch64Regs adapts unix.PtraceRegs (user_regs_struct on arm64) to the
// Regs interface.
type Aarch64Regs struct {
	Raw *unix.PtraceRegs
}

func (r Aarch64Regs) SyscallNo() int64   { return int64(r.Raw.Regs[8]) }
func (r Aarch64Regs) ReturnValue() int64 { return int64(r.Raw.Regs[0]) }

func (r Aarch64Regs) SetReturnValue(v int64) { r.Raw.Regs[0] = uint64(v) }
func (r Aarch64Regs) SetSyscallNo(nr int64)  { r.Raw.Regs[8] = uint64(nr) }

// BitMode always reports Native: this engine does not decode AArch32
// compat mode's disjoint syscall table (see the package doc above).
func (r Aarch64Regs) BitMode() BitMode { return Native }

func (r Aarch64Regs) Arg(i int) uint64 {
	if i < 0 || i > 5 {
		return 0
	}
	return r.Raw.Regs[i]
}
