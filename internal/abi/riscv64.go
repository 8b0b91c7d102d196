//go:build riscv64

package abi

import "golang.org/x/sys/unix"

// riscv64 syscall argument registers: the syscall number lives in a7,
// arguments in a0..a5, and riscv64 has no 32-bit compat ABI at all (there
// never was a 32-bit riscv kernel syscall table sharing this one), so only
// Native is registered.
func init() {
	register(ArchRiscv64, Native, int(unix.SYS_EXECVE), int(unix.SYS_EXECVEAT))
}

// Riscv64Regs adapts unix.PtraceRegs to the Regs interface for riscv64
// tracees.
type Riscv64Regs struct {
	Raw *unix.PtraceRegs
}

func (r Riscv64Regs) SyscallNo() int64   { return int64(r.Raw.A7) }
func (r Riscv64Regs) ReturnValue() int64 { return int64(r.Raw.A0) }

func (r Riscv64Regs) SetReturnValue(v int64) { r.Raw.A0 = uint64(v) }
func (r Riscv64Regs) SetSyscallNo(nr int64)  { r.Raw.A7 = uint64(nr) }

// BitMode always reports Native: riscv64 has no 32-bit compat ABI.
func (r Riscv64Regs) BitMode() BitMode { return Native }

func (r Riscv64Regs) Arg(i int) uint64 {
	switch i {
	case 0:
		return r.Raw.A0
	case 1:
		return r.Raw.A1
	case 2:
		return r.Raw.A2
	case 3:
		return r.Raw.A3
	case 4:
		return r.Raw.A4
	case 5:
		return r.Raw.A5
	default:
		return 0
	}
}
