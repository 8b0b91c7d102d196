//go:build amd64

package abi

import "golang.org/x/sys/unix"

// x86-64 syscall argument registers, per the kernel's syscall ABI:
//
//	nr   -> orig_rax
//	arg0 -> rdi
//	arg1 -> rsi
//	arg2 -> rdx
//	arg3 -> r10   (not rcx: rcx is clobbered by the syscall instruction)
//	arg4 -> r8
//	arg5 -> r9
func init() {
	register(ArchX86_64, Native, int(unix.SYS_EXECVE), int(unix.SYS_EXECVEAT))
	register(ArchX86_64, Compat32, 11 /* ia32 execve */, 358 /* ia32 execveat */)
}

// compat32CS is the "Cs" (code segment selector) register value the
// kernel loads for a tracee executing 32-bit (ia32) compat code on an
// x86-64 host, whether entered via the int $0x80 gate or the compat
// syscall entry point; 0x33 is the native 64-bit selector. The same check
// is how strace and similar tools distinguish the two.
const compat32CS = 0x23

// BitModeOfCS reports the BitMode implied by a captured Cs register.
func BitModeOfCS(cs uint64) BitMode {
	if cs == compat32CS {
		return Compat32
	}
	return Native
}

// AMD64Regs adapts unix.PtraceRegs to the Regs interface for a tracee
// executing native x86-64 code.
type AMD64Regs struct {
	Raw *unix.PtraceRegs
}

func (r AMD64Regs) SyscallNo() int64     { return int64(r.Raw.Orig_rax) }
func (r AMD64Regs) ReturnValue() int64   { return int64(r.Raw.Rax) }
func (r AMD64Regs) SetReturnValue(v int64) { r.Raw.Rax = uint64(v) }
func (r AMD64Regs) SetSyscallNo(nr int64)  { r.Raw.Orig_rax = uint64(nr) }
func (r AMD64Regs) BitMode() BitMode       { return Native }

func (r AMD64Regs) Arg(i int) uint64 {
	switch i {
	case 0:
		return r.Raw.Rdi
	case 1:
		return r.Raw.Rsi
	case 2:
		return r.Raw.Rdx
	case 3:
		return r.Raw.R10
	case 4:
		return r.Raw.R8
	case 5:
		return r.Raw.R9
	default:
		return 0
	}
}

// AMD64CompatRegs adapts unix.PtraceRegs to the Regs interface for a
// tracee executing a 32-bit (ia32) compat-mode syscall. The kernel's
// compat syscall entry path (arch/x86/entry/entry_64_compat.S) maps all
// six arguments onto ebx/ecx/edx/esi/edi/ebp regardless of whether the
// tracee entered via int $0x80 or the compat syscall gate, a different
// convention from AMD64Regs' native rdi/rsi/rdx/r10/r8/r9. Values are
// truncated to 32 bits since the tracee itself only ever wrote 32 bits
// of them.
type AMD64CompatRegs struct {
	Raw *unix.PtraceRegs
}

func (r AMD64CompatRegs) SyscallNo() int64 { return int64(uint32(r.Raw.Orig_rax)) }
func (r AMD64CompatRegs) ReturnValue() int64 {
	return int64(int32(uint32(r.Raw.Rax)))
}
func (r AMD64CompatRegs) SetReturnValue(v int64) {
	r.Raw.Rax = uint64(uint32(int32(v)))
}
func (r AMD64CompatRegs) SetSyscallNo(nr int64) { r.Raw.Orig_rax = uint64(uint32(nr)) }
func (r AMD64CompatRegs) BitMode() BitMode      { return Compat32 }

func (r AMD64CompatRegs) Arg(i int) uint64 {
	switch i {
	case 0:
		return uint64(uint32(r.Raw.Rbx))
	case 1:
		return uint64(uint32(r.Raw.Rcx))
	case 2:
		return uint64(uint32(r.Raw.Rdx))
	case 3:
		return uint64(uint32(r.Raw.Rsi))
	case 4:
		return uint64(uint32(r.Raw.Rdi))
	case 5:
		return uint64(uint32(r.Raw.Rbp))
	default:
		return 0
	}
}
