package ptracebackend

import (
	"golang.org/x/sys/unix"

	"github.com/tracexec-go/tracexec/internal/abi"
)

// archRegsView picks the native or compat register view based on the
// tracee's actual Cs selector at the time regs was captured, rather than
// assuming Native — a stopped tracee can be a 32-bit (ia32) process whose
// raw syscall number would otherwise be misread against the native table.
func archRegsView(regs *unix.PtraceRegs) abi.Regs {
	if abi.BitModeOfCS(regs.Cs) == abi.Compat32 {
		return abi.AMD64CompatRegs{Raw: regs}
	}
	return abi.AMD64Regs{Raw: regs}
}

func currentArch() abi.Arch { return abi.ArchX86_64 }
