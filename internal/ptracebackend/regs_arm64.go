package ptracebackend

import (
	"golang.org/x/sys/unix"

	"github.com/tracexec-go/tracexec/internal/abi"
)

func archRegsView(regs *unix.PtraceRegs) abi.Regs {
	return abi.Aarch64Regs{Raw: regs}
}

func currentArch() abi.Arch { return abi.ArchAarch64 }
