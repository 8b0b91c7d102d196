//go:build linux

package ptracebackend

import (
	"golang.org/x/sys/unix"

	"github.com/tracexec-go/tracexec/internal/abi"
)

// context is the ptrace-stop context for one tracee: its registers,
// adapted to the architecture-neutral abi.Regs view so the rest of the
// backend never branches on GOARCH.
type context struct {
	pid  int
	regs unix.PtraceRegs
}

func getContext(pid int) (*context, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return nil, err
	}
	return &context{pid: pid, regs: regs}, nil
}

func (c *context) setRegs() error {
	return unix.PtraceSetRegs(c.pid, &c.regs)
}

// regsView adapts the raw platform register struct to abi.Regs via the
// arch-specific constructor selected by GOARCH file suffix (regs_amd64.go,
// regs_arm64.go, regs_riscv64.go in this package).
func (c *context) regsView() abi.Regs {
	return archRegsView(&c.regs)
}
