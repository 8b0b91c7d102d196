//go:build amd64

package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestAMD64CompatRegsArgMapping(t *testing.T) {
	raw := &unix.PtraceRegs{
		Orig_rax: 11,
		Rbx:      1,
		Rcx:      2,
		Rdx:      3,
		Rsi:      4,
		Rdi:      5,
		Rbp:      6,
	}
	r := AMD64CompatRegs{Raw: raw}

	assert.Equal(t, Compat32, r.BitMode())
	assert.Equal(t, int64(11), r.SyscallNo())
	assert.Equal(t, uint64(1), r.Arg(0))
	assert.Equal(t, uint64(2), r.Arg(1))
	assert.Equal(t, uint64(3), r.Arg(2))
	assert.Equal(t, uint64(4), r.Arg(3))
	assert.Equal(t, uint64(5), r.Arg(4))
	assert.Equal(t, uint64(6), r.Arg(5))
	assert.Equal(t, uint64(0), r.Arg(6))
}

func TestAMD64RegsBitModeIsNative(t *testing.T) {
	r := AMD64Regs{Raw: &unix.PtraceRegs{}}
	assert.Equal(t, Native, r.BitMode())
}
