package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExecSyscall(t *testing.T) {
	execve, execveat, ok := SyscallNumbers(ArchX86_64, Native)
	assert.True(t, ok)

	variant, ok := IsExecSyscall(ArchX86_64, Native, int64(execve))
	assert.True(t, ok)
	assert.Equal(t, Execve, variant)

	variant, ok = IsExecSyscall(ArchX86_64, Native, int64(execveat))
	assert.True(t, ok)
	assert.Equal(t, Execveat, variant)

	_, ok = IsExecSyscall(ArchX86_64, Native, 9999999)
	assert.False(t, ok)
}

func TestCompat32Unsupported(t *testing.T) {
	_, _, ok := SyscallNumbers(ArchRiscv64, Compat32)
	assert.False(t, ok)

	_, _, ok = SyscallNumbers(ArchAarch64, Compat32)
	assert.False(t, ok)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "execve", Execve.String())
	assert.Equal(t, "execveat", Execveat.String())
}

func TestIsExecSyscallCompat32AliasesNativeNumber(t *testing.T) {
	// ia32 execve (11) collides with x86-64's native munmap number: the
	// same raw value must resolve differently depending on which table
	// it's checked against.
	variant, ok := IsExecSyscall(ArchX86_64, Compat32, 11)
	assert.True(t, ok)
	assert.Equal(t, Execve, variant)

	_, ok = IsExecSyscall(ArchX86_64, Native, 11)
	assert.False(t, ok)
}

func TestBitModeOfCS(t *testing.T) {
	assert.Equal(t, Native, BitModeOfCS(0x33))
	assert.Equal(t, Compat32, BitModeOfCS(0x23))
}
