//go:build linux

package ptracebackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestTraceOptionsWithoutSeccomp(t *testing.T) {
	opts := traceOptions(false)
	assert.NotZero(t, opts&unix.PTRACE_O_TRACEEXEC)
	assert.NotZero(t, opts&unix.PTRACE_O_TRACECLONE)
	assert.Zero(t, opts&unix.PTRACE_O_TRACESECCOMP)
}

func TestTraceOptionsWithSeccomp(t *testing.T) {
	opts := traceOptions(true)
	assert.NotZero(t, opts&unix.PTRACE_O_TRACESECCOMP)
}
