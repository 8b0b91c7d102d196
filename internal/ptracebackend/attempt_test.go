//go:build linux

package ptracebackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEnv(t *testing.T) {
	ev := splitEnv("PATH=/usr/bin:/bin")
	assert.Equal(t, "PATH", ev.Key)
	assert.Equal(t, "/usr/bin:/bin", ev.Value)
}

func TestSplitEnvNoEquals(t *testing.T) {
	ev := splitEnv("MALFORMED")
	assert.Equal(t, "MALFORMED", ev.Key)
	assert.Equal(t, "", ev.Value)
}

func TestSplitEnvEmptyValue(t *testing.T) {
	ev := splitEnv("EMPTY=")
	assert.Equal(t, "EMPTY", ev.Key)
	assert.Equal(t, "", ev.Value)
}
