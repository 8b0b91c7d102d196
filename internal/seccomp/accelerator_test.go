package seccomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideDowngradesForUser(t *testing.T) {
	enabled, reason := Decide(ModeAuto, true)
	assert.False(t, enabled)
	assert.NotEmpty(t, reason)

	enabled, reason = Decide(ModeOn, true)
	assert.False(t, enabled)
	assert.NotEmpty(t, reason)
}

func TestDecideEnabledByDefault(t *testing.T) {
	enabled, reason := Decide(ModeAuto, false)
	assert.True(t, enabled)
	assert.Empty(t, reason)
}

func TestDecideOffAlwaysDisables(t *testing.T) {
	enabled, _ := Decide(ModeOff, false)
	assert.False(t, enabled)
}

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Mode
	}{{"auto", ModeAuto}, {"", ModeAuto}, {"on", ModeOn}, {"off", ModeOff}} {
		got, err := ParseMode(tc.in)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseMode("bogus")
	assert.Error(t, err)
}
