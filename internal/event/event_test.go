package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagsNames(t *testing.T) {
	f := PossibleTruncation | PidReuse
	assert.Equal(t, []string{"POSSIBLE_TRUNCATION", "PID_REUSE"}, f.Names())
	assert.True(t, f.Has(PossibleTruncation))
	assert.False(t, f.Has(TooManyItems))
}

func TestAllocatorMonotone(t *testing.T) {
	var a Allocator
	first := a.Next()
	second := a.Next()
	assert.Less(t, uint64(first), uint64(second))
}
