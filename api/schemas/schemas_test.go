package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceOrder(t *testing.T) {
	seq := Sequence()
	require.Len(t, seq, 9)
	assert.Equal(t, StepUploadingImages, seq[0])
	assert.Equal(t, StepPublishing, seq[len(seq)-1])
}

func TestSuffixFromEveryMidFlowStep(t *testing.T) {
	seq := Sequence()
	for i, step := range seq {
		suffix := SuffixFrom(step)
		require.Equal(t, seq[i:], suffix, "suffix from %s", step)
	}
}

func TestSuffixFromTerminalStepsIsNil(t *testing.T) {
	assert.Nil(t, SuffixFrom(StepIdle))
	assert.Nil(t, SuffixFrom(StepCompleted))
	assert.Nil(t, SuffixFrom(StepError))
	assert.Nil(t, SuffixFrom(StepID("bogus")))
}

func TestPositionIsMonotonic(t *testing.T) {
	prev := 0
	for _, step := range Sequence() {
		pos := Position(step)
		assert.Equal(t, prev+1, pos)
		prev = pos
	}
	assert.Zero(t, Position(StepCompleted))
}

func TestValid(t *testing.T) {
	assert.True(t, StepIdle.Valid())
	assert.True(t, StepFormFill.Valid())
	assert.True(t, StepError.Valid())
	assert.False(t, StepID("nope").Valid())
}

func TestCompletionFlags(t *testing.T) {
	flags := NewCompletionFlags()
	flags.Set("publishClicked", true)
	flags.SetCount("groupsSelected", 3)

	assert.True(t, flags.Bool("publishClicked"))
	assert.False(t, flags.Bool("missing"))
	assert.Equal(t, 3, flags.Count("groupsSelected"))

	snap := flags.Snapshot()
	snap["publishClicked"] = false
	assert.True(t, flags.Bool("publishClicked"), "snapshot must be a copy")
}
