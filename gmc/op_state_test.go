package gmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpState_String(t *testing.T) {
	tests := []struct {
		state    OpState
		expected string
	}{
		{ClosedState, "Closed"},
		{ClosingState, "Closing"},
		{OpeningState, "Opening"},
		{OpenedState, "Opened"},
		{OpState(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestAtomicOpState_Transitions(t *testing.T) {
	assert := assert.New(t)

	var st atomicOpState
	assert.Equal(ClosedState, st.Get())
	assert.False(st.ToOpened())
	assert.False(st.ToClosing())

	assert.True(st.ToOpening())
	assert.False(st.ToOpening())
	assert.True(st.ToOpened())
	assert.True(st.IsOpened())
	assert.Equal("Opened", st.String())

	assert.True(st.ToClosing())
	assert.False(st.ToClosing())
	st.ToClosed()
	assert.Equal(ClosedState, st.Get())

	assert.True(st.ToOpening())
	assert.True(st.ToClosing())
}
