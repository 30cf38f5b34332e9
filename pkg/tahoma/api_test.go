package tahoma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelValueFromState(t *testing.T) {
	tests := []struct {
		state   DeviceState
		channel Channel
		value   interface{}
	}{
		{DeviceState{Name: StateClosure, Value: float64(75)}, ChannelPrimary, 75},
		{DeviceState{Name: StateDeployment, Value: 40}, ChannelSecondary, 40},
		{DeviceState{Name: StateOrientation, Value: float64(15)}, ChannelTilt, 15},
		{DeviceState{Name: StateStatus, Value: "available"}, ChannelMotion, false},
		{DeviceState{Name: StateStatus, Value: "unavailable"}, ChannelMotion, true},
		{DeviceState{Name: StateRSSILevel, Value: "verylow"}, ChannelSignal, 0},
		{DeviceState{Name: StateRSSILevel, Value: "Excellent"}, ChannelSignal, 5},
		{DeviceState{Name: StateRSSILevel, Value: "garbled"}, ChannelSignal, 2},
		{DeviceState{Name: StateBattery, Value: "full"}, ChannelBattery, "full"},
	}

	for _, test := range tests {
		channel, value, ok := ChannelValueFromState(test.state)
		assert.True(t, ok, test.state.Name)
		assert.Equal(t, test.channel, channel)
		assert.Equal(t, test.value, value)
	}
}

func TestChannelValueFromStateUnmapped(t *testing.T) {
	_, _, ok := ChannelValueFromState(DeviceState{Name: "core:NameState", Value: "x"})
	assert.False(t, ok)
}

func TestExecutionStatusFromEvent(t *testing.T) {
	assert.Equal(t, ExecutionRegistered, executionStatusFromEvent("INITIALIZED"))
	assert.Equal(t, ExecutionRegistered, executionStatusFromEvent("QUEUED_GATEWAY_SIDE"))
	assert.Equal(t, ExecutionCompleted, executionStatusFromEvent("COMPLETED"))
	assert.Equal(t, ExecutionCompleted, executionStatusFromEvent("completed"))
	assert.Equal(t, ExecutionFailed, executionStatusFromEvent("FAILED"))
	assert.Equal(t, ExecutionFailed, executionStatusFromEvent("CMDCANCELLED"))
	assert.Equal(t, ExecutionInProgress, executionStatusFromEvent("IN_PROGRESS"))
	assert.Equal(t, ExecutionInProgress, executionStatusFromEvent("TRANSMITTED"))
}
