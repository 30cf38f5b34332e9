package tahoma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func shutterUnit() RemoteUnit {
	return RemoteUnit{
		RemoteId: "io://1/222",
		Address:  "sh222",
		Name:     "Kitchen shutter",
		Profile:  ProfilePrimaryOnly,
	}
}

func TestRegistryAddAndLookup(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	unit, err := registry.Unit("sh222")
	assert.NoError(t, err)
	assert.Equal(t, "io://1/222", unit.RemoteId)

	unit, ok := registry.UnitByRemoteId("io://1/222")
	assert.True(t, ok)
	assert.Equal(t, "sh222", unit.Address)

	_, err = registry.Unit("sh999")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestRegistryAddressCollisionFailsClosed(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	colliding := shutterUnit()
	colliding.RemoteId = "io://2/222"
	err := registry.AddUnit(colliding)
	assert.ErrorIs(t, err, ErrAddressCollision)

	// The original unit must be untouched.
	unit, err := registry.Unit("sh222")
	assert.NoError(t, err)
	assert.Equal(t, "io://1/222", unit.RemoteId)
}

func TestRegistryAddSameUnitTwiceIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	added := 0
	registry.SetHandler(RegistryHandler{
		UnitAdded: func(unit RemoteUnit) { added++ },
	})

	assert.NoError(t, registry.AddUnit(shutterUnit()))
	assert.NoError(t, registry.AddUnit(shutterUnit()))
	assert.Equal(t, 1, added)
}

func TestRegistryApplyStates(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	notified := 0
	registry.SetHandler(RegistryHandler{
		UnitStateChanged: func(unit RemoteUnit, changed []Channel) {
			notified++
			assert.Equal(t, []Channel{ChannelPrimary, ChannelMotion}, changed)
		},
	})

	err := registry.ApplyStates("io://1/222", []DeviceState{
		{Name: StateClosure, Value: 75},
		{Name: StateStatus, Value: "available"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, notified, "one event must fire exactly one notification")

	unit, _ := registry.Unit("sh222")
	assert.Equal(t, 75, unit.State[ChannelPrimary])
	assert.Equal(t, false, unit.State[ChannelMotion])
	assert.False(t, unit.LastUpdated.IsZero())
}

func TestRegistryApplyStatesLastWriteWins(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	for _, value := range []int{10, 50, 75} {
		err := registry.ApplyStates("io://1/222", []DeviceState{{Name: StateClosure, Value: value}})
		assert.NoError(t, err)
	}

	unit, _ := registry.Unit("sh222")
	assert.Equal(t, 75, unit.State[ChannelPrimary])
}

func TestRegistryApplyStatesUnknownChannelsIgnored(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	notified := 0
	registry.SetHandler(RegistryHandler{
		UnitStateChanged: func(unit RemoteUnit, changed []Channel) { notified++ },
	})

	err := registry.ApplyStates("io://1/222", []DeviceState{
		{Name: "core:ManufacturerSettingsState", Value: "x"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, notified, "no mapped channel, no notification")
}

func TestRegistryApplyStatesUnknownUnit(t *testing.T) {
	registry := NewRegistry()
	err := registry.ApplyStates("io://1/999", []DeviceState{{Name: StateClosure, Value: 1}})
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestRegistryRemoveUnit(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	removed := 0
	registry.SetHandler(RegistryHandler{
		UnitRemoved: func(unit RemoteUnit) {
			removed++
			assert.Equal(t, "sh222", unit.Address)
		},
	})

	assert.NoError(t, registry.RemoveUnit("sh222"))
	assert.Equal(t, 1, removed)
	_, err := registry.Unit("sh222")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, ok := registry.UnitByRemoteId("io://1/222")
	assert.False(t, ok)
}

func TestRegistryStateCopiesAreIsolated(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))
	assert.NoError(t, registry.ApplyStates("io://1/222", []DeviceState{{Name: StateClosure, Value: 50}}))

	unit, _ := registry.Unit("sh222")
	unit.State[ChannelPrimary] = 0

	fresh, _ := registry.Unit("sh222")
	assert.Equal(t, 50, fresh.State[ChannelPrimary])
}

func TestRegistryExecutions(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	registry.AddExecution("exec-1", "sh222")
	assert.True(t, registry.HasPendingExecution("sh222"))
	assert.False(t, registry.HasPendingExecution("sh999"))

	assert.True(t, registry.UpdateExecution("exec-1", ExecutionInProgress))
	assert.True(t, registry.HasPendingExecution("sh222"))

	assert.True(t, registry.UpdateExecution("exec-1", ExecutionCompleted))
	assert.False(t, registry.HasPendingExecution("sh222"))

	assert.False(t, registry.UpdateExecution("exec-unknown", ExecutionCompleted))
}

func TestRegistryCollectExecutions(t *testing.T) {
	registry := NewRegistry()
	registry.AddExecution("settled", "sh222")
	registry.AddExecution("pending", "sh222")
	assert.True(t, registry.UpdateExecution("settled", ExecutionFailed))

	removed := registry.CollectExecutions(1 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.Len(t, registry.Executions(), 1)

	// A zero ttl expires everything still pending.
	removed = registry.CollectExecutions(0)
	assert.Equal(t, 1, removed)
	assert.Empty(t, registry.Executions())
}
