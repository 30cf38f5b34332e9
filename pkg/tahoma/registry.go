package tahoma

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RemoteUnit is one controllable device or scenario exposed by the
// gateway, mirrored locally. State is only ever written by the event
// synchronizer; everything else reads.
type RemoteUnit struct {
	// RemoteId is the vendor-assigned identity: the deviceURL for devices,
	// the action group OID for scenarios.
	RemoteId    string
	Address     string
	Name        string
	Profile     CapabilityProfile
	State       map[Channel]interface{}
	LastUpdated time.Time
}

// PendingExecution tracks an outstanding command until the event feed
// reports it settled.
type PendingExecution struct {
	ExecId   string
	Address  string
	IssuedAt time.Time
	Status   ExecutionStatus
}

func (e PendingExecution) settled() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// RegistryHandler receives unit lifecycle notifications. Callbacks are
// invoked outside the registry lock and must not block for long.
type RegistryHandler struct {
	UnitAdded        func(unit RemoteUnit)
	UnitRemoved      func(unit RemoteUnit)
	UnitStateChanged func(unit RemoteUnit, changed []Channel)
}

// Registry is the authoritative local mirror of the gateway inventory. All
// mutation goes through it, serialized on an internal lock; reads return
// copies so callers never alias internal state.
type Registry interface {
	SetHandler(handler RegistryHandler)

	Units() []RemoteUnit
	Unit(address string) (RemoteUnit, error)
	UnitByRemoteId(remoteId string) (RemoteUnit, bool)

	// AddUnit commits a new unit. Fails with ErrAddressCollision when the
	// derived address is already owned by a different remote id.
	AddUnit(unit RemoteUnit) error
	// RenameUnit updates the display name without touching state.
	RenameUnit(address string, name string) error
	// RemoveUnit retires a unit and fires the removal notification.
	RemoveUnit(address string) error

	// ApplyStates writes the given gateway states onto the unit identified
	// by remote id and fires a single state-changed notification when at
	// least one channel was written.
	ApplyStates(remoteId string, states []DeviceState) error

	AddExecution(execId string, address string)
	UpdateExecution(execId string, status ExecutionStatus) bool
	HasPendingExecution(address string) bool
	Executions() []PendingExecution
	// CollectExecutions drops settled executions and those older than the
	// given ttl. Returns the number removed.
	CollectExecutions(ttl time.Duration) int
}

type registry struct {
	mutex sync.RWMutex

	units        map[string]*RemoteUnit // by local address
	remoteLookup map[string]string      // remote id -> local address
	executions   map[string]*PendingExecution

	handler RegistryHandler
}

func NewRegistry() Registry {
	return &registry{
		units:        map[string]*RemoteUnit{},
		remoteLookup: map[string]string{},
		executions:   map[string]*PendingExecution{},
	}
}

func (r *registry) SetHandler(handler RegistryHandler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handler = handler
}

func (r *registry) Units() []RemoteUnit {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	units := make([]RemoteUnit, 0, len(r.units))
	for _, unit := range r.units {
		units = append(units, copyUnit(unit))
	}
	return units
}

func (r *registry) Unit(address string) (RemoteUnit, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	unit, ok := r.units[address]
	if !ok {
		return RemoteUnit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, address)
	}
	return copyUnit(unit), nil
}

func (r *registry) UnitByRemoteId(remoteId string) (RemoteUnit, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	address, ok := r.remoteLookup[remoteId]
	if !ok {
		return RemoteUnit{}, false
	}
	return copyUnit(r.units[address]), true
}

func (r *registry) AddUnit(unit RemoteUnit) error {
	r.mutex.Lock()
	existing, ok := r.units[unit.Address]
	if ok && existing.RemoteId != unit.RemoteId {
		r.mutex.Unlock()
		return fmt.Errorf("%w: address %s derived for both %s and %s",
			ErrAddressCollision, unit.Address, existing.RemoteId, unit.RemoteId)
	}
	if ok {
		// Same remote id, nothing to add.
		r.mutex.Unlock()
		return nil
	}
	if unit.State == nil {
		unit.State = map[Channel]interface{}{}
	}
	stored := unit
	r.units[unit.Address] = &stored
	r.remoteLookup[unit.RemoteId] = unit.Address
	handler := r.handler
	r.mutex.Unlock()

	log.Info().
		Str("address", unit.Address).
		Str("remoteId", unit.RemoteId).
		Str("profile", string(unit.Profile)).
		Msg("Unit added to registry.")
	if handler.UnitAdded != nil {
		handler.UnitAdded(unit)
	}
	return nil
}

func (r *registry) RenameUnit(address string, name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	unit, ok := r.units[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, address)
	}
	unit.Name = name
	return nil
}

func (r *registry) RemoveUnit(address string) error {
	r.mutex.Lock()
	unit, ok := r.units[address]
	if !ok {
		r.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownUnit, address)
	}
	removed := copyUnit(unit)
	delete(r.units, address)
	delete(r.remoteLookup, unit.RemoteId)
	handler := r.handler
	r.mutex.Unlock()

	log.Info().Str("address", address).Msg("Unit retired from registry.")
	if handler.UnitRemoved != nil {
		handler.UnitRemoved(removed)
	}
	return nil
}

func (r *registry) ApplyStates(remoteId string, states []DeviceState) error {
	r.mutex.Lock()
	address, ok := r.remoteLookup[remoteId]
	if !ok {
		r.mutex.Unlock()
		return fmt.Errorf("%w: remote id %s", ErrUnknownUnit, remoteId)
	}
	unit := r.units[address]

	var changed []Channel
	for _, state := range states {
		channel, value, ok := ChannelValueFromState(state)
		if !ok {
			continue
		}
		unit.State[channel] = value
		changed = append(changed, channel)
	}
	if len(changed) == 0 {
		r.mutex.Unlock()
		return nil
	}
	unit.LastUpdated = time.Now()
	updated := copyUnit(unit)
	handler := r.handler
	r.mutex.Unlock()

	if handler.UnitStateChanged != nil {
		handler.UnitStateChanged(updated, changed)
	}
	return nil
}

func (r *registry) AddExecution(execId string, address string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.executions[execId] = &PendingExecution{
		ExecId:   execId,
		Address:  address,
		IssuedAt: time.Now(),
		Status:   ExecutionRegistered,
	}
}

func (r *registry) UpdateExecution(execId string, status ExecutionStatus) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	execution, ok := r.executions[execId]
	if !ok {
		return false
	}
	execution.Status = status
	return true
}

func (r *registry) HasPendingExecution(address string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, execution := range r.executions {
		if execution.Address == address && !execution.settled() {
			return true
		}
	}
	return false
}

func (r *registry) Executions() []PendingExecution {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	executions := make([]PendingExecution, 0, len(r.executions))
	for _, execution := range r.executions {
		executions = append(executions, *execution)
	}
	return executions
}

func (r *registry) CollectExecutions(ttl time.Duration) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	deadline := time.Now().Add(-ttl)
	removed := 0
	for execId, execution := range r.executions {
		if execution.settled() || execution.IssuedAt.Before(deadline) {
			delete(r.executions, execId)
			removed++
		}
	}
	return removed
}

func copyUnit(unit *RemoteUnit) RemoteUnit {
	copied := *unit
	copied.State = make(map[Channel]interface{}, len(unit.State))
	for channel, value := range unit.State {
		copied.State[channel] = value
	}
	return copied
}
