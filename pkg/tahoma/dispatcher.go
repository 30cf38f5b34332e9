package tahoma

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Intent is a local control intent against a unit.
type Intent string

const (
	IntentOpen  Intent = "open"
	IntentClose Intent = "close"
	IntentStop  Intent = "stop"
	// IntentMy moves to the motor-stored favourite position.
	IntentMy           Intent = "my"
	IntentSetPrimary   Intent = "set_primary"
	IntentSetSecondary Intent = "set_secondary"
	IntentSetTilt      Intent = "set_tilt"
	IntentActivate     Intent = "activate"
)

// intentCommand is one row of the fixed intent to vendor command table.
type intentCommand struct {
	command string
	// channel is the control channel the intent requires; empty means any
	// non-scenario profile supports it.
	channel Channel
	// hasValue marks intents carrying a 0-100 parameter.
	hasValue bool
}

var intentTable = map[Intent]intentCommand{
	IntentOpen:         {command: "open"},
	IntentClose:        {command: "close"},
	IntentStop:         {command: "stop"},
	IntentMy:           {command: "my"},
	IntentSetPrimary:   {command: "setClosure", channel: ChannelPrimary, hasValue: true},
	IntentSetSecondary: {command: "setDeployment", channel: ChannelSecondary, hasValue: true},
	IntentSetTilt:      {command: "setOrientation", channel: ChannelTilt, hasValue: true},
}

// Dispatcher translates intents into gateway command invocations. It never
// mutates unit state; completion is observed through the event feed only.
type Dispatcher struct {
	client   Client
	registry Registry
}

func NewDispatcher(client Client, registry Registry) *Dispatcher {
	return &Dispatcher{
		client:   client,
		registry: registry,
	}
}

// Dispatch validates and submits an intent for the unit at the given local
// address. On acknowledge it records a PendingExecution; the returned
// record is a snapshot, its status is updated only by the event feed.
// A queue-full response is returned as ErrExecutionQueueFull and may be
// retried by the caller with backoff.
func (d *Dispatcher) Dispatch(address string, intent Intent, value int) (PendingExecution, error) {
	unit, err := d.registry.Unit(address)
	if err != nil {
		return PendingExecution{}, err
	}

	if intent == IntentActivate {
		return d.activateScenario(unit)
	}
	if unit.Profile == ProfileScenario {
		return PendingExecution{}, fmt.Errorf("%w: %s on scenario unit %s", ErrUnsupportedIntent, intent, address)
	}

	entry, ok := intentTable[intent]
	if !ok {
		return PendingExecution{}, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent)
	}
	if entry.channel != "" && !unit.Profile.SupportsChannel(entry.channel) {
		return PendingExecution{}, fmt.Errorf("%w: %s not supported by profile %s", ErrUnsupportedIntent, intent, unit.Profile)
	}

	command := Command{Name: entry.command}
	if entry.hasValue {
		if value < 0 || value > 100 {
			return PendingExecution{}, fmt.Errorf("%w: value %d out of range", ErrUnsupportedIntent, value)
		}
		command.Parameters = []interface{}{value}
	}

	execId, err := d.client.ExecuteCommand(unit.RemoteId, command)
	if err != nil {
		if errors.Is(err, ErrExecutionQueueFull) {
			log.Warn().Str("address", address).Msg("Gateway execution queue full, command not queued.")
		}
		return PendingExecution{}, err
	}
	return d.record(execId, unit, string(intent))
}

func (d *Dispatcher) activateScenario(unit RemoteUnit) (PendingExecution, error) {
	if unit.Profile != ProfileScenario {
		return PendingExecution{}, fmt.Errorf("%w: activate on non-scenario unit %s", ErrUnsupportedIntent, unit.Address)
	}
	execId, err := d.client.ExecuteScenario(unit.RemoteId)
	if err != nil {
		return PendingExecution{}, err
	}
	return d.record(execId, unit, string(IntentActivate))
}

func (d *Dispatcher) record(execId string, unit RemoteUnit, intent string) (PendingExecution, error) {
	d.registry.AddExecution(execId, unit.Address)
	log.Info().
		Str("address", unit.Address).
		Str("intent", intent).
		Str("execId", execId).
		Msg("Command dispatched.")
	return PendingExecution{
		ExecId:  execId,
		Address: unit.Address,
		Status:  ExecutionRegistered,
	}, nil
}
