package tahoma

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Discovery reconciles the gateway inventory against the local registry.
// Runs are serialized; re-running with an unchanged inventory is a no-op.
type Discovery struct {
	client   Client
	registry Registry

	running sync.Mutex
}

func NewDiscovery(client Client, registry Registry) *Discovery {
	return &Discovery{
		client:   client,
		registry: registry,
	}
}

// Run fetches the full device and scenario inventory and creates, renames
// or retires local units accordingly. Failures local to a single unit
// (address collisions) are logged and skipped; only the inventory fetches
// themselves can fail the run.
func (d *Discovery) Run() error {
	d.running.Lock()
	defer d.running.Unlock()

	devices, err := d.client.GetDevices()
	if err != nil {
		return fmt.Errorf("error fetching devices: %w", err)
	}
	scenarios, err := d.client.GetScenarios()
	if err != nil {
		return fmt.Errorf("error fetching scenarios: %w", err)
	}

	seen := map[string]bool{}
	for _, device := range devices {
		address, err := d.reconcileDevice(device)
		if err != nil {
			log.Error().Err(err).
				Str("deviceURL", device.DeviceURL).
				Str("label", device.Label).
				Msg("Skipping device during discovery.")
			continue
		}
		seen[address] = true
	}
	for _, scenario := range scenarios {
		address, err := d.reconcileScenario(scenario)
		if err != nil {
			log.Error().Err(err).
				Str("oid", scenario.OID).
				Str("label", scenario.Label).
				Msg("Skipping scenario during discovery.")
			continue
		}
		seen[address] = true
	}

	d.retireMissing(seen)

	log.Info().
		Int("devices", len(devices)).
		Int("scenarios", len(scenarios)).
		Msg("Discovery complete.")
	return nil
}

func (d *Discovery) reconcileDevice(device Device) (string, error) {
	address := DeriveDeviceAddress(device.DeviceURL)

	if existing, err := d.registry.Unit(address); err == nil {
		if existing.RemoteId != device.DeviceURL {
			return "", fmt.Errorf("%w: address %s derived for both %s and %s",
				ErrAddressCollision, address, existing.RemoteId, device.DeviceURL)
		}
		if existing.Name != device.Label {
			if err := d.registry.RenameUnit(address, device.Label); err != nil {
				return "", err
			}
		}
		return address, nil
	}

	unit := RemoteUnit{
		RemoteId: device.DeviceURL,
		Address:  address,
		Name:     device.Label,
		Profile:  ClassifyDevice(device.ControllableName),
	}
	if err := d.registry.AddUnit(unit); err != nil {
		return "", err
	}
	// Seed the mirror from the states included in the inventory; the
	// event feed takes over from here.
	if len(device.States) > 0 {
		if err := d.registry.ApplyStates(device.DeviceURL, device.States); err != nil {
			return "", err
		}
	}
	return address, nil
}

func (d *Discovery) reconcileScenario(scenario Scenario) (string, error) {
	address := DeriveScenarioAddress(scenario.OID)

	if existing, err := d.registry.Unit(address); err == nil {
		if existing.RemoteId != scenario.OID {
			return "", fmt.Errorf("%w: address %s derived for both %s and %s",
				ErrAddressCollision, address, existing.RemoteId, scenario.OID)
		}
		if existing.Name != scenario.Label {
			if err := d.registry.RenameUnit(address, scenario.Label); err != nil {
				return "", err
			}
		}
		return address, nil
	}

	return address, d.registry.AddUnit(RemoteUnit{
		RemoteId: scenario.OID,
		Address:  address,
		Name:     scenario.Label,
		Profile:  ProfileScenario,
	})
}

// retireMissing removes units absent from the latest inventory. Units with
// an unsettled execution are kept until the execution settles or times
// out; a later discovery run picks them up again.
func (d *Discovery) retireMissing(seen map[string]bool) {
	for _, unit := range d.registry.Units() {
		if seen[unit.Address] {
			continue
		}
		if d.registry.HasPendingExecution(unit.Address) {
			log.Warn().
				Str("address", unit.Address).
				Msg("Deferring removal of unit with pending execution.")
			continue
		}
		if err := d.registry.RemoveUnit(unit.Address); err != nil && !errors.Is(err, ErrUnknownUnit) {
			log.Error().Err(err).Str("address", unit.Address).Msg("Error retiring unit.")
		}
	}
}
