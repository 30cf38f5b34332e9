package tahoma

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bridge is the facade over the gateway client, unit registry, discovery
// engine, event synchronizer and command dispatcher. Everything downstream
// (MQTT modules, health checks) talks to the bridge only.
type Bridge struct {
	client       Client
	registry     Registry
	discovery    *Discovery
	synchronizer *Synchronizer
	dispatcher   *Dispatcher
}

func NewBridge(options *ClientOptions) *Bridge {
	return NewBridgeWithClient(NewClient(options), options)
}

// NewBridgeWithClient builds a bridge around an existing client. Used by
// tests to inject a stub gateway.
func NewBridgeWithClient(client Client, options *ClientOptions) *Bridge {
	registry := NewRegistry()
	bridge := &Bridge{
		client:       client,
		registry:     registry,
		discovery:    NewDiscovery(client, registry),
		synchronizer: NewSynchronizer(client, registry, options),
		dispatcher:   NewDispatcher(client, registry),
	}
	bridge.synchronizer.OnInventoryChange(func() {
		// Discovery fetches over the network; never block the poll loop.
		go func() {
			if err := bridge.RunDiscovery(); err != nil {
				log.Error().Err(err).Msg("Event-triggered discovery failed.")
			}
		}()
	})
	return bridge
}

// Start connects to the gateway, runs the initial discovery and launches
// the event synchronizer.
func (b *Bridge) Start() error {
	if err := b.client.Connect(); err != nil {
		return fmt.Errorf("error connecting to gateway: %w", err)
	}
	if err := b.discovery.Run(); err != nil {
		return fmt.Errorf("error on initial discovery: %w", err)
	}
	if err := b.synchronizer.Start(); err != nil {
		return fmt.Errorf("error starting synchronizer: %w", err)
	}
	return nil
}

// Stop halts the synchronizer (best-effort listener unregister included)
// and closes the gateway connection.
func (b *Bridge) Stop() error {
	if err := b.synchronizer.Stop(); err != nil {
		return fmt.Errorf("error stopping synchronizer: %w", err)
	}
	if err := b.client.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting from gateway: %w", err)
	}
	return nil
}

// RunDiscovery reconciles the registry against the gateway inventory. Safe
// to call at any time; runs are serialized.
func (b *Bridge) RunDiscovery() error {
	return b.discovery.Run()
}

// Reset clears a terminal connectivity fault and restarts the poll loop.
func (b *Bridge) Reset() error {
	b.synchronizer.Reset()
	return b.synchronizer.Start()
}

// Dispatch submits a control intent for the unit at the given address.
func (b *Bridge) Dispatch(address string, intent Intent, value int) (PendingExecution, error) {
	return b.dispatcher.Dispatch(address, intent, value)
}

func (b *Bridge) Units() []RemoteUnit {
	return b.registry.Units()
}

func (b *Bridge) Unit(address string) (RemoteUnit, error) {
	return b.registry.Unit(address)
}

// Status returns the host-visible connection tri-state.
func (b *Bridge) Status() ConnectionStatus {
	return b.synchronizer.Status()
}

// SetHandler registers the unit lifecycle notification callbacks.
func (b *Bridge) SetHandler(handler RegistryHandler) {
	b.registry.SetHandler(handler)
}

// OnStatusChange registers the connection status callback.
func (b *Bridge) OnStatusChange(callback func(status ConnectionStatus)) {
	b.synchronizer.OnStatusChange(callback)
}
