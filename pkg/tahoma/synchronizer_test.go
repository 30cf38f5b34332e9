package tahoma

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, message string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}

func newTestSynchronizer(client Client, registry Registry, options *ClientOptions) *Synchronizer {
	if options == nil {
		options = NewClientOptions()
	}
	synchronizer := NewSynchronizer(client, registry, options)
	// Short cadence so the tests run in milliseconds; the production
	// floor clamp is covered separately.
	synchronizer.pollInterval = 2 * time.Millisecond
	return synchronizer
}

func TestSynchronizerDispatchesStateEvents(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	var mutex sync.Mutex
	notifications := 0
	registry.SetHandler(RegistryHandler{
		UnitStateChanged: func(unit RemoteUnit, changed []Channel) {
			mutex.Lock()
			notifications++
			mutex.Unlock()
		},
	})

	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			if call == 1 {
				return []Event{{
					Name:         EventDeviceStateChanged,
					DeviceURL:    "io://1/222",
					DeviceStates: []DeviceState{{Name: StateClosure, Value: 75}},
				}}, nil
			}
			return nil, nil
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "state update", func() bool {
		unit, _ := registry.Unit("sh222")
		return unit.State[ChannelPrimary] == 75
	})
	assert.NoError(t, synchronizer.Stop())

	mutex.Lock()
	assert.Equal(t, 1, notifications, "one state event fires exactly one notification")
	mutex.Unlock()
	assert.Equal(t, StatusDisconnected, synchronizer.Status())
	assert.Equal(t, SyncStopped, synchronizer.State())
}

func TestSynchronizerAppliesEventsInOrder(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			if call == 1 {
				return []Event{
					{Name: EventDeviceStateChanged, DeviceURL: "io://1/222", DeviceStates: []DeviceState{{Name: StateClosure, Value: 10}}},
					{Name: EventDeviceStateChanged, DeviceURL: "io://1/222", DeviceStates: []DeviceState{{Name: StateClosure, Value: 90}}},
					{Name: EventDeviceStateChanged, DeviceURL: "io://1/222", DeviceStates: []DeviceState{{Name: StateClosure, Value: 30}}},
				}, nil
			}
			return nil, nil
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "state update", func() bool {
		unit, _ := registry.Unit("sh222")
		return unit.State[ChannelPrimary] != nil
	})
	assert.NoError(t, synchronizer.Stop())

	unit, _ := registry.Unit("sh222")
	assert.Equal(t, 30, unit.State[ChannelPrimary], "last value per channel wins")
}

func TestSynchronizerExpiryReRegistersExactlyOnce(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	stateEvent := func(value int) []Event {
		return []Event{{
			Name:         EventDeviceStateChanged,
			DeviceURL:    "io://1/222",
			DeviceStates: []DeviceState{{Name: StateClosure, Value: value}},
		}}
	}
	client := &stubClient{
		registerFn: func(call int) (string, error) {
			return fmt.Sprintf("listener-%d", call), nil
		},
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			switch call {
			case 1:
				return stateEvent(20), nil
			case 2:
				return nil, fmt.Errorf("fetch failed: %w", ErrInvalidListener)
			case 3:
				assert.Equal(t, "listener-2", listenerId, "fetch must use the fresh session")
				return stateEvent(60), nil
			default:
				return nil, nil
			}
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "event after re-registration", func() bool {
		unit, _ := registry.Unit("sh222")
		return unit.State[ChannelPrimary] == 60
	})
	assert.NoError(t, synchronizer.Stop())

	register, _, unregister, _ := client.counts()
	assert.Equal(t, 2, register, "exactly one re-registration after expiry")
	assert.Equal(t, 1, unregister)
}

func TestSynchronizerFaultsAfterRetryCeiling(t *testing.T) {
	registry := NewRegistry()
	options := NewClientOptions().SetListenerMaxRetries(2)
	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			return nil, ErrInvalidListener
		},
	}

	synchronizer := newTestSynchronizer(client, registry, options)
	assert.NoError(t, synchronizer.Start())
	// Faulted is terminal until an explicit reset: once the loop has wound
	// down, Start must refuse with the connectivity sentinel.
	waitFor(t, "terminal fault", func() bool {
		return errors.Is(synchronizer.Start(), ErrConnectivity)
	})
	assert.Equal(t, SyncFaulted, synchronizer.State())

	register, _, _, _ := client.counts()
	assert.Equal(t, 3, register, "initial registration plus two retries")
	assert.Equal(t, StatusDisconnected, synchronizer.Status())

	synchronizer.Reset()
	assert.NoError(t, synchronizer.Start())
	assert.NoError(t, synchronizer.Stop())
}

func TestSynchronizerFaultsOnAuthError(t *testing.T) {
	registry := NewRegistry()
	client := &stubClient{
		registerFn: func(call int) (string, error) {
			return "", fmt.Errorf("register failed: %w", ErrNotAuthenticated)
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "terminal fault", func() bool {
		return synchronizer.State() == SyncFaulted
	})

	register, _, _, _ := client.counts()
	assert.Equal(t, 1, register, "auth failures are not retried")
}

func TestSynchronizerRecoversFromTransientFetchError(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))

	var degraded []ConnectionStatus
	var mutex sync.Mutex
	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			if call == 1 {
				return nil, fmt.Errorf("fetch: %w", ErrGatewayUnreachable)
			}
			if call == 2 {
				return []Event{{
					Name:         EventDeviceStateChanged,
					DeviceURL:    "io://1/222",
					DeviceStates: []DeviceState{{Name: StateClosure, Value: 5}},
				}}, nil
			}
			return nil, nil
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	synchronizer.OnStatusChange(func(status ConnectionStatus) {
		mutex.Lock()
		degraded = append(degraded, status)
		mutex.Unlock()
	})
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "recovery after transient error", func() bool {
		unit, _ := registry.Unit("sh222")
		return unit.State[ChannelPrimary] == 5
	})
	assert.NoError(t, synchronizer.Stop())

	register, _, _, _ := client.counts()
	assert.Equal(t, 1, register, "transient errors must not re-register")
	mutex.Lock()
	assert.Contains(t, degraded, StatusDegraded)
	assert.Contains(t, degraded, StatusConnected)
	mutex.Unlock()
}

func TestSynchronizerUpdatesExecutions(t *testing.T) {
	registry := NewRegistry()
	assert.NoError(t, registry.AddUnit(shutterUnit()))
	registry.AddExecution("exec-1", "sh222")

	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			if call == 1 {
				return []Event{
					{Name: EventExecutionStateChanged, ExecId: "exec-1", NewState: "IN_PROGRESS"},
					{Name: EventExecutionStateChanged, ExecId: "exec-1", NewState: "COMPLETED"},
				}, nil
			}
			return nil, nil
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "execution settled", func() bool {
		return !registry.HasPendingExecution("sh222")
	})
	assert.NoError(t, synchronizer.Stop())

	executions := registry.Executions()
	assert.Len(t, executions, 1)
	assert.Equal(t, ExecutionCompleted, executions[0].Status)
}

func TestSynchronizerRequestsDiscoveryOnInventoryEvents(t *testing.T) {
	registry := NewRegistry()
	requested := make(chan struct{}, 1)
	client := &stubClient{
		fetchFn: func(call int, listenerId string) ([]Event, error) {
			if call == 1 {
				return []Event{{Name: EventDeviceAdded, DeviceURL: "io://1/333"}}, nil
			}
			return nil, nil
		},
	}

	synchronizer := newTestSynchronizer(client, registry, nil)
	synchronizer.OnInventoryChange(func() {
		select {
		case requested <- struct{}{}:
		default:
		}
	})
	assert.NoError(t, synchronizer.Start())
	select {
	case <-requested:
	case <-time.After(5 * time.Second):
		t.Fatal("discovery was not requested")
	}
	assert.NoError(t, synchronizer.Stop())
}

func TestSynchronizerPollIntervalClamped(t *testing.T) {
	options := NewClientOptions().SetPollInterval(10 * time.Millisecond)
	synchronizer := NewSynchronizer(&stubClient{}, NewRegistry(), options)
	assert.Equal(t, MinPollInterval, synchronizer.pollInterval)
}

func TestSynchronizerSessionExpiry(t *testing.T) {
	options := NewClientOptions().SetListenerTTL(10 * time.Minute)
	synchronizer := NewSynchronizer(&stubClient{}, NewRegistry(), options)

	synchronizer.listenerId = "listener-1"
	synchronizer.lastFetchAt = time.Now().Add(-11 * time.Minute)
	assert.True(t, synchronizer.Session().Expired)

	synchronizer.lastFetchAt = time.Now()
	assert.False(t, synchronizer.Session().Expired)
}

func TestSynchronizerStopIsIdempotent(t *testing.T) {
	synchronizer := newTestSynchronizer(&stubClient{}, NewRegistry(), nil)
	assert.NoError(t, synchronizer.Stop())

	assert.NoError(t, synchronizer.Start())
	assert.ErrorContains(t, synchronizer.Start(), "already running")
	assert.NoError(t, synchronizer.Stop())
	assert.NoError(t, synchronizer.Stop())
}

func TestSynchronizerConcurrentStop(t *testing.T) {
	synchronizer := newTestSynchronizer(&stubClient{}, NewRegistry(), nil)
	assert.NoError(t, synchronizer.Start())
	waitFor(t, "loop polling", func() bool {
		return synchronizer.State() == SyncPolling
	})

	// All callers must return once the loop halted, and only one of them
	// may close the stop channel.
	var group sync.WaitGroup
	for i := 0; i < 4; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			assert.NoError(t, synchronizer.Stop())
		}()
	}
	group.Wait()

	assert.Equal(t, SyncStopped, synchronizer.State())
	assert.NoError(t, synchronizer.Start())
	assert.NoError(t, synchronizer.Stop())
}
