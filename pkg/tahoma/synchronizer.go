package tahoma

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SyncState is the state of the event synchronizer loop.
type SyncState string

const (
	SyncUnregistered SyncState = "Unregistered"
	SyncRegistering  SyncState = "Registering"
	SyncPolling      SyncState = "Polling"
	SyncExpired      SyncState = "Expired"
	SyncStopping     SyncState = "Stopping"
	SyncStopped      SyncState = "Stopped"
	// SyncFaulted is terminal: the listener re-registration ceiling was
	// exhausted or authentication failed. Requires an explicit Reset.
	SyncFaulted SyncState = "Faulted"
)

// ConnectionStatus is the host-visible health tri-state derived from the
// synchronizer. Raw errors never cross this boundary.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDegraded     ConnectionStatus = "degraded"
	StatusDisconnected ConnectionStatus = "disconnected"
)

const (
	unregisterTimeout = 2 * time.Second
	executionGCPeriod = 1 * time.Minute
)

// Synchronizer runs the single poll loop that keeps the registry mirror
// current: it owns the listener session and is the only writer of unit
// state and execution status.
type Synchronizer struct {
	client   Client
	registry Registry

	pollInterval time.Duration
	listenerTTL  time.Duration
	maxRetries   int
	executionTTL time.Duration

	// requestDiscovery is invoked when the event feed reports an
	// inventory change. Must not block.
	requestDiscovery func()
	onStatus         func(status ConnectionStatus)

	mutex       sync.Mutex
	state       SyncState
	status      ConnectionStatus
	listenerId  string
	createdAt   time.Time
	lastFetchAt time.Time
	running     bool
	stopping    bool

	stop chan struct{}
	done chan struct{}
}

func NewSynchronizer(client Client, registry Registry, options *ClientOptions) *Synchronizer {
	pollInterval := options.PollInterval
	if pollInterval < MinPollInterval {
		log.Warn().
			Dur("requested", pollInterval).
			Dur("minimum", MinPollInterval).
			Msg("Poll interval below gateway minimum, clamping.")
		pollInterval = MinPollInterval
	}
	return &Synchronizer{
		client:       client,
		registry:     registry,
		pollInterval: pollInterval,
		listenerTTL:  options.ListenerTTL,
		maxRetries:   options.ListenerMaxRetries,
		executionTTL: options.ExecutionTTL,
		state:        SyncUnregistered,
		status:       StatusDisconnected,
	}
}

// OnInventoryChange registers the callback fired when the gateway reports
// devices or scenarios added, removed or updated.
func (s *Synchronizer) OnInventoryChange(callback func()) {
	s.requestDiscovery = callback
}

// OnStatusChange registers the callback fired when the connection
// tri-state changes.
func (s *Synchronizer) OnStatusChange(callback func(status ConnectionStatus)) {
	s.onStatus = callback
}

func (s *Synchronizer) State() SyncState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *Synchronizer) Status() ConnectionStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

// ListenerSession describes the active event listener subscription.
type ListenerSession struct {
	ListenerId  string
	CreatedAt   time.Time
	LastFetchAt time.Time
	Expired     bool
}

// Session returns a snapshot of the current listener session. Expired is
// set when the gateway signalled an invalid listener or the advertised
// inactivity window elapsed without a fetch.
func (s *Synchronizer) Session() ListenerSession {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	expired := s.state == SyncExpired ||
		(s.listenerId != "" && !s.lastFetchAt.IsZero() && time.Since(s.lastFetchAt) > s.listenerTTL)
	return ListenerSession{
		ListenerId:  s.listenerId,
		CreatedAt:   s.createdAt,
		LastFetchAt: s.lastFetchAt,
		Expired:     expired,
	}
}

// Start launches the poll loop. Returns an error when already running or
// faulted without a Reset.
func (s *Synchronizer) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return errors.New("synchronizer already running")
	}
	if s.state == SyncFaulted {
		return ErrConnectivity
	}
	s.running = true
	s.state = SyncUnregistered
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop()
	return nil
}

// Stop signals the loop and waits for it to halt. The loop observes the
// signal during any sleep, so this returns within one poll interval plus
// the best-effort unregister timeout. Safe for concurrent callers: only
// the first closes the stop channel, the rest wait for the loop to exit.
func (s *Synchronizer) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	alreadyStopping := s.stopping
	s.stopping = true
	stop := s.stop
	done := s.done
	s.mutex.Unlock()

	if !alreadyStopping {
		close(stop)
	}
	<-done
	return nil
}

// Reset clears a terminal fault so the synchronizer may be started again.
func (s *Synchronizer) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		return
	}
	s.state = SyncUnregistered
}

func (s *Synchronizer) loop() {
	defer func() {
		s.mutex.Lock()
		s.running = false
		s.stopping = false
		s.mutex.Unlock()
		close(s.done)
	}()

	log.Info().Dur("pollInterval", s.pollInterval).Msg("Starting event synchronizer.")

	// Consecutive listener failures: failed registrations and expiry
	// cycles without a successful fetch in between.
	failures := 0
	lastGC := time.Now()

	for {
		// Registration phase.
		s.setState(SyncRegistering)
		listenerId, err := s.client.RegisterEvents()
		if err != nil {
			if errors.Is(err, ErrNotAuthenticated) {
				log.Error().Err(err).Msg("Authentication failed, halting synchronizer.")
				s.fault()
				return
			}
			failures++
			log.Warn().Err(err).Int("failures", failures).Msg("Listener registration failed.")
			if failures > s.maxRetries {
				log.Error().Int("maxRetries", s.maxRetries).Msg("Listener registration retries exhausted.")
				s.fault()
				return
			}
			s.setStatus(StatusDegraded)
			if !s.sleep(BackoffDelay(failures - 1)) {
				s.shutdown("")
				return
			}
			continue
		}

		s.mutex.Lock()
		s.listenerId = listenerId
		s.createdAt = time.Now()
		s.mutex.Unlock()
		s.setState(SyncPolling)
		s.setStatus(StatusConnected)

		// Polling phase. Left only on expiry, fault or shutdown.
		fetchFailures := 0
		for {
			if !s.sleep(s.pollInterval) {
				s.shutdown(listenerId)
				return
			}

			events, err := s.client.FetchEvents(listenerId)
			if err != nil {
				if errors.Is(err, ErrInvalidListener) {
					log.Warn().Str("listenerId", listenerId).Msg("Event listener expired, re-registering.")
					s.setState(SyncExpired)
					failures++
					if failures > s.maxRetries {
						log.Error().Int("maxRetries", s.maxRetries).Msg("Listener expiry loop, giving up.")
						s.fault()
						return
					}
					break
				}
				if errors.Is(err, ErrNotAuthenticated) {
					log.Error().Err(err).Msg("Authentication failed, halting synchronizer.")
					s.fault()
					return
				}
				fetchFailures++
				log.Warn().Err(err).Int("failures", fetchFailures).Msg("Event fetch failed, backing off.")
				s.setStatus(StatusDegraded)
				if !s.sleep(BackoffDelay(fetchFailures - 1)) {
					s.shutdown(listenerId)
					return
				}
				continue
			}

			failures = 0
			fetchFailures = 0
			s.mutex.Lock()
			s.lastFetchAt = time.Now()
			s.mutex.Unlock()
			s.setStatus(StatusConnected)

			s.dispatchEvents(events)

			if time.Since(lastGC) > executionGCPeriod {
				if removed := s.registry.CollectExecutions(s.executionTTL); removed > 0 {
					log.Debug().Int("removed", removed).Msg("Collected settled executions.")
				}
				lastGC = time.Now()
			}
		}
	}
}

// dispatchEvents processes one fetch batch in order.
func (s *Synchronizer) dispatchEvents(events []Event) {
	for _, event := range events {
		switch event.Name {
		case EventDeviceStateChanged:
			if err := s.registry.ApplyStates(event.DeviceURL, event.DeviceStates); err != nil {
				log.Debug().Err(err).Str("deviceURL", event.DeviceURL).Msg("State event for unknown unit.")
			}
		case EventExecutionRegistered:
			s.applyExecutionStatus(event.ExecId, ExecutionRegistered)
		case EventExecutionStateChanged:
			s.applyExecutionStatus(event.ExecId, executionStatusFromEvent(event.NewState))
		case EventDeviceAdded, EventDeviceRemoved, EventScenarioAdded, EventScenarioUpdated, EventScenarioRemoved:
			log.Info().Str("event", string(event.Name)).Msg("Inventory changed, requesting discovery.")
			if s.requestDiscovery != nil {
				s.requestDiscovery()
			}
		case EventGatewayAlive:
			// Heartbeat, the fetch itself already refreshed the session.
			log.Debug().Msg("Gateway alive.")
		default:
			log.Debug().Str("event", string(event.Name)).Msg("Unhandled event type.")
		}
	}
}

func (s *Synchronizer) applyExecutionStatus(execId string, status ExecutionStatus) {
	if !s.registry.UpdateExecution(execId, status) {
		// Executions triggered outside this bridge (app, remote) also
		// show up on the feed.
		log.Debug().Str("execId", execId).Msg("Execution event for untracked execution.")
	}
}

// sleep waits for the given duration, returning false when the stop
// signal was received instead.
func (s *Synchronizer) sleep(duration time.Duration) bool {
	select {
	case <-s.stop:
		return false
	case <-time.After(duration):
		return true
	}
}

// shutdown performs the best-effort listener unregister with a short
// timeout, then marks the loop stopped.
func (s *Synchronizer) shutdown(listenerId string) {
	s.setState(SyncStopping)
	if listenerId != "" {
		finished := make(chan struct{})
		go func() {
			if err := s.client.UnregisterEvents(listenerId); err != nil {
				log.Warn().Err(err).Msg("Error unregistering event listener.")
			}
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(unregisterTimeout):
			log.Warn().Msg("Timed out unregistering event listener.")
		}
	}
	s.setState(SyncStopped)
	s.setStatus(StatusDisconnected)
	log.Info().Msg("Event synchronizer stopped.")
}

func (s *Synchronizer) fault() {
	s.setState(SyncFaulted)
	s.setStatus(StatusDisconnected)
}

func (s *Synchronizer) setState(state SyncState) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

func (s *Synchronizer) setStatus(status ConnectionStatus) {
	s.mutex.Lock()
	if s.status == status {
		s.mutex.Unlock()
		return
	}
	s.status = status
	callback := s.onStatus
	s.mutex.Unlock()

	if callback != nil {
		callback(status)
	}
}
