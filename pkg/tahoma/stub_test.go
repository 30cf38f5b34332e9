package tahoma

import "sync"

// stubClient is a scriptable gateway used across the package tests. Each
// hook receives the 1-based call count so tests can script sequences.
type stubClient struct {
	mutex sync.Mutex

	devices   []Device
	scenarios []Scenario

	registerFn func(call int) (string, error)
	fetchFn    func(call int, listenerId string) ([]Event, error)
	commandFn  func(call int, deviceURL string, command Command) (string, error)
	scenarioFn func(call int, oid string) (string, error)

	registerCalls   int
	fetchCalls      int
	unregisterCalls int
	commandCalls    int
	scenarioCalls   int
}

func (c *stubClient) Connect() error    { return nil }
func (c *stubClient) Disconnect() error { return nil }

func (c *stubClient) GetDevices() ([]Device, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.devices, nil
}

func (c *stubClient) GetScenarios() ([]Scenario, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.scenarios, nil
}

func (c *stubClient) ExecuteCommand(deviceURL string, command Command) (string, error) {
	c.mutex.Lock()
	c.commandCalls++
	call := c.commandCalls
	fn := c.commandFn
	c.mutex.Unlock()
	if fn == nil {
		return "exec-1", nil
	}
	return fn(call, deviceURL, command)
}

func (c *stubClient) ExecuteScenario(oid string) (string, error) {
	c.mutex.Lock()
	c.scenarioCalls++
	call := c.scenarioCalls
	fn := c.scenarioFn
	c.mutex.Unlock()
	if fn == nil {
		return "exec-scene-1", nil
	}
	return fn(call, oid)
}

func (c *stubClient) RegisterEvents() (string, error) {
	c.mutex.Lock()
	c.registerCalls++
	call := c.registerCalls
	fn := c.registerFn
	c.mutex.Unlock()
	if fn == nil {
		return "listener-1", nil
	}
	return fn(call)
}

func (c *stubClient) FetchEvents(listenerId string) ([]Event, error) {
	c.mutex.Lock()
	c.fetchCalls++
	call := c.fetchCalls
	fn := c.fetchFn
	c.mutex.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(call, listenerId)
}

func (c *stubClient) UnregisterEvents(listenerId string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.unregisterCalls++
	return nil
}

func (c *stubClient) counts() (register, fetch, unregister, command int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.registerCalls, c.fetchCalls, c.unregisterCalls, c.commandCalls
}
