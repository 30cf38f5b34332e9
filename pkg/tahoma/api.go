package tahoma

import "strings"

// CapabilityProfile classifies which control channels a unit supports.
type CapabilityProfile string

const (
	ProfilePrimaryOnly         CapabilityProfile = "PrimaryOnly"
	ProfilePrimaryAndSecondary CapabilityProfile = "PrimaryAndSecondary"
	ProfilePrimaryAndTilt      CapabilityProfile = "PrimaryAndTilt"
	ProfileFullFeatured        CapabilityProfile = "FullFeatured"
	ProfileScenario            CapabilityProfile = "Scenario"
	ProfileUnknown             CapabilityProfile = "Unknown"
)

// Channel names for the state map of a unit.
type Channel string

const (
	ChannelPrimary   Channel = "primary_position"
	ChannelSecondary Channel = "secondary_position"
	ChannelTilt      Channel = "tilt"
	ChannelMotion    Channel = "motion"
	ChannelSignal    Channel = "signal"
	ChannelBattery   Channel = "battery"
)

// TaHoma state names as reported by the gateway.
const (
	StateClosure     string = "core:ClosureState"
	StateDeployment  string = "core:DeploymentState"
	StateOrientation string = "core:SlateOrientationState"
	StateStatus      string = "core:StatusState"
	StateRSSILevel   string = "core:DiscreteRSSILevelState"
	StateBattery     string = "core:BatteryState"
)

type EventName string

const (
	EventDeviceStateChanged     EventName = "DeviceStateChangedEvent"
	EventExecutionRegistered    EventName = "ExecutionRegisteredEvent"
	EventExecutionStateChanged  EventName = "ExecutionStateChangedEvent"
	EventGatewayAlive           EventName = "GatewayAliveEvent"
	EventGatewayDown            EventName = "GatewayDownEvent"
	EventDeviceAdded            EventName = "DeviceAddedEvent"
	EventDeviceRemoved          EventName = "DeviceRemovedEvent"
	EventScenarioAdded          EventName = "ScenarioAddedEvent"
	EventScenarioUpdated        EventName = "ScenarioUpdatedEvent"
	EventScenarioRemoved        EventName = "ScenarioRemovedEvent"
	EventRefreshAllDevicesState EventName = "RefreshAllDevicesStatesCompletedEvent"
)

type ExecutionStatus string

const (
	ExecutionRegistered ExecutionStatus = "Registered"
	ExecutionInProgress ExecutionStatus = "InProgress"
	ExecutionCompleted  ExecutionStatus = "Completed"
	ExecutionFailed     ExecutionStatus = "Failed"
)

// A Device is one controllable endpoint exposed by the gateway. The
// DeviceURL is the vendor-assigned identity (e.g. "io://1234-5678-9012/123")
// and ControllableName carries the type tag used for classification.
type Device struct {
	DeviceURL        string        `mapstructure:"deviceURL"`
	Label            string        `mapstructure:"label"`
	ControllableName string        `mapstructure:"controllableName"`
	Enabled          bool          `mapstructure:"enabled"`
	States           []DeviceState `mapstructure:"states"`
}

type DeviceState struct {
	Name  string      `mapstructure:"name"`
	Value interface{} `mapstructure:"value"`
}

// A Scenario is a gateway-stored action group activated as a whole.
type Scenario struct {
	OID   string `mapstructure:"oid"`
	Label string `mapstructure:"label"`
}

// Event is a single entry of the polled event feed. Only the fields
// relevant to the event's name are populated by the gateway.
type Event struct {
	Name         EventName     `mapstructure:"name"`
	Timestamp    int64         `mapstructure:"timestamp"`
	GatewayId    string        `mapstructure:"gatewayId"`
	DeviceURL    string        `mapstructure:"deviceURL"`
	DeviceStates []DeviceState `mapstructure:"deviceStates"`
	ExecId       string        `mapstructure:"execId"`
	NewState     string        `mapstructure:"newState"`
}

// Command is one vendor command invocation inside an execution.
type Command struct {
	Name       string        `json:"name"`
	Parameters []interface{} `json:"parameters,omitempty"`
}

// executionStatusFromEvent maps the gateway's execution state strings to
// the internal status enum. Unknown intermediate states stay InProgress.
func executionStatusFromEvent(newState string) ExecutionStatus {
	switch strings.ToUpper(newState) {
	case "INITIALIZED", "NOT_TRANSMITTED", "QUEUED_GATEWAY_SIDE":
		return ExecutionRegistered
	case "COMPLETED":
		return ExecutionCompleted
	case "FAILED", "CMDCANCELLED":
		return ExecutionFailed
	default:
		return ExecutionInProgress
	}
}

// rssiLevels maps the discrete RSSI strings reported by the gateway to a
// 0-5 index, worst to best.
var rssiLevels = map[string]int{
	"verylow":   0,
	"low":       1,
	"normal":    2,
	"good":      3,
	"verygood":  4,
	"excellent": 5,
}

// ChannelValueFromState converts a raw gateway device state into a
// (channel, value) pair. The second return is false for states that do not
// map to any local channel.
func ChannelValueFromState(state DeviceState) (Channel, interface{}, bool) {
	switch state.Name {
	case StateClosure:
		return ChannelPrimary, toInt(state.Value), true
	case StateDeployment:
		return ChannelSecondary, toInt(state.Value), true
	case StateOrientation:
		return ChannelTilt, toInt(state.Value), true
	case StateStatus:
		// "available" means the motor is idle.
		return ChannelMotion, state.Value != "available", true
	case StateRSSILevel:
		level, ok := rssiLevels[strings.ToLower(toString(state.Value))]
		if !ok {
			level = rssiLevels["normal"]
		}
		return ChannelSignal, level, true
	case StateBattery:
		return ChannelBattery, toString(state.Value), true
	default:
		return "", nil, false
	}
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func toString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
