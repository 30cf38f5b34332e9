package modules

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/homeassistant"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

const (
	units string = "units"
)

// Keyword payloads accepted on any command topic next to plain numbers.
var keywordIntents = map[string]tahoma.Intent{
	"OPEN":  tahoma.IntentOpen,
	"CLOSE": tahoma.IntentClose,
	"STOP":  tahoma.IntentStop,
	"MY":    tahoma.IntentMy,
}

// setIntents maps a writable channel to the intent carrying a position.
var setIntents = map[tahoma.Channel]tahoma.Intent{
	tahoma.ChannelPrimary:   tahoma.IntentSetPrimary,
	tahoma.ChannelSecondary: tahoma.IntentSetSecondary,
	tahoma.ChannelTilt:      tahoma.IntentSetTilt,
}

// Units Module bridges every non-scenario unit to MQTT: channel values are
// published under the unit state topics and command topics are translated
// into control intents for the gateway.
type UnitsModule struct {
	mqttClient mqtt.Client
	bridge     *tahoma.Bridge

	normalizeDeviceName bool
	refreshAtStart      bool
	invertPosition      bool

	mutex      sync.Mutex
	subscribed map[string]bool
}

func (c *UnitsModule) Start() error {
	// Units discovered before this module started still need their command
	// subscriptions.
	for _, unit := range c.bridge.Units() {
		c.OnUnitAdded(unit)
	}

	if c.refreshAtStart {
		go func() {
			for _, unit := range c.bridge.Units() {
				if unit.Profile == tahoma.ProfileScenario {
					continue
				}
				c.publishUnitState(unit, allChannels(unit))
			}
		}()
	}
	return nil
}

func (c *UnitsModule) Stop() error {
	return nil
}

func (c *UnitsModule) OnUnitAdded(unit tahoma.RemoteUnit) {
	if unit.Profile == tahoma.ProfileScenario {
		return
	}

	c.mutex.Lock()
	if c.subscribed[unit.Address] {
		c.mutex.Unlock()
		return
	}
	c.subscribed[unit.Address] = true
	c.mutex.Unlock()

	for _, channel := range writableChannels(unit.Profile) {
		address := unit.Address
		channelCopy := channel
		topic := c.unitCommandTopic(unit.Name, channel)
		log.Trace().
			Str("topic", topic).
			Str("address", address).
			Str("channel", string(channel)).
			Msg("Subscribing for topic.")
		c.mqttClient.Subscribe(topic, func(client mqtt_base.Client, message mqtt_base.Message) {
			payload := string(message.Payload())
			log.Trace().
				Str("topic", topic).
				Str("address", address).
				Str("payload", payload).
				Msg("Message Received.")
			if err := c.onMqttMessage(address, channelCopy, payload); err != nil {
				log.Error().
					Str("topic", topic).
					Err(err).
					Msg("Error handling MQTT Message.")
			}
		})
	}
}

func (c *UnitsModule) OnUnitRemoved(unit tahoma.RemoteUnit) {
	log.Debug().Str("address", unit.Address).Msg("Unit retired, keeping MQTT subscription idle.")
}

func (c *UnitsModule) OnUnitStateChanged(unit tahoma.RemoteUnit, changed []tahoma.Channel) {
	if unit.Profile == tahoma.ProfileScenario {
		return
	}
	c.publishUnitState(unit, changed)
}

func (c *UnitsModule) onMqttMessage(address string, channel tahoma.Channel, message string) error {
	if intent, ok := keywordIntents[strings.ToUpper(strings.TrimSpace(message))]; ok {
		_, err := c.bridge.Dispatch(address, intent, 0)
		return err
	}

	// Alternatively the payload is a target position for the channel the
	// topic belongs to.
	value, err := strconv.ParseFloat(strings.TrimSpace(message), 64)
	if err != nil {
		return fmt.Errorf("error parsing message as position value: %w", err)
	}
	intent, ok := setIntents[channel]
	if !ok {
		return fmt.Errorf("channel %s does not accept position values", channel)
	}
	position := c.invertValueIfNeeded(channel, int(value))
	log.Info().
		Str("address", address).
		Str("channel", string(channel)).
		Int("value", position).
		Msg("Setting position.")
	_, err = c.bridge.Dispatch(address, intent, position)
	return err
}

func (c *UnitsModule) publishUnitState(unit tahoma.RemoteUnit, channels []tahoma.Channel) {
	for _, channel := range channels {
		value, ok := unit.State[channel]
		if !ok {
			continue
		}
		topic := c.unitStateTopic(unit.Name, channel)
		if err := c.mqttClient.Publish(topic, c.formatValue(channel, value)); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("Error publishing unit state.")
		}
	}
}

func (c *UnitsModule) formatValue(channel tahoma.Channel, value interface{}) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(c.invertValueIfNeeded(channel, v))
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *UnitsModule) invertValueIfNeeded(channel tahoma.Channel, value int) int {
	if c.invertPosition {
		if channel == tahoma.ChannelPrimary || channel == tahoma.ChannelSecondary {
			return 100 - value
		}
	}

	// nothing to invert
	return value
}

func (c *UnitsModule) unitStateTopic(unitName string, channel tahoma.Channel) string {
	if c.normalizeDeviceName {
		unitName = normalizeForTopicName(unitName)
	}
	return path.Join(units, unitName, string(channel), mqtt.State)
}

func (c *UnitsModule) unitCommandTopic(unitName string, channel tahoma.Channel) string {
	if c.normalizeDeviceName {
		unitName = normalizeForTopicName(unitName)
	}
	return path.Join(units, unitName, string(channel), mqtt.Command)
}

func (c *UnitsModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}

	for _, unit := range c.bridge.Units() {
		if unit.Profile == tahoma.ProfileScenario {
			continue
		}

		entityConfig := &homeassistant.CoverConfig{
			BaseConfig: homeassistant.BaseConfig{
				Device: homeassistant.Device{
					Identifiers: []string{unit.RemoteId},
					Model:       string(unit.Profile),
					Name:        unit.Name,
				},
				Name:     unit.Name,
				UniqueId: unit.Address + "_cover",
			},
			CommandTopic: c.mqttClient.GetFullTopic(
				c.unitCommandTopic(unit.Name, tahoma.ChannelPrimary)),
			PayloadOpen:  "OPEN",
			PayloadClose: "CLOSE",
			PayloadStop:  "STOP",
			PositionTopic: c.mqttClient.GetFullTopic(
				c.unitStateTopic(unit.Name, tahoma.ChannelPrimary)),
			SetPositionTopic: c.mqttClient.GetFullTopic(
				c.unitCommandTopic(unit.Name, tahoma.ChannelPrimary)),
			PositionTemplate: "{{ value | int }}",
		}
		if unit.Profile.SupportsChannel(tahoma.ChannelTilt) {
			entityConfig.TiltStatusTemplate = "{{ value | int }}"
			entityConfig.TiltStatusTopic = c.mqttClient.GetFullTopic(
				c.unitStateTopic(unit.Name, tahoma.ChannelTilt))
			entityConfig.TiltCommandTopic = c.mqttClient.GetFullTopic(
				c.unitCommandTopic(unit.Name, tahoma.ChannelTilt))
		}
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Cover,
			DeviceId: unit.Address,
			ObjectId: "cover",
			Config:   entityConfig,
		})

		if _, ok := unit.State[tahoma.ChannelBattery]; ok {
			configs = append(configs, homeassistant.DiscoveryConfig{
				Domain:   homeassistant.Sensor,
				DeviceId: unit.Address,
				ObjectId: "battery",
				Config: &homeassistant.SensorConfig{
					BaseConfig: homeassistant.BaseConfig{
						Device: homeassistant.Device{
							Identifiers: []string{unit.RemoteId},
							Model:       string(unit.Profile),
							Name:        unit.Name,
						},
						Name:     unit.Name + " battery",
						UniqueId: unit.Address + "_battery",
					},
					StateTopic:  c.mqttClient.GetFullTopic(c.unitStateTopic(unit.Name, tahoma.ChannelBattery)),
					DeviceClass: "battery",
					Icon:        "mdi:battery",
				},
			})
		}
		if _, ok := unit.State[tahoma.ChannelSignal]; ok {
			configs = append(configs, homeassistant.DiscoveryConfig{
				Domain:   homeassistant.Sensor,
				DeviceId: unit.Address,
				ObjectId: "signal",
				Config: &homeassistant.SensorConfig{
					BaseConfig: homeassistant.BaseConfig{
						Device: homeassistant.Device{
							Identifiers: []string{unit.RemoteId},
							Model:       string(unit.Profile),
							Name:        unit.Name,
						},
						Name:     unit.Name + " signal",
						UniqueId: unit.Address + "_signal",
					},
					StateTopic: c.mqttClient.GetFullTopic(c.unitStateTopic(unit.Name, tahoma.ChannelSignal)),
					Icon:       "mdi:signal",
				},
			})
		}
	}
	return configs, nil
}

// writableChannels lists the channels of the profile that accept commands.
func writableChannels(profile tahoma.CapabilityProfile) []tahoma.Channel {
	channels := []tahoma.Channel{}
	for _, channel := range []tahoma.Channel{tahoma.ChannelPrimary, tahoma.ChannelSecondary, tahoma.ChannelTilt} {
		if profile.SupportsChannel(channel) {
			channels = append(channels, channel)
		}
	}
	return channels
}

func allChannels(unit tahoma.RemoteUnit) []tahoma.Channel {
	channels := make([]tahoma.Channel, 0, len(unit.State))
	for channel := range unit.State {
		channels = append(channels, channel)
	}
	return channels
}

func normalizeForTopicName(item string) string {
	output := ""
	for i := 0; i < len(item); i++ {
		c := item[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			output += string(c)
		} else if c == ' ' || c == '/' {
			output += "_"
		}
	}
	return output
}

func NewUnitsModule(mqttClient mqtt.Client, bridge *tahoma.Bridge, config *config.Config) Module {
	return &UnitsModule{
		mqttClient:          mqttClient,
		bridge:              bridge,
		normalizeDeviceName: config.Mqtt.NormalizeDeviceName,
		refreshAtStart:      config.RefreshAtStart,
		invertPosition:      config.InvertPosition,
		subscribed:          map[string]bool{},
	}
}

func init() {
	Register("units", NewUnitsModule)
}
