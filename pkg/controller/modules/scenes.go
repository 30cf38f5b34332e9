package modules

import (
	"path"
	"sync"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/homeassistant"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

const (
	scenes string = "scenes"
)

// Scenes Module exposes the gateway-stored scenarios. Any message on a
// scene command topic triggers the scenario as a whole; scenarios carry no
// state to publish back.
type ScenesModule struct {
	mqttClient mqtt.Client
	bridge     *tahoma.Bridge

	normalizeTopicName bool

	mutex      sync.Mutex
	subscribed map[string]bool
}

func (c *ScenesModule) Start() error {
	for _, unit := range c.bridge.Units() {
		c.OnUnitAdded(unit)
	}
	return nil
}

func (c *ScenesModule) Stop() error {
	return nil
}

func (c *ScenesModule) OnUnitAdded(unit tahoma.RemoteUnit) {
	if unit.Profile != tahoma.ProfileScenario {
		return
	}

	c.mutex.Lock()
	if c.subscribed[unit.Address] {
		c.mutex.Unlock()
		return
	}
	c.subscribed[unit.Address] = true
	c.mutex.Unlock()

	address := unit.Address
	topic := c.sceneCommandTopic(unit.Name)
	log.Trace().
		Str("topic", topic).
		Str("address", address).
		Msg("Subscribing for topic.")
	c.mqttClient.Subscribe(topic, func(mqtt_base.Client, mqtt_base.Message) {
		// Payload is ignored. As long as we receive the message to the
		// command topic, the scenario will be activated.
		if err := c.onMqttMessage(address); err != nil {
			log.Error().Str("topic", topic).Err(err).Msg("Error handling MQTT Message.")
		}
	})
}

func (c *ScenesModule) OnUnitRemoved(unit tahoma.RemoteUnit) {}

func (c *ScenesModule) OnUnitStateChanged(unit tahoma.RemoteUnit, changed []tahoma.Channel) {}

func (c *ScenesModule) onMqttMessage(address string) error {
	log.Info().
		Str("address", address).
		Msg("Received MQTT command to activate scenario")
	_, err := c.bridge.Dispatch(address, tahoma.IntentActivate, 0)
	return err
}

func (c *ScenesModule) sceneCommandTopic(sceneName string) string {
	if c.normalizeTopicName {
		sceneName = normalizeForTopicName(sceneName)
	}
	return path.Join(scenes, sceneName, mqtt.Command)
}

func (c *ScenesModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}
	for _, unit := range c.bridge.Units() {
		if unit.Profile != tahoma.ProfileScenario {
			continue
		}
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Scene,
			DeviceId: unit.Address,
			ObjectId: "scene",
			Config: &homeassistant.SceneConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers: []string{unit.RemoteId},
						Name:        unit.Name,
					},
					Name:     unit.Name,
					UniqueId: unit.Address + "_scene",
				},
				CommandTopic:     c.mqttClient.GetFullTopic(c.sceneCommandTopic(unit.Name)),
				PayloadOn:        "ACTIVATE",
				Icon:             "mdi:palette",
				EnabledByDefault: true,
			},
		})
	}
	return configs, nil
}

func NewScenesModule(mqttClient mqtt.Client, bridge *tahoma.Bridge, config *config.Config) Module {
	return &ScenesModule{
		mqttClient:         mqttClient,
		bridge:             bridge,
		normalizeTopicName: config.Mqtt.NormalizeDeviceName,
		subscribed:         map[string]bool{},
	}
}

func init() {
	Register("scenes", NewScenesModule)
}
