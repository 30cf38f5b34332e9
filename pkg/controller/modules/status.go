package modules

import (
	"github.com/rs/zerolog/log"
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/homeassistant"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

const (
	bridgeStatusTopic string = "bridge/status"
)

// Status Module publishes the gateway connection tri-state so dashboards
// can tell a healthy bridge from one that lost its gateway.
type StatusModule struct {
	mqttClient mqtt.Client
	bridge     *tahoma.Bridge
}

func (c *StatusModule) Start() error {
	c.bridge.OnStatusChange(func(status tahoma.ConnectionStatus) {
		c.publishStatus(status)
	})
	// The synchronizer may have settled before this module started.
	c.publishStatus(c.bridge.Status())
	return nil
}

func (c *StatusModule) Stop() error {
	c.publishStatus(tahoma.StatusDisconnected)
	return nil
}

func (c *StatusModule) publishStatus(status tahoma.ConnectionStatus) {
	log.Info().Str("status", string(status)).Msg("Publishing gateway connection status.")
	if err := c.mqttClient.PublishAndRetain(bridgeStatusTopic, string(status)); err != nil {
		log.Error().Err(err).Msg("Error publishing gateway connection status.")
	}
}

func (c *StatusModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	return []homeassistant.DiscoveryConfig{
		{
			Domain:   homeassistant.Sensor,
			DeviceId: "bridge",
			ObjectId: "gateway_status",
			Config: &homeassistant.SensorConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers: []string{"tahoma-mqtt-bridge"},
						Name:        "TaHoma MQTT bridge",
					},
					Name:     "Gateway connection",
					UniqueId: "tahoma_bridge_gateway_status",
				},
				StateTopic: c.mqttClient.GetFullTopic(bridgeStatusTopic),
				Icon:       "mdi:lan-connect",
			},
		},
	}, nil
}

func NewStatusModule(mqttClient mqtt.Client, bridge *tahoma.Bridge, config *config.Config) Module {
	return &StatusModule{
		mqttClient: mqttClient,
		bridge:     bridge,
	}
}

func init() {
	Register("status", NewStatusModule)
}
