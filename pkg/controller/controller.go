package controller

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/controller/modules"
	"github.com/sjenkins/tahoma-mqtt/pkg/homeassistant"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

type Controller struct {
	bridge     *tahoma.Bridge
	mqttClient mqtt.Client
	hass       *homeassistant.HomeAssistantDiscovery

	modules map[string]modules.Module
}

func NewController(config *config.Config) *Controller {
	// Create TaHoma bridge.
	tahomaOptions := tahoma.NewClientOptions().
		SetGatewayPin(config.Tahoma.GatewayPin).
		SetPort(config.Tahoma.Port).
		SetToken(config.Tahoma.Token).
		SetVerifyTLS(config.Tahoma.VerifyTLS).
		SetPollInterval(config.Tahoma.PollInterval).
		SetListenerTTL(config.Tahoma.ListenerTTL).
		SetListenerMaxRetries(config.Tahoma.ListenerMaxRetries)
	bridge := tahoma.NewBridge(tahomaOptions)

	mqttOptions := mqtt.NewClientOptions().
		SetMqttUrl(config.Mqtt.MqttUrl).
		SetUsername(config.Mqtt.Username).
		SetPassword(config.Mqtt.Password).
		SetTopicPrefix(config.Mqtt.TopicPrefix).
		SetNormalizeDeviceName(config.Mqtt.NormalizeDeviceName).
		SetRetain(config.Mqtt.Retain)
	mqttClient := mqtt.NewClient(mqttOptions)
	controller := Controller{
		bridge:     bridge,
		mqttClient: mqttClient,
		hass:       homeassistant.NewHomeAssistantDiscovery(mqttClient, &config.HomeAssistant),
		modules:    map[string]modules.Module{},
	}

	for name, builder := range modules.Modules {
		module := builder(mqttClient, bridge, config)
		controller.modules[name] = module
	}

	// Fan registry notifications out to every module observing units.
	bridge.SetHandler(tahoma.RegistryHandler{
		UnitAdded: func(unit tahoma.RemoteUnit) {
			for _, observer := range controller.observers() {
				observer.OnUnitAdded(unit)
			}
		},
		UnitRemoved: func(unit tahoma.RemoteUnit) {
			for _, observer := range controller.observers() {
				observer.OnUnitRemoved(unit)
			}
		},
		UnitStateChanged: func(unit tahoma.RemoteUnit, changed []tahoma.Channel) {
			for _, observer := range controller.observers() {
				observer.OnUnitStateChanged(unit, changed)
			}
		},
	})

	return &controller
}

func (c *Controller) observers() []modules.UnitObserver {
	observers := []modules.UnitObserver{}
	for _, module := range c.modules {
		if observer, ok := module.(modules.UnitObserver); ok {
			observers = append(observers, observer)
		}
	}
	return observers
}

func (c *Controller) Start() error {
	log.Info().Msg("Starting controller.")
	if err := c.mqttClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to MQTT client: %w", err)
	}
	if err := c.bridge.Start(); err != nil {
		return fmt.Errorf("error starting TaHoma bridge: %w", err)
	}

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Starting module.")
		if err := module.Start(); err != nil {
			return fmt.Errorf("error starting module '%s': %w", name, err)
		}
	}

	if err := c.publishHomeAssistantDiscovery(); err != nil {
		return fmt.Errorf("error publishing Home Assistant discovery: %w", err)
	}

	return nil
}

func (c *Controller) Stop() error {
	log.Info().Msg("Stopping controller.")

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Stopping module.")
		if err := module.Stop(); err != nil {
			return fmt.Errorf("error stopping module '%s': %w", name, err)
		}
	}

	if err := c.bridge.Stop(); err != nil {
		return fmt.Errorf("error stopping TaHoma bridge: %w", err)
	}
	if err := c.mqttClient.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting to MQTT client: %w", err)
	}

	return nil
}

// Bridge exposes the underlying gateway bridge, used by the health checks.
func (c *Controller) Bridge() *tahoma.Bridge {
	return c.bridge
}

// MqttClient exposes the broker connection, used by the health checks.
func (c *Controller) MqttClient() mqtt.Client {
	return c.mqttClient
}

func (c *Controller) publishHomeAssistantDiscovery() error {
	for name, module := range c.modules {
		provider, ok := module.(homeassistant.HomeAssistantDiscoveryInterface)
		if !ok {
			continue
		}
		configs, err := provider.GetHomeAssistantEntities()
		if err != nil {
			return fmt.Errorf("error getting entities from module '%s': %w", name, err)
		}
		c.hass.AddConfigs(configs)
	}
	return c.hass.PublishDiscoveryMessages()
}
