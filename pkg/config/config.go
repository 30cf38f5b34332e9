package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ConfigTahoma struct {
	GatewayPin         string
	Port               int
	Token              string
	VerifyTLS          bool
	PollInterval       time.Duration
	ListenerTTL        time.Duration
	ListenerMaxRetries int
}
type ConfigMqtt struct {
	MqttUrl             string
	Username            string
	Password            string
	TopicPrefix         string
	NormalizeDeviceName bool
	Retain              bool
}
type ConfigHomeAssistant struct {
	DiscoveryEnabled     bool
	DiscoveryTopicPrefix string
	RemoveRegexpFromName string
	GatewayPin           string
	Retain               bool
}
type HealthCheckConfig struct {
	Enabled bool
	Port    int
}
type Config struct {
	Tahoma         ConfigTahoma
	Mqtt           ConfigMqtt
	HomeAssistant  ConfigHomeAssistant
	HealthCheck    HealthCheckConfig
	RefreshAtStart bool
	LogLevel       string
	// InvertPosition flips the 0-100 position scale on the MQTT surface.
	// The gateway reports 100 as fully closed while most dashboards treat
	// 100 as fully open.
	InvertPosition bool
}

const (
	undefined                               string = "__undefined__"
	deprecated                              string = "__deprecated__"
	envKeyTahomaGatewayPin                  string = "tahoma_gateway_pin"
	envKeyTahomaPort                        string = "tahoma_port"
	envKeyTahomaToken                       string = "tahoma_token"
	envKeyTahomaVerifyTls                   string = "tahoma_verify_tls"
	envKeyTahomaPollInterval                string = "tahoma_poll_interval"
	envKeyTahomaPollSeconds                 string = "tahoma_poll_seconds"
	envKeyTahomaListenerTtl                 string = "tahoma_listener_ttl"
	envKeyTahomaListenerMaxRetries          string = "tahoma_listener_max_retries"
	envKeyMqttUrl                           string = "mqtt_url"
	envKeyMqttUsername                      string = "mqtt_username"
	envKeyMqttPassword                      string = "mqtt_password"
	envKeyMqttTopicPrefix                   string = "mqtt_topic_prefix"
	envKeyMqttNormalizeTopicName            string = "mqtt_normalize_device_name"
	envKeyMqttRetain                        string = "mqtt_retain"
	envKeyInvertPosition                    string = "invert_position"
	envKeyHealthCheckEnabled                string = "health_check_enabled"
	envKeyHealthCheckPort                   string = "health_check_port"
	envKeyRefreshAtStart                    string = "refresh_at_start"
	envKeyLogLevel                          string = "log_level"
	envKeyHomeAssistantDiscoveryEnabled     string = "home_assistant_discovery_enabled"
	envKeyHomeAssistantDiscoveryPrefix      string = "home_assistant_discovery_prefix"
	envKeyHomeAssistantRemoveRegexpFromName string = "home_assistant_remove_regexp_from_name"
)

var defaultConfig = map[string]interface{}{
	envKeyTahomaGatewayPin:                  undefined,
	envKeyTahomaPort:                        8443,
	envKeyTahomaToken:                       undefined,
	envKeyTahomaVerifyTls:                   false,
	envKeyTahomaPollInterval:                "1s",
	envKeyTahomaPollSeconds:                 deprecated,
	envKeyTahomaListenerTtl:                 "10m",
	envKeyTahomaListenerMaxRetries:          5,
	envKeyMqttUrl:                           undefined,
	envKeyMqttUsername:                      "",
	envKeyMqttPassword:                      "",
	envKeyMqttTopicPrefix:                   "tahoma",
	envKeyMqttNormalizeTopicName:            true,
	envKeyMqttRetain:                        false,
	envKeyRefreshAtStart:                    true,
	envKeyLogLevel:                          "INFO",
	envKeyInvertPosition:                    false,
	envKeyHealthCheckEnabled:                true,
	envKeyHealthCheckPort:                   8080,
	envKeyHomeAssistantDiscoveryEnabled:     false,
	envKeyHomeAssistantDiscoveryPrefix:      "homeassistant",
	envKeyHomeAssistantRemoveRegexpFromName: "",
}

// ReadConfig returns a Config assembled from config.yaml and env variables.
func ReadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	// Set the current directory where the binary is being run.
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	for key, value := range defaultConfig {
		if value != undefined && value != deprecated {
			viper.SetDefault(key, value)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, env variables may carry everything.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("ReadInConfig error: %w", err)
		}
	}

	// Check for deprecated and undefined fields.
	for fieldName, defaultValue := range defaultConfig {
		if defaultValue == deprecated && viper.IsSet(fieldName) {
			return nil, fmt.Errorf("deprecated field found in config: %s", fieldName)
		}
		if defaultValue == undefined && !viper.IsSet(fieldName) {
			return nil, fmt.Errorf("required field not found in config: %s", fieldName)
		}
	}

	config := &Config{
		Tahoma: ConfigTahoma{
			GatewayPin:         viper.GetString(envKeyTahomaGatewayPin),
			Port:               viper.GetInt(envKeyTahomaPort),
			Token:              viper.GetString(envKeyTahomaToken),
			VerifyTLS:          viper.GetBool(envKeyTahomaVerifyTls),
			PollInterval:       viper.GetDuration(envKeyTahomaPollInterval),
			ListenerTTL:        viper.GetDuration(envKeyTahomaListenerTtl),
			ListenerMaxRetries: viper.GetInt(envKeyTahomaListenerMaxRetries),
		},
		Mqtt: ConfigMqtt{
			MqttUrl:             viper.GetString(envKeyMqttUrl),
			Username:            viper.GetString(envKeyMqttUsername),
			Password:            viper.GetString(envKeyMqttPassword),
			TopicPrefix:         viper.GetString(envKeyMqttTopicPrefix),
			NormalizeDeviceName: viper.GetBool(envKeyMqttNormalizeTopicName),
			Retain:              viper.GetBool(envKeyMqttRetain),
		},
		HomeAssistant: ConfigHomeAssistant{
			DiscoveryEnabled:     viper.GetBool(envKeyHomeAssistantDiscoveryEnabled),
			DiscoveryTopicPrefix: viper.GetString(envKeyHomeAssistantDiscoveryPrefix),
			RemoveRegexpFromName: viper.GetString(envKeyHomeAssistantRemoveRegexpFromName),
			GatewayPin:           viper.GetString(envKeyTahomaGatewayPin),
			Retain:               viper.GetBool(envKeyMqttRetain),
		},
		HealthCheck: HealthCheckConfig{
			Enabled: viper.GetBool(envKeyHealthCheckEnabled),
			Port:    viper.GetInt(envKeyHealthCheckPort),
		},
		RefreshAtStart: viper.GetBool(envKeyRefreshAtStart),
		LogLevel:       viper.GetString(envKeyLogLevel),
		InvertPosition: viper.GetBool(envKeyInvertPosition),
	}

	return config, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%+v\n", c.Tahoma)
}
