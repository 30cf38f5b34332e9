package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadConfig(t *testing.T) {
	os.Setenv("TAHOMA_GATEWAY_PIN", "2001-0001-1891")
	os.Setenv("TAHOMA_TOKEN", "secret-token")
	os.Setenv("MQTT_URL", "tcp://localhost:1883")
	defer os.Clearenv()

	c, err := ReadConfig()
	if err != nil {
		t.Fail()
		t.Logf("Error found: %s", err.Error())
	}

	assert.Equal(t, "2001-0001-1891", c.Tahoma.GatewayPin, "TaHoma gateway pin is wrong.")
	assert.Equal(t, "secret-token", c.Tahoma.Token, "TaHoma token is wrong.")
	assert.Equal(t, 8443, c.Tahoma.Port, "TaHoma port default is wrong.")
	assert.Equal(t, 1*time.Second, c.Tahoma.PollInterval, "Poll interval default is wrong.")
	assert.Equal(t, 10*time.Minute, c.Tahoma.ListenerTTL, "Listener ttl default is wrong.")
	assert.Equal(t, 5, c.Tahoma.ListenerMaxRetries, "Listener retries default is wrong.")
	assert.Equal(t, "tahoma", c.Mqtt.TopicPrefix, "MQTT prefix is wrong.")
	assert.Equal(t, "2001-0001-1891", c.HomeAssistant.GatewayPin, "Home assistant gateway pin is wrong.")
}

func TestReadConfigMissingRequiredFields(t *testing.T) {
	os.Clearenv()
	os.Setenv("TAHOMA_GATEWAY_PIN", "2001-0001-1891")
	os.Setenv("TAHOMA_TOKEN", "secret-token")

	_, err := ReadConfig()
	assert.EqualError(t, err, "required field not found in config: mqtt_url")
	os.Clearenv()
}

func TestReadConfigWithDeprecatedFields(t *testing.T) {
	os.Clearenv()
	os.Setenv("TAHOMA_GATEWAY_PIN", "2001-0001-1891")
	os.Setenv("TAHOMA_TOKEN", "secret-token")
	os.Setenv("MQTT_URL", "tcp://localhost:1883")
	os.Setenv("TAHOMA_POLL_SECONDS", "2")

	_, err := ReadConfig()
	assert.EqualError(t, err, "deprecated field found in config: tahoma_poll_seconds")
	os.Clearenv()
}
