package health

import (
	"testing"
	"time"

	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthServerStartStop(t *testing.T) {
	mqttClient := mqtt.NewClient(mqtt.NewClientOptions().SetMqttUrl("tcp://127.0.0.1:1"))
	bridge := tahoma.NewBridge(tahoma.NewClientOptions().SetGatewayPin("1234-5678-9012"))

	// Port 0 lets the kernel pick a free port, nothing queries the
	// endpoints here.
	h := NewHealth(config.HealthCheckConfig{Enabled: true, Port: 0}, mqttClient, bridge)
	require.NotNil(t, h)

	assert.NoError(t, h.Start())
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, h.Stop())
}
