package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/rs/zerolog/log"
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

type Health interface {
	Start() error
	Stop() error
}

const shutdownTimeout = 30 * time.Second

type health struct {
	config     config.HealthCheckConfig
	mqttClient mqtt.Client
	health     *healthgo.Health

	server *http.Server
}

func NewHealth(config config.HealthCheckConfig, mqttClient mqtt.Client, bridge *tahoma.Bridge) Health {
	h, _ := healthgo.New(healthgo.WithComponent(healthgo.Component{
		Name:    "tahoma-mqtt",
		Version: "v1.0",
	}),
	)

	err := h.Register(healthgo.Config{
		Name:      "mqtt",
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			if mqttClient.RawClient().IsConnectionOpen() {
				return nil
			}
			return errors.New("MQTT client is not connected")
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Unable to register MQTT healthcheck")
		return nil
	}

	// The gateway check degrades rather than fails while the listener is
	// being re-registered; only a full disconnect is unhealthy.
	err = h.Register(healthgo.Config{
		Name:      "tahoma-gateway",
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			if bridge.Status() == tahoma.StatusDisconnected {
				return errors.New("TaHoma gateway is not connected")
			}
			return nil
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Unable to register gateway healthcheck")
		return nil
	}

	return &health{
		config:     config,
		mqttClient: mqttClient,
		health:     h,
	}
}

func (h *health) Start() error {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", h.config.Port)
	h.server = &http.Server{Addr: listenAddr, Handler: h.service()}
	go func() {
		log.Info().Msgf("Starting health check server on %s", listenAddr)
		err := h.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Unable to start health check server")
		}
	}()
	return nil
}

func (h *health) Stop() error {
	// The deadline starts counting here, not at Start, so a long-lived
	// server still gets the full window to drain.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("Health check server stopped")
	return nil
}

func (h *health) service() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health.HandlerFunc)
	r.Get("/health/ready", h.health.HandlerFunc)
	r.Get("/health/live", h.health.HandlerFunc)
	return r
}
