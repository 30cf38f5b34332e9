package tahoma

import (
	"fmt"
	"time"
)

const (
	// Vendor-mandated minimum delay between two event fetches.
	MinPollInterval = 1 * time.Second

	defaultPort            = 8443
	defaultRequestTimeout  = 10 * time.Second
	defaultListenerTTL     = 10 * time.Minute
	defaultListenerRetries = 5
	defaultExecutionTTL    = 5 * time.Minute
)

// ClientOptions contains configurable options for a TaHoma client.
type ClientOptions struct {
	// GatewayPin identifies the gateway (e.g. "2001-0001-1891"). The local
	// API host name is derived from it.
	GatewayPin string
	Port       int
	// Token is the bearer token generated in the TaHoma app Developer Mode.
	Token string
	// VerifyTLS controls certificate verification. The local gateway ships
	// a self-signed certificate, so this is off by default.
	VerifyTLS      bool
	RequestTimeout time.Duration
	// PollInterval is the cadence of the event fetch loop. Values below
	// MinPollInterval are clamped by the synchronizer.
	PollInterval time.Duration
	// ListenerTTL is the advertised inactivity window after which the
	// gateway drops an event listener session.
	ListenerTTL time.Duration
	// ListenerMaxRetries bounds consecutive listener re-registration
	// failures before the synchronizer reports a connectivity fault.
	ListenerMaxRetries int
	// ExecutionTTL is the ceiling after which a pending execution is
	// garbage collected regardless of its status.
	ExecutionTTL time.Duration
}

// NewClientOptions will create a new ClientOptions type with default
// values.
//
//	Port: 8443
//	VerifyTLS: false
//	RequestTimeout: 10 seconds
//	PollInterval: 1 second
//	ListenerTTL: 10 minutes
//	ListenerMaxRetries: 5
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		Port:               defaultPort,
		VerifyTLS:          false,
		RequestTimeout:     defaultRequestTimeout,
		PollInterval:       MinPollInterval,
		ListenerTTL:        defaultListenerTTL,
		ListenerMaxRetries: defaultListenerRetries,
		ExecutionTTL:       defaultExecutionTTL,
	}
}

// SetGatewayPin will set the PIN of the gateway to connect to.
func (o *ClientOptions) SetGatewayPin(pin string) *ClientOptions {
	o.GatewayPin = pin
	return o
}

// SetPort will set the port of the local gateway API.
func (o *ClientOptions) SetPort(port int) *ClientOptions {
	o.Port = port
	return o
}

// SetToken will set the bearer token used to authenticate requests.
func (o *ClientOptions) SetToken(token string) *ClientOptions {
	o.Token = token
	return o
}

// SetVerifyTLS will enable or disable certificate verification.
func (o *ClientOptions) SetVerifyTLS(verify bool) *ClientOptions {
	o.VerifyTLS = verify
	return o
}

// SetPollInterval will set the event fetch cadence.
func (o *ClientOptions) SetPollInterval(interval time.Duration) *ClientOptions {
	o.PollInterval = interval
	return o
}

// SetListenerTTL will set the listener inactivity window.
func (o *ClientOptions) SetListenerTTL(ttl time.Duration) *ClientOptions {
	o.ListenerTTL = ttl
	return o
}

// SetListenerMaxRetries will set the consecutive re-registration failure
// ceiling.
func (o *ClientOptions) SetListenerMaxRetries(retries int) *ClientOptions {
	o.ListenerMaxRetries = retries
	return o
}

// baseURL returns the root of the local enduser API for this gateway.
func (o *ClientOptions) baseURL() string {
	return fmt.Sprintf("https://gateway-%s.local:%d/enduser-mobile-web/1/enduserAPI", o.GatewayPin, o.Port)
}
