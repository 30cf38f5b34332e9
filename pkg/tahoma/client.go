package tahoma

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

// Client is the interface to the TaHoma gateway local API as used by this
// bridge. The interface is primarily to allow stubbing in tests.
type Client interface {
	// Connect validates the token against the gateway.
	Connect() error
	// Disconnect closes all idle connections.
	Disconnect() error

	// GetDevices enumerates all devices known to the gateway.
	GetDevices() ([]Device, error)
	// GetScenarios enumerates the stored action groups.
	GetScenarios() ([]Scenario, error)

	// ExecuteCommand submits a command for a device and returns the
	// execution id. It acknowledges queuing only; completion is reported
	// through the event feed.
	ExecuteCommand(deviceURL string, command Command) (string, error)
	// ExecuteScenario triggers a stored scenario and returns the
	// execution id.
	ExecuteScenario(oid string) (string, error)

	// RegisterEvents creates an event listener session on the gateway.
	RegisterEvents() (string, error)
	// FetchEvents returns the events buffered since the last fetch. Must
	// not be called more than once per MinPollInterval.
	FetchEvents(listenerId string) ([]Event, error)
	// UnregisterEvents destroys the listener session. Best effort.
	UnregisterEvents(listenerId string) error
}

// client implements the Client interface over HTTPS.
// Clients are safe for concurrent use by multiple goroutines.
type client struct {
	httpClient *http.Client
	options    ClientOptions
	baseURL    string
}

// NewClient will create a TaHoma client with all the options specified in
// the provided ClientOptions.
func NewClient(options *ClientOptions) Client {
	return &client{
		httpClient: &http.Client{
			Timeout: options.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !options.VerifyTLS,
				},
			},
		},
		options: *options,
		baseURL: options.baseURL(),
	}
}

func (c *client) Connect() error {
	// The local API has no login call; listing the gateway setup validates
	// the token and reachability in one request.
	if _, err := c.getRequest("setup/gateways"); err != nil {
		return fmt.Errorf("error validating gateway connection: %w", err)
	}
	log.Info().Str("gateway", c.options.GatewayPin).Msg("Connected to TaHoma gateway.")
	return nil
}

func (c *client) Disconnect() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *client) GetDevices() ([]Device, error) {
	response, err := c.getRequest("setup/devices")
	return wrapApiResponseList[Device](response, err)
}

func (c *client) GetScenarios() ([]Scenario, error) {
	response, err := c.getRequest("actionGroups")
	return wrapApiResponseList[Scenario](response, err)
}

func (c *client) ExecuteCommand(deviceURL string, command Command) (string, error) {
	body := map[string]interface{}{
		"label": "tahoma-mqtt control",
		"actions": []map[string]interface{}{
			{
				"deviceURL": deviceURL,
				"commands":  []Command{command},
			},
		},
	}
	response, err := c.postRequest("exec/apply", body)
	return execId(response, err)
}

func (c *client) ExecuteScenario(oid string) (string, error) {
	response, err := c.postRequest("exec/"+url.PathEscape(oid), nil)
	return execId(response, err)
}

func (c *client) RegisterEvents() (string, error) {
	response, err := c.postRequest("events/register", nil)
	res, err := wrapApiResponse[listenerResponse](response, err)
	if err != nil {
		return "", err
	}
	log.Info().Str("listenerId", res.Id).Msg("Registered event listener.")
	return res.Id, nil
}

func (c *client) FetchEvents(listenerId string) ([]Event, error) {
	response, err := c.postRequest("events/"+url.PathEscape(listenerId)+"/fetch", nil)
	return wrapApiResponseList[Event](response, err)
}

func (c *client) UnregisterEvents(listenerId string) error {
	_, err := c.postRequest("events/"+url.PathEscape(listenerId)+"/unregister", nil)
	return err
}

type listenerResponse struct {
	Id string `mapstructure:"id"`
}

type execResponse struct {
	ExecId string `mapstructure:"execId"`
}

func execId(response interface{}, err error) (string, error) {
	res, err := wrapApiResponse[execResponse](response, err)
	if err != nil {
		return "", err
	}
	return res.ExecId, nil
}

func (c *client) getRequest(path string) (interface{}, error) {
	return c.doRequest(http.MethodGet, path, nil)
}

func (c *client) postRequest(path string, body interface{}) (interface{}, error) {
	return c.doRequest(http.MethodPost, path, body)
}

// doRequest performs a request against the gateway, mapping failures to
// the error taxonomy and returning the decoded JSON body.
func (c *client) doRequest(method string, path string, body interface{}) (interface{}, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}
	callUrl := c.baseURL + "/" + path

	request, err := http.NewRequest(method, callUrl, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error building the request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.options.Token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	responseBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("error reading the response: %w", readErr)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		// Body may not be JSON on proxy-level failures; the zero apiError
		// falls through to the generic gateway error.
		_ = json.Unmarshal(responseBody, &apiErr)
		return nil, fmt.Errorf("request to %s failed: %w", path, sentinelForResponse(resp.StatusCode, apiErr))
	}

	log.Trace().
		Str("url", callUrl).
		Str("status", resp.Status).
		Str("body", string(responseBody)).
		Msg("Response received")

	if len(responseBody) == 0 {
		return nil, nil
	}
	var jsonResponse interface{}
	if err := json.Unmarshal(responseBody, &jsonResponse); err != nil {
		return nil, fmt.Errorf("error parsing response for path %s: %w", path, err)
	}
	return jsonResponse, nil
}

// wrapApiResponse takes a generic response interface and maps it to the
// given structure. This is used to decode the generic JSON responses into
// explicit structs.
func wrapApiResponse[T any](response interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}

	res := new(T)
	config := &mapstructure.DecoderConfig{
		Result:           res,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("error building decoder: %w", err)
	}
	if err := decoder.Decode(response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return res, nil
}

// wrapApiResponseList decodes responses whose top level is a JSON array.
func wrapApiResponseList[T any](response interface{}, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, nil
	}

	var res []T
	config := &mapstructure.DecoderConfig{
		Result:           &res,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("error building decoder: %w", err)
	}
	if err := decoder.Decode(response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return res, nil
}
