// Package control implements the HTTP/WebSocket control-plane client:
// status polling, recording control, event injection, template and
// calibration retrieval, and a WebSocket-driven status notifier.
//
// The request/response and error-wrapping idiom is ported from the
// teacher's pkg/cloudflare Client (not part of this module; see DESIGN.md).
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/metrics"
	"github.com/ethan/neon-realtime/pkg/models"
	"github.com/ethan/neon-realtime/pkg/tracing"
)

// apiPath enumerates the device's REST/WebSocket endpoints, mirroring
// the reference implementation's APIPath enum.
type apiPath string

const (
	pathStatus              apiPath = "/status"
	pathRecordingStart       apiPath = "/recording:start"
	pathRecordingStopAndSave apiPath = "/recording:stop_and_save"
	pathRecordingCancel      apiPath = "/recording:cancel"
	pathEvent                apiPath = "/event"
	pathTemplateDefinition   apiPath = "/template_def"
	pathTemplateData         apiPath = "/template_data"
	pathCalibration          apiPath = "/../calibration.bin"
)

const apiPrefix = "/api"

// DeviceError reports a non-200 response from the control plane.
type DeviceError struct {
	Status  int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("control: device returned status %d: %s", e.Status, e.Message)
}

// envelope is the {result}/{message} wrapper every control-plane
// response uses.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// Client talks to one device's HTTP and WebSocket control-plane
// endpoints.
type Client struct {
	Address string
	Port    int

	httpClient *http.Client
	log        *logger.Logger

	// Metrics and Tracer are both optional; a nil value is a no-op, so
	// Client works without a Prometheus registry or OTel SDK wired up.
	Metrics *metrics.Metrics
	Tracer  *tracing.Tracer
}

// NewClient returns a Client targeting address:port.
func NewClient(address string, port int, log *logger.Logger) *Client {
	return &Client{
		Address: address,
		Port:    port,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

func (c *Client) apiURL(path apiPath) string {
	return fmt.Sprintf("http://%s:%d%s%s", c.Address, c.Port, apiPrefix, path)
}

func (c *Client) wsURL(path apiPath) string {
	return fmt.Sprintf("ws://%s:%d%s%s", c.Address, c.Port, apiPrefix, path)
}

func (c *Client) doJSON(ctx context.Context, method string, path apiPath, body any) (env envelope, err error) {
	ctx, end := c.Tracer.StartControlSpan(ctx, string(path))
	defer func() {
		end(err)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.Metrics.ObserveControlRequest(string(path), outcome)
	}()

	var reqBody io.Reader
	if body != nil {
		var b []byte
		b, err = json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, method, c.apiURL(path), reqBody)
	if err != nil {
		return envelope{}, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var resp *http.Response
	resp, err = c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var raw []byte
	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read response body: %w", err)
	}

	if len(raw) > 0 {
		if err = json.Unmarshal(raw, &env); err != nil {
			return envelope{}, fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK {
		err = &DeviceError{Status: resp.StatusCode, Message: env.Message}
		return envelope{}, err
	}

	return env, nil
}

// GetStatus retrieves the device's full current status.
func (c *Client) GetStatus(ctx context.Context) (*models.Status, error) {
	env, err := c.doJSON(ctx, http.MethodGet, pathStatus, nil)
	if err != nil {
		return nil, err
	}

	var components []json.RawMessage
	if err := json.Unmarshal(env.Result, &components); err != nil {
		return nil, fmt.Errorf("decode status result: %w", err)
	}

	parsed := make([]models.Component, 0, len(components))
	for _, raw := range components {
		comp, err := models.ParseComponent(raw)
		if err != nil {
			c.log.Warn("skipping unparseable status component", "error", err)
			continue
		}
		parsed = append(parsed, comp)
	}

	return models.FromComponents(parsed), nil
}

// RecordingStart starts a recording and returns its UUID.
func (c *Client) RecordingStart(ctx context.Context) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, pathRecordingStart, nil)
	if err != nil {
		return "", err
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return "", fmt.Errorf("decode recording start result: %w", err)
	}
	return result.ID, nil
}

// RecordingStopAndSave stops the active recording and saves it.
func (c *Client) RecordingStopAndSave(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodPost, pathRecordingStopAndSave, nil)
	return err
}

// RecordingCancel stops the active recording and discards it.
func (c *Client) RecordingCancel(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodPost, pathRecordingCancel, nil)
	return err
}

// SendEvent annotates the current (or a past, via timestampUnixNS)
// moment with a named event. A nil timestampUnixNS lets the device
// stamp the event on arrival.
func (c *Client) SendEvent(ctx context.Context, name string, timestampUnixNS *int64) (models.Event, error) {
	body := map[string]any{"name": name}
	if timestampUnixNS != nil {
		body["timestamp"] = *timestampUnixNS
	}

	env, err := c.doJSON(ctx, http.MethodPost, pathEvent, body)
	if err != nil {
		return models.Event{}, err
	}
	result := gjson.ParseBytes(env.Result)
	return models.Event{
		Name:        result.Get("name").String(),
		RecordingID: result.Get("recording_id").String(),
		TimestampNS: result.Get("timestamp").Int(),
	}, nil
}

// GetTemplate retrieves the active recording template's definition.
func (c *Client) GetTemplate(ctx context.Context) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodGet, pathTemplateDefinition, nil)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// GetTemplateData retrieves the answers recorded against the active
// template for a given recording ID.
func (c *Client) GetTemplateData(ctx context.Context, recordingID string) (json.RawMessage, error) {
	path := apiPath(fmt.Sprintf("%s?recording_id=%s", pathTemplateData, url.QueryEscape(recordingID)))
	env, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// PostTemplateData writes template answers for a given recording ID.
// Callers should validate answers with pkg/template before calling.
func (c *Client) PostTemplateData(ctx context.Context, recordingID string, data map[string]any) error {
	path := apiPath(fmt.Sprintf("%s?recording_id=%s", pathTemplateData, url.QueryEscape(recordingID)))
	_, err := c.doJSON(ctx, http.MethodPost, path, data)
	return err
}

// GetCalibration retrieves the device's raw calibration blob, for
// decoding with pkg/calibration.
func (c *Client) GetCalibration(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(pathCalibration), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get calibration: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calibration body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &DeviceError{Status: resp.StatusCode, Message: string(raw)}
	}
	return raw, nil
}

// StatusUpdateNotifier streams status component updates over a
// reconnecting WebSocket connection, invoking onUpdate for each decoded
// Component until ctx is canceled.
func (c *Client) StatusUpdateNotifier(ctx context.Context, onUpdate func(models.Component)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, _, err := dialer.DialContext(ctx, c.wsURL(pathStatus), nil)
		if err != nil {
			c.log.Warn("status websocket connect failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		c.runNotifierConnection(ctx, conn, onUpdate)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Client) runNotifierConnection(ctx context.Context, conn *websocket.Conn, onUpdate func(models.Component)) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.log.DebugStatus("status websocket closed", "error", err)
			return
		}

		component, err := models.ParseComponent(raw)
		if err != nil {
			c.log.Warn("skipping unparseable status update", "error", err)
			continue
		}
		onUpdate(component)
	}
}
