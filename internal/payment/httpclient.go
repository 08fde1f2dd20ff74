package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// statusTransportError tags failures that never reached the terminal.
	statusTransportError = -1

	defaultHTTPTimeout = 2 * time.Minute
)

// HTTPClient talks to a terminal exposing the local REST bridge. Results
// are delivered on a separate goroutine, matching the SDK callback shape.
type HTTPClient struct {
	base   string
	creds  Credentials
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPClient builds a client for the terminal at base (scheme://host:port).
func NewHTTPClient(base string, creds Credentials, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPClient{
		base:   strings.TrimRight(base, "/"),
		creds:  creds,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", c.creds.ClientID)
	req.Header.Set("X-Client-Name", c.creds.ClientName)
	req.Header.Set("X-Api-Key", c.creds.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// terminalEnvelope is the REST bridge's uniform response wrapper.
type terminalEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *HTTPClient) exchange(ctx context.Context, method, path string, body interface{}) (*terminalEnvelope, error) {
	var envelope terminalEnvelope
	httpStatus, err := c.do(ctx, method, path, body, &envelope)
	if err != nil {
		return nil, err
	}
	if httpStatus < 200 || httpStatus >= 300 {
		return nil, &TerminalError{Status: envelope.Status, Message: envelope.Message}
	}
	return &envelope, nil
}

func (c *HTTPClient) StartPayment(ctx context.Context, req SaleRequest, l ResultListener) {
	go func() {
		envelope, err := c.exchange(ctx, http.MethodPost, "/v1/payment", req)
		if err != nil {
			c.deliverError(l.OnError, err)
			return
		}
		var result Result
		if err := json.Unmarshal(envelope.Data, &result); err != nil {
			l.OnError(statusTransportError, err.Error())
			return
		}
		l.OnResult(result)
	}()
}

func (c *HTTPClient) RequestVoid(ctx context.Context, req VoidRequest, l ResultListener) {
	go func() {
		envelope, err := c.exchange(ctx, http.MethodPost, "/v1/void", req)
		if err != nil {
			c.deliverError(l.OnError, err)
			return
		}
		var result Result
		if err := json.Unmarshal(envelope.Data, &result); err != nil {
			l.OnError(statusTransportError, err.Error())
			return
		}
		if result.Status == 0 {
			result.Status = envelope.Status
			result.Message = envelope.Message
		}
		l.OnResult(result)
	}()
}

func (c *HTTPClient) RequestStatus(ctx context.Context, req StatusRequest, l StatusListener) {
	go func() {
		envelope, err := c.exchange(ctx, http.MethodPost, "/v1/status", req)
		if err != nil {
			c.deliverError(l.OnError, err)
			return
		}
		var status TxStatus
		if err := json.Unmarshal(envelope.Data, &status); err != nil {
			l.OnError(statusTransportError, err.Error())
			return
		}
		l.OnStatus(status)
	}()
}

func (c *HTTPClient) RequestProfiles(ctx context.Context, l ProfileListener) {
	go func() {
		envelope, err := c.exchange(ctx, http.MethodGet, "/v1/profiles", nil)
		if err != nil {
			c.deliverError(l.OnError, err)
			return
		}
		var profiles []Profile
		if err := json.Unmarshal(envelope.Data, &profiles); err != nil {
			l.OnError(statusTransportError, err.Error())
			return
		}
		l.OnProfiles(profiles)
	}()
}

func (c *HTTPClient) deliverError(onError func(int, string), err error) {
	var terminalErr *TerminalError
	if errors.As(err, &terminalErr) {
		onError(terminalErr.Status, terminalErr.Message)
		return
	}
	c.logger.WithError(err).Warn("Terminal request failed before reaching the terminal")
	onError(statusTransportError, err.Error())
}
