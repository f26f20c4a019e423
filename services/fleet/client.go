package fleet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/upb/fleet-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	providerName   = "fleet"
	defaultBaseURL = "https://my.geotab.com"
	apiPath        = "/apiv1"

	typeNameDevice           = "Device"
	typeNameDeviceStatusInfo = "DeviceStatusInfo"

	// thisServer is returned by Authenticate when the session lives on the
	// server that was called.
	thisServer = "ThisServer"
)

// Provider error codes that mean the session must be re-established.
var sessionErrorCodes = map[string]bool{
	"InvalidUserException":   true,
	"DbUnavailableException": true,
}

// Config holds fleet provider connection settings.
type Config struct {
	providers.ProviderConfig

	Database string
	UserName string
	Password string
}

// Client calls the fleet-telemetry provider's JSON-RPC API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	apiURL      string
	credentials *Credentials
}

// NewClient creates a new fleet client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
		apiURL: strings.TrimRight(config.BaseURL, "/") + apiPath,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// GetDevices lists every device visible to the configured user.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	return getEntities[Device](ctx, c, typeNameDevice)
}

// GetDeviceStatus returns the latest status of every device.
func (c *Client) GetDeviceStatus(ctx context.Context) ([]DeviceStatusInfo, error) {
	return getEntities[DeviceStatusInfo](ctx, c, typeNameDeviceStatusInfo)
}

// Authenticate opens a new session and remembers it for later calls.
func (c *Client) Authenticate(ctx context.Context) (*Credentials, error) {
	if c.config.UserName == "" || c.config.Password == "" || c.config.Database == "" {
		return nil, providers.NewProviderError(providerName, "MISSING_CREDENTIALS", "Fleet credentials are not configured", 0, false, nil)
	}

	params := map[string]string{
		"database": c.config.Database,
		"userName": c.config.UserName,
		"password": c.config.Password,
	}

	var result authenticateResult
	if err := c.call(ctx, c.currentURL(), "Authenticate", params, &result); err != nil {
		return nil, err
	}
	if result.Credentials.SessionID == "" {
		return nil, providers.NewProviderError(providerName, "INVALID_SESSION", "Authenticate returned no session", 0, false, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	creds := result.Credentials
	c.credentials = &creds
	if result.Path != "" && !strings.EqualFold(result.Path, thisServer) {
		c.apiURL = serverURL(result.Path)
	}

	c.logger.Info("fleet session established",
		zap.String("database", creds.Database),
		zap.String("user", creds.UserName))

	return &creds, nil
}

// getEntities issues a Get for typeName, authenticating first when needed and
// re-authenticating once when the provider rejects the session.
func getEntities[T any](ctx context.Context, c *Client, typeName string) ([]T, error) {
	var out []T
	err := c.withSession(ctx, func(creds *Credentials) error {
		params := getParams{TypeName: typeName, Credentials: creds}
		out = nil
		return c.call(ctx, c.currentURL(), "Get", params, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", typeName, err)
	}
	return out, nil
}

func (c *Client) withSession(ctx context.Context, fn func(*Credentials) error) error {
	creds, err := c.session(ctx)
	if err != nil {
		return err
	}

	err = fn(creds)
	if err == nil || !sessionErrorCodes[providers.ErrorCode(err)] {
		return err
	}

	c.logger.Warn("fleet session rejected, re-authenticating", zap.Error(err))
	c.resetSession()

	creds, err = c.session(ctx)
	if err != nil {
		return err
	}
	return fn(creds)
}

func (c *Client) session(ctx context.Context) (*Credentials, error) {
	c.mu.Lock()
	creds := c.credentials
	c.mu.Unlock()

	if creds != nil {
		return creds, nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = nil
}

func (c *Client) currentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiURL
}

// call performs one JSON-RPC method call. Transport failures, 5xx and 429
// responses are retried with exponential backoff up to MaxRetries times.
func (c *Client) call(ctx context.Context, url, method string, params interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		Method: method,
		Params: params,
		ID:     uuid.NewString(),
	})
	if err != nil {
		return providers.NewProviderError(providerName, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryDelay

	respBody, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.post(ctx, url, reqBody)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Debug("retrying fleet request",
				zap.String("method", method),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "Failed to unmarshal response", http.StatusOK, false, err)
	}
	if resp.Error != nil {
		return resp.Error.toProviderError()
	}
	if len(resp.Result) == 0 {
		return providers.NewProviderError(providerName, "EMPTY_RESULT", "Response carried no result", http.StatusOK, false, nil)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "Failed to decode result", http.StatusOK, false, err)
	}
	return nil
}

// post sends one HTTP request. Non-retryable failures are marked permanent.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(providers.NewProviderError(providerName, "REQUEST_ERROR", "Failed to create request", 0, false, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, providers.NewProviderError(providerName, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		provErr := providers.NewProviderError(providerName, "HTTP_STATUS",
			fmt.Sprintf("Unexpected status %d", httpResp.StatusCode),
			httpResp.StatusCode, providers.RetryableStatus(httpResp.StatusCode), nil)
		if !provErr.Retryable {
			return nil, backoff.Permanent(provErr)
		}
		return nil, provErr
	}

	return respBody, nil
}

func serverURL(path string) string {
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		path = "https://" + path
	}
	return path + apiPath
}

// JSON-RPC wire types

type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
	ID     string      `json:"id,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Data    *struct {
		Type string `json:"type"`
	} `json:"data,omitempty"`
	Errors []struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	} `json:"errors,omitempty"`
}

func (e *rpcError) toProviderError() *providers.ProviderError {
	code := e.Name
	if e.Data != nil && e.Data.Type != "" {
		code = e.Data.Type
	}
	if len(e.Errors) > 0 && e.Errors[0].Name != "" {
		code = e.Errors[0].Name
	}
	message := e.Message
	if message == "" {
		message = "Fleet provider returned an error"
	}
	return providers.NewProviderError(providerName, code, message, http.StatusOK, false, nil)
}

type authenticateResult struct {
	Credentials Credentials `json:"credentials"`
	Path        string      `json:"path"`
}

type getParams struct {
	TypeName    string       `json:"typeName"`
	Credentials *Credentials `json:"credentials"`
}
