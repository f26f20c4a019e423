// Package geocoding resolves coordinates to places through a Nominatim-style
// reverse-geocoding provider.
package geocoding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/upb/fleet-gateway/services/providers"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	providerName   = "geocoding"
	defaultBaseURL = "https://nominatim.openstreetmap.org"
	reversePath    = "/reverse"
)

// Config holds geocoding provider settings.
type Config struct {
	providers.ProviderConfig

	// RatePerSecond bounds outbound requests; public Nominatim allows one per second.
	RatePerSecond float64

	// Language is sent as accept-language when set.
	Language string
}

// Place is a resolved address.
type Place struct {
	DisplayName string  `json:"displayName"`
	Road        string  `json:"road,omitempty"`
	HouseNumber string  `json:"houseNumber,omitempty"`
	Suburb      string  `json:"suburb,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Postcode    string  `json:"postcode,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Client calls the reverse-geocoding provider.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new geocoding client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
		logger:  logger,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// Reverse resolves lat/lng to the nearest known place.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(providerName, CodeRateLimited, "Rate limiter wait aborted", 0, false, err)
	}

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("addressdetails", "1")
	if c.config.APIKey != "" {
		query.Set("key", c.config.APIKey)
	}
	if c.config.Language != "" {
		query.Set("accept-language", c.config.Language)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + reversePath + "?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
	}

	c.logger.Debug("reverse geocode",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if httpResp.StatusCode != http.StatusOK {
		return nil, providers.NewProviderError(providerName, "HTTP_STATUS",
			fmt.Sprintf("Unexpected status %d", httpResp.StatusCode),
			httpResp.StatusCode, providers.RetryableStatus(httpResp.StatusCode), nil)
	}

	var resp reverseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	if resp.Error != "" {
		return nil, providers.NewProviderError(providerName, CodeNotFound, resp.Error, httpResp.StatusCode, false, nil)
	}

	return resp.toPlace(lat, lng), nil
}

// Error codes callers branch on.
const (
	// CodeNotFound is reported when no place matches the coordinates.
	CodeNotFound = "NOT_FOUND"

	// CodeRateLimited is reported when the outbound limiter could not admit
	// the request before the context ended.
	CodeRateLimited = "RATE_LIMITED"
)

type reverseResponse struct {
	Error       string `json:"error"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		Road          string `json:"road"`
		HouseNumber   string `json:"house_number"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		State         string `json:"state"`
		Postcode      string `json:"postcode"`
		Country       string `json:"country"`
		CountryCode   string `json:"country_code"`
	} `json:"address"`
}

func (r reverseResponse) toPlace(lat, lng float64) *Place {
	place := &Place{
		DisplayName: r.DisplayName,
		Road:        r.Address.Road,
		HouseNumber: r.Address.HouseNumber,
		Suburb:      firstNonEmpty(r.Address.Suburb, r.Address.Neighbourhood),
		City:        firstNonEmpty(r.Address.City, r.Address.Town, r.Address.Village),
		State:       r.Address.State,
		Postcode:    r.Address.Postcode,
		Country:     r.Address.Country,
		CountryCode: strings.ToUpper(r.Address.CountryCode),
		Latitude:    lat,
		Longitude:   lng,
	}
	// prefer the matched object's coordinates
	if v, err := strconv.ParseFloat(r.Lat, 64); err == nil {
		place.Latitude = v
	}
	if v, err := strconv.ParseFloat(r.Lon, 64); err == nil {
		place.Longitude = v
	}
	return place
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
