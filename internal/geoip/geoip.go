package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var ErrLookupFailed = errors.New("geoip lookup failed")

// Resolver maps an IP address to an ISO 3166-1 alpha-2 country code. The DDoS
// protector only consults it when geographic filtering is enabled.
type Resolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// HTTPResolver queries an ip-api.com style JSON endpoint:
// GET {base}/{ip} -> {"status":"success","countryCode":"US"}.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver builds a resolver against the given base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	Message     string `json:"message"`
}

// Country resolves the country code for an IP.
func (r *HTTPResolver) Country(ctx context.Context, ip string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=status,message,countryCode", r.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build geoip request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}
	if body.Status != "success" || body.CountryCode == "" {
		return "", fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}

	return body.CountryCode, nil
}
