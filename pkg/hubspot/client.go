// Package hubspot provides bearer-authenticated access to the HubSpot CRM
// v3/v4 REST API.
package hubspot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the CRM API operations used by the deal pipeline.
type Client interface {
	// GetRecord fetches a single CRM object by ID with the given properties.
	GetRecord(ctx context.Context, objectType, objectID string, properties []string) (*Record, error)
	// ListAssociations returns all association links from a deal to the given
	// object type, following pagination until exhausted.
	ListAssociations(ctx context.Context, dealID, toObjectType string) ([]Association, error)
	// BatchRead resolves a list of object IDs into full records. An empty ID
	// list short-circuits to an empty result without a network call.
	BatchRead(ctx context.Context, objectType string, objectIDs []string, properties []string) ([]Record, error)
}

// Record is a CRM object: an ID plus its requested property values.
// HubSpot serializes every property value as a string.
type Record struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Property returns the named property value, or "" when absent.
func (r Record) Property(name string) string {
	return r.Properties[name]
}

// Association is a directed link from a deal to another CRM object.
type Association struct {
	ToObjectID int64 `json:"toObjectId"`
}

// ToObjectIDString returns the linked object ID in the string form the
// batch-read endpoint expects.
func (a Association) ToObjectIDString() string {
	return strconv.FormatInt(a.ToObjectID, 10)
}

// APIError is a non-success response from the HubSpot API. The status code
// and body are preserved for diagnostics; the caller never retries.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot: api status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a HubSpot 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return eris.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Option configures the HubSpot client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for API calls. HubSpot private
// apps are capped at 100 requests per 10s; the limiter is off by default.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new HubSpot client authenticated with a private-app
// access token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.hubapi.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one authenticated request and returns the response body.
// A non-2xx response becomes an *APIError; there is no retry, a failed page
// or batch fails the whole fetch.
func (c *httpClient) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	if c.token == "" {
		return nil, eris.New("hubspot: access token not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "hubspot: rate limit")
		}
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "hubspot: marshal request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
