// Package solarapi queries the Google Solar building insights endpoint.
package solarapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/solarbatch/internal/domain/jsonvalue"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
	"github.com/okian/solarbatch/pkg/metrics"
)

// DefaultEndpoint is the building insights lookup closest to a point.
const DefaultEndpoint = "https://solar.googleapis.com/v1/buildingInsights:findClosest"

// Query parameter names.
const (
	paramLatitude  = "location.latitude"
	paramLongitude = "location.longitude"
	paramQuality   = "requiredQuality"
	paramKey       = "key"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client performs one GET per lookup. It never retries and never caches.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the transport. Its Timeout is the only request deadline.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(cl *Client) {
		if endpoint != "" {
			cl.endpoint = endpoint
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		endpoint:   DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("solarapi")
	}
	return c
}

// Query builds the lookup parameters for one coordinate. requiredQuality is
// only present when set.
func Query(apiKey string, c model.CoordinateRequest) url.Values {
	q := url.Values{}
	q.Set(paramLatitude, jsonvalue.FormatFloat(c.Latitude))
	q.Set(paramLongitude, jsonvalue.FormatFloat(c.Longitude))
	if c.RequiredQuality != model.QualityUnset {
		q.Set(paramQuality, string(c.RequiredQuality))
	}
	q.Set(paramKey, apiKey)
	return q
}

// FindClosest returns the raw building insights document for c.
// Every failure is an *ExternalAPIError.
func (c *Client) FindClosest(ctx context.Context, apiKey string, coord model.CoordinateRequest) (jsonvalue.Value, error) {
	const op = "solarapi.find_closest"

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return jsonvalue.Value{}, &ExternalAPIError{Message: fmt.Sprintf("%s: invalid endpoint: %v", op, err), Err: err}
	}
	q := Query(apiKey, coord)
	u.RawQuery = q.Encode()

	q.Set(paramKey, "REDACTED")
	c.logger.Debug(ctx, "fetching building insights", logger.String("params", q.Encode()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return jsonvalue.Value{}, &ExternalAPIError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	metrics.AddInflightFetches(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.AddInflightFetches(-1)
	metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		metrics.RecordExternalAPIError("0")
		return jsonvalue.Value{}, &ExternalAPIError{Message: redact(err.Error(), apiKey), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordExternalAPIError(strconv.Itoa(resp.StatusCode))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return jsonvalue.Value{}, statusError(resp.StatusCode, googleErrorMessage(body))
	}

	doc, err := jsonvalue.Decode(resp.Body)
	if err != nil {
		metrics.RecordExternalAPIError(strconv.Itoa(resp.StatusCode))
		return jsonvalue.Value{}, &ExternalAPIError{StatusCode: resp.StatusCode, Message: "malformed response body: " + err.Error(), Err: err}
	}
	return doc, nil
}

// googleErrorMessage extracts error.message from a Google API error envelope:
//
//	{"error": {"code": 404, "message": "...", "status": "NOT_FOUND"}}
func googleErrorMessage(body []byte) string {
	doc, err := jsonvalue.Parse(body)
	if err != nil {
		return ""
	}
	envelope, ok := doc.Get("error")
	if !ok || envelope.Kind() != jsonvalue.KindObject {
		return ""
	}
	msg, ok := envelope.Get("message")
	if !ok || msg.Kind() != jsonvalue.KindString {
		return ""
	}
	return msg.Text()
}

// redact removes the API key from transport errors, which embed the request URL.
func redact(s, apiKey string) string {
	if apiKey == "" {
		return s
	}
	for _, form := range []string{url.QueryEscape(apiKey), apiKey} {
		s = strings.ReplaceAll(s, form, "REDACTED")
	}
	return s
}
