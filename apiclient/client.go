// Package apiclient is the HTTP and gRPC client for the driver service.
// Every state-changing method performs exactly one call and surfaces the
// raw outcome (status code and body) undecoded; deciding whether a given
// status is a pass or a failure belongs to the test, not to the client.
// The client never retries.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"
	"github.com/fleetops/driver-contract-tests/servicedef"
)

// Outcome is the raw result of one HTTP call: the status code and the
// unparsed response body. 200/201/204/400/404/409 are all meaningful
// outcomes for the driver API, so nothing here is treated as an error.
type Outcome struct {
	Status int
	Body   []byte
}

// DecodeJSON parses the outcome body into target.
func (o Outcome) DecodeJSON(target interface{}) error {
	if err := json.Unmarshal(o.Body, target); err != nil {
		return fmt.Errorf("malformed response body (status %d): %w", o.Status, err)
	}
	return nil
}

// BodyField decodes the body as a JSON object and returns one top-level
// field, or nil if the body is not an object or the field is absent.
func (o Outcome) BodyField(name string) interface{} {
	var m map[string]interface{}
	if json.Unmarshal(o.Body, &m) != nil {
		return nil
	}
	return m[name]
}

func (o Outcome) String() string {
	return fmt.Sprintf("HTTP %d: %s", o.Status, string(o.Body))
}

// Client talks to the driver service's REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

func New(baseURL string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithLogger returns a copy of the client that logs to the given logger,
// typically a test scope's debug logger.
func (c *Client) WithLogger(logger logging.Logger) *Client {
	return &Client{baseURL: c.baseURL, httpClient: c.httpClient, logger: logger}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (Outcome, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Outcome{}, err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	c.logger.Printf("%s %s -> %d", method, path, resp.StatusCode)
	return Outcome{Status: resp.StatusCode, Body: data}, nil
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (Outcome, error) {
	return c.do(ctx, "GET", servicedef.HealthPath, nil)
}

// CreateDriver registers a driver. On a 201 the returned key is the new
// driver's id, which is the correlation identity for every driver-scoped
// event and resource; otherwise the key is empty and the outcome carries
// the rejection.
func (c *Client) CreateDriver(ctx context.Context, payload map[string]interface{}) (Outcome, string, error) {
	outcome, err := c.do(ctx, "POST", servicedef.DriversPath, payload)
	if err != nil {
		return outcome, "", err
	}
	var id string
	if outcome.Status == http.StatusCreated {
		id, _ = outcome.BodyField("id").(string)
	}
	return outcome, id, nil
}

// GetDriver fetches a driver by id.
func (c *Client) GetDriver(ctx context.Context, driverID string) (Outcome, error) {
	return c.do(ctx, "GET", servicedef.DriverPath(driverID), nil)
}

// UpdateDriver replaces a driver's mutable fields. Only the fields present
// in payload are changed; the service leaves the rest as they are.
func (c *Client) UpdateDriver(ctx context.Context, driverID string, payload map[string]interface{}) (Outcome, error) {
	return c.do(ctx, "PUT", servicedef.DriverPath(driverID), payload)
}

// DriverListQuery selects and pages the driver list. Zero values are
// omitted from the query; the rating bounds are pointers because zero is a
// meaningful bound.
type DriverListQuery struct {
	Status    string
	MinRating *float64
	MaxRating *float64
	Limit     int
	Offset    int
}

// ListDrivers fetches a page of the driver list. The response body is an
// envelope carrying drivers, total, limit, offset, and has_more.
func (c *Client) ListDrivers(ctx context.Context, q DriverListQuery) (Outcome, error) {
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.MinRating != nil {
		query.Set("min_rating", fmt.Sprintf("%g", *q.MinRating))
	}
	if q.MaxRating != nil {
		query.Set("max_rating", fmt.Sprintf("%g", *q.MaxRating))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	path := servicedef.DriversPath
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, "GET", path, nil)
}

// ListActiveDrivers fetches the active driver list.
func (c *Client) ListActiveDrivers(ctx context.Context) (Outcome, error) {
	return c.do(ctx, "GET", servicedef.ActiveDriversPath, nil)
}

// UpdateDriverStatus patches a driver's lifecycle status.
func (c *Client) UpdateDriverStatus(ctx context.Context, driverID, status string) (Outcome, error) {
	return c.do(ctx, "PATCH", servicedef.DriverStatusPath(driverID),
		map[string]interface{}{"status": status})
}

// DeleteDriver removes a driver.
func (c *Client) DeleteDriver(ctx context.Context, driverID string) (Outcome, error) {
	return c.do(ctx, "DELETE", servicedef.DriverPath(driverID), nil)
}

// SubmitLocation posts one location ping for a driver.
func (c *Client) SubmitLocation(ctx context.Context, driverID string, location map[string]interface{}) (Outcome, error) {
	return c.do(ctx, "POST", servicedef.LocationsPath(driverID), location)
}

// SubmitLocationBatch posts a batch of location pings.
func (c *Client) SubmitLocationBatch(ctx context.Context, driverID string, locations []map[string]interface{}) (Outcome, error) {
	return c.do(ctx, "POST", servicedef.LocationBatchPath(driverID),
		map[string]interface{}{"locations": locations})
}

// CurrentLocation fetches a driver's most recent location.
func (c *Client) CurrentLocation(ctx context.Context, driverID string) (Outcome, error) {
	return c.do(ctx, "GET", servicedef.CurrentLocationPath(driverID), nil)
}

// LocationHistory fetches a driver's location history. from and to are
// optional RFC 3339 bounds.
func (c *Client) LocationHistory(ctx context.Context, driverID, from, to string) (Outcome, error) {
	path := servicedef.LocationHistoryPath(driverID)
	query := url.Values{}
	if from != "" {
		query.Set("from", from)
	}
	if to != "" {
		query.Set("to", to)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, "GET", path, nil)
}

// NearbyDrivers searches for drivers near a coordinate within radius
// meters.
func (c *Client) NearbyDrivers(ctx context.Context, latitude, longitude float64, radiusMeters int) (Outcome, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", latitude))
	query.Set("longitude", fmt.Sprintf("%.6f", longitude))
	query.Set("radius", fmt.Sprintf("%d", radiusMeters))
	return c.do(ctx, "GET", servicedef.NearbyDriversPath+"?"+query.Encode(), nil)
}
