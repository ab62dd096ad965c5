// Package remote implements a driver backed by a LauraDB server's
// HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/mnohosten/laura-odm/pkg/connstring"
	"github.com/mnohosten/laura-odm/pkg/driver"
)

// Config holds configuration for the remote driver
type Config struct {
	// Host is the server hostname or IP address (default: "localhost")
	Host string
	// Port is the server port (default: 8080)
	Port int
	// Timeout is the HTTP request timeout (default: 30s)
	Timeout time.Duration
	// ConnectTimeout bounds the initial health check (default: 10s)
	ConnectTimeout time.Duration
	// MaxIdleConns is the maximum number of idle connections (default: 10)
	MaxIdleConns int
	// MaxConnsPerHost is the maximum connections per host (default: 10)
	MaxConnsPerHost int
	// Compression enables gzip compression of request bodies
	Compression bool
	// CompressionThreshold is the minimum body size, in bytes, for
	// compression to kick in (default: 1024)
	CompressionThreshold int
}

// DefaultConfig returns the default remote driver configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                 "localhost",
		Port:                 8080,
		Timeout:              30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		MaxIdleConns:         10,
		MaxConnsPerHost:      10,
		Compression:          true,
		CompressionThreshold: 1024,
	}
}

// Driver talks to a LauraDB server over HTTP. It is safe for
// concurrent use.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	config     *Config
}

var _ driver.Driver = (*Driver)(nil)
var _ driver.ChangeStreamer = (*Driver)(nil)

// NewDriver creates a remote driver with the given configuration
func NewDriver(config *Config) *Driver {
	if config == nil {
		config = DefaultConfig()
	}

	// Apply defaults for unset fields
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxConnsPerHost == 0 {
		config.MaxConnsPerHost = 10
	}
	if config.CompressionThreshold == 0 {
		config.CompressionThreshold = 1024
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	return &Driver{
		baseURL:    fmt.Sprintf("http://%s:%d", config.Host, config.Port),
		httpClient: httpClient,
		config:     config,
	}
}

// FromConnString creates a remote driver from a laura:// connection string
func FromConnString(connStr string) (*Driver, error) {
	cs, err := connstring.Parse(connStr)
	if err != nil {
		return nil, err
	}

	return NewDriver(&Config{
		Host:                 cs.Host,
		Port:                 cs.Port,
		Timeout:              cs.Options.Timeout,
		ConnectTimeout:       cs.Options.ConnectTimeout,
		MaxIdleConns:         cs.Options.MaxIdleConns,
		MaxConnsPerHost:      cs.Options.MaxConnsPerHost,
		Compression:          cs.Options.Compression,
		CompressionThreshold: cs.Options.CompressionThreshold,
	}), nil
}

// response is the standard API envelope
type response struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Count   *int            `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// doRequest performs an HTTP request against the server API
func (d *Driver) doRequest(ctx context.Context, method, path string, body any) (*response, error) {
	reqURL := d.baseURL + path

	var reqBody io.Reader
	compressed := false
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		if d.config.Compression && len(data) >= d.config.CompressionThreshold {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(data); err != nil {
				return nil, fmt.Errorf("failed to compress request body: %w", err)
			}
			if err := zw.Close(); err != nil {
				return nil, fmt.Errorf("failed to compress request body: %w", err)
			}
			reqBody = &buf
			compressed = true
		} else {
			reqBody = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if compressed {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !apiResp.OK {
		return &apiResp, fmt.Errorf("server error: %s - %s", apiResp.Error, apiResp.Message)
	}

	return &apiResp, nil
}

// Connect verifies that the server is reachable and healthy
func (d *Driver) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	resp, err := d.doRequest(ctx, http.MethodGet, "/_health", nil)
	if err != nil {
		return driver.WrapConnection(err)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Result, &health); err != nil {
		return driver.WrapConnection(fmt.Errorf("failed to parse health response: %w", err))
	}
	if health.Status != "ok" && health.Status != "healthy" {
		return driver.WrapConnection(fmt.Errorf("server unhealthy: %s", health.Status))
	}

	return nil
}

// Close releases idle connections held by the driver
func (d *Driver) Close(ctx context.Context) error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func collectionPath(collection, suffix string) string {
	return "/" + url.PathEscape(collection) + suffix
}

// InsertOne inserts a single document
func (d *Driver) InsertOne(ctx context.Context, collection string, document map[string]any) (*driver.InsertOneResult, error) {
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_doc"), document)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}

	return &driver.InsertOneResult{InsertedID: result.ID}, nil
}

// InsertMany inserts multiple documents in one request
func (d *Driver) InsertMany(ctx context.Context, collection string, documents []map[string]any) (*driver.InsertManyResult, error) {
	body := map[string]any{"documents": documents}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_docs"), body)
	if err != nil {
		return nil, err
	}

	var result struct {
		IDs []string `json:"_ids"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}

	return &driver.InsertManyResult{InsertedIDs: result.IDs}, nil
}

// searchRequest is the body of a _search request
type searchRequest struct {
	Query map[string]any   `json:"query"`
	Sort  []map[string]int `json:"sort,omitempty"`
	Skip  *int             `json:"skip,omitempty"`
	Limit *int             `json:"limit,omitempty"`
}

func sortBody(sort []driver.SortField) []map[string]int {
	if len(sort) == 0 {
		return nil
	}
	out := make([]map[string]int, 0, len(sort))
	for _, s := range sort {
		out = append(out, map[string]int{s.Field: s.Order()})
	}
	return out
}

// FindOne returns the first document matching the query, or nil when
// nothing matches
func (d *Driver) FindOne(ctx context.Context, collection string, query map[string]any) (map[string]any, error) {
	one := 1
	docs, err := d.FindMany(ctx, collection, driver.FindParams{Query: query, Limit: &one})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// FindMany returns all documents matching the query, honoring sort,
// skip and limit
func (d *Driver) FindMany(ctx context.Context, collection string, params driver.FindParams) ([]map[string]any, error) {
	body := searchRequest{
		Query: params.Query,
		Sort:  sortBody(params.Sort),
		Skip:  params.Skip,
		Limit: params.Limit,
	}
	if body.Query == nil {
		body.Query = map[string]any{}
	}

	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_search"), body)
	if err != nil {
		return nil, err
	}

	var docs []map[string]any
	if err := json.Unmarshal(resp.Result, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return docs, nil
}

// updateRequest is the body of an _update request
type updateRequest struct {
	Query  map[string]any `json:"query"`
	Update map[string]any `json:"update"`
	Upsert bool           `json:"upsert,omitempty"`
	Multi  bool           `json:"multi,omitempty"`
}

func parseUpdateResult(resp *response) (*driver.UpdateResult, error) {
	var result struct {
		Matched    int    `json:"matched"`
		Modified   int    `json:"modified"`
		UpsertedID string `json:"upserted_id,omitempty"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &driver.UpdateResult{
		MatchedCount:  result.Matched,
		ModifiedCount: result.Modified,
		UpsertedID:    result.UpsertedID,
	}, nil
}

// UpdateOne applies the update to the first matching document
func (d *Driver) UpdateOne(ctx context.Context, collection string, query, update map[string]any, upsert bool) (*driver.UpdateResult, error) {
	body := updateRequest{Query: query, Update: update, Upsert: upsert}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_update"), body)
	if err != nil {
		return nil, err
	}
	return parseUpdateResult(resp)
}

// UpdateMany applies the update to every matching document
func (d *Driver) UpdateMany(ctx context.Context, collection string, query, update map[string]any) (*driver.UpdateResult, error) {
	body := updateRequest{Query: query, Update: update, Multi: true}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_update"), body)
	if err != nil {
		return nil, err
	}
	return parseUpdateResult(resp)
}

// DeleteOne removes the first matching document
func (d *Driver) DeleteOne(ctx context.Context, collection string, query map[string]any) (*driver.DeleteResult, error) {
	body := map[string]any{"query": query}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_delete"), body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse delete response: %w", err)
	}

	return &driver.DeleteResult{DeletedCount: result.Deleted}, nil
}

// Count returns the number of documents matching the query
func (d *Driver) Count(ctx context.Context, collection string, query map[string]any) (int, error) {
	body := map[string]any{"query": query}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_count"), body)
	if err != nil {
		return 0, err
	}

	if resp.Count != nil {
		return *resp.Count, nil
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("failed to parse count response: %w", err)
	}
	return result.Count, nil
}

// Exists reports whether any document matches the query
func (d *Driver) Exists(ctx context.Context, collection string, query map[string]any) (bool, error) {
	body := map[string]any{"query": query}
	resp, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_exists"), body)
	if err != nil {
		return false, err
	}

	var result struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return false, fmt.Errorf("failed to parse exists response: %w", err)
	}
	return result.Exists, nil
}

// CreateIndex asks the server to build an index. Index creation is
// idempotent on the server side.
func (d *Driver) CreateIndex(ctx context.Context, collection string, spec driver.IndexSpec) error {
	keys := map[string]any{}
	options := map[string]any{}
	for _, part := range spec.Parts {
		for k, v := range part.Keys {
			keys[k] = v
		}
		for k, v := range part.Options {
			options[k] = v
		}
	}

	body := map[string]any{
		"keys":    keys,
		"options": options,
	}
	_, err := d.doRequest(ctx, http.MethodPost, collectionPath(collection, "/_index"), body)
	return err
}
