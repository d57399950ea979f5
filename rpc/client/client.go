package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ValentinKolb/dRate/lib/router"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("client")

// IRatingClient is the rating api as seen by a caller. It is served by nodes and routers alike.
type IRatingClient interface {
	// Get returns the aggregate of entity. An unknown entity is returned with a zero
	// rating and empty lists.
	Get(ctx context.Context, entity string, c router.Consistency) (common.GetResponse, error)
	// Put writes value with the given clock and returns the mean after the write.
	Put(ctx context.Context, entity string, value float64, clock vclock.VectorClock) (float64, error)
	// Delete removes entity. Deleting an unknown entity is a RetCNotFound error.
	Delete(ctx context.Context, entity string) error
}

// Client talks to the HTTP api of a node or a router
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
}

// New creates a client for the base url in cfg.Endpoint. A missing scheme defaults to http.
func New(cfg common.ClientConfig) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: cfg.Timeout,
	}
}

// Endpoint returns the base url the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IRatingClient)
// --------------------------------------------------------------------------

func (c *Client) Get(ctx context.Context, entity string, consistency router.Consistency) (common.GetResponse, error) {
	path := ratingPath(entity)
	if consistency == router.Weak {
		path += "?consistency=" + consistency.String()
	}
	var resp common.GetResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) Put(ctx context.Context, entity string, value float64, clock vclock.VectorClock) (float64, error) {
	body, err := common.JSON.Marshal(common.PutRequest{Rating: &value, Clock: clock.Map()})
	if err != nil {
		return 0, err
	}
	var resp common.PutResponse
	if err := c.do(ctx, http.MethodPut, ratingPath(entity), body, &resp); err != nil {
		return 0, err
	}
	return resp.Rating, nil
}

func (c *Client) Delete(ctx context.Context, entity string) error {
	return c.do(ctx, http.MethodDelete, ratingPath(entity), nil, nil)
}

// Health returns nil when the server answers /healthz with 200
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func ratingPath(entity string) string {
	return "/rating/" + url.PathEscape(entity)
}

// do sends a request and decodes a 2xx answer into out (if not nil). Other answers are
// turned into a store.Error with the code matching the status, transport errors are
// RetCUnavailable.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", common.ContentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", common.ContentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return store.Errorf(store.RetCUnavailable, "%s %s: %v", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.Errorf(store.RetCUnavailable, "%s %s: failed to read body: %v", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		var errResp common.ErrorResponse
		if common.JSON.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return store.NewError(store.RetCodeFromHTTPStatus(resp.StatusCode), msg)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := common.JSON.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}
