package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/router"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/common"
	httptransport "github.com/ValentinKolb/dRate/rpc/transport/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

// forwarded headers of a proxied request and response
var (
	requestHeaders  = []string{"Accept", "Content-Type"}
	responseHeaders = []string{"Content-Type"}
)

// downstream is the answer of a shard, passed on to the caller unchanged
type downstream struct {
	status int
	header http.Header
	body   []byte
}

// Router forwards the rating api to the shards. Writes and deletes go to the owning
// shard, reads to the owner or (consistency=weak) to a random shard.
type Router struct {
	cfg      common.RouterConfig
	ring     *router.Router
	shards   []string
	client   *http.Client
	breakers []*gobreaker.CircuitBreaker[*downstream]
	metrics  *httpMetrics
}

// ShardHealth is one entry of the router health report
type ShardHealth struct {
	Shard    string `json:"shard"`
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Breaker  string `json:"breaker"`
	Error    string `json:"error,omitempty"`
}

// NewRouter creates a router for the shards in cfg
func NewRouter(cfg common.RouterConfig) (*Router, error) {
	return NewRouterWithRing(cfg, router.New(cfg.NDB()))
}

// NewRouterWithRing creates a router with a custom shard selector, used to make weak
// reads deterministic in tests.
func NewRouterWithRing(cfg common.RouterConfig, ring *router.Router) (*Router, error) {
	if cfg.NDB() < 1 {
		return nil, fmt.Errorf("router needs at least one shard")
	}
	if ring.NDB() != cfg.NDB() {
		return nil, fmt.Errorf("shard selector knows %d shards, config has %d", ring.NDB(), cfg.NDB())
	}

	rt := &Router{
		cfg:      cfg,
		ring:     ring,
		shards:   make([]string, cfg.NDB()),
		breakers: make([]*gobreaker.CircuitBreaker[*downstream], cfg.NDB()),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: newHTTPMetrics("router"),
	}

	for i, shard := range cfg.Shards {
		shard = strings.TrimRight(strings.TrimSpace(shard), "/")
		if !strings.Contains(shard, "://") {
			shard = "http://" + shard
		}
		rt.shards[i] = shard
		rt.breakers[i] = gobreaker.NewCircuitBreaker[*downstream](rt.breakerSettings(i))

		cb := rt.breakers[i]
		rt.metrics.gauge(fmt.Sprintf(`drate_router_breaker_open{shard=%q}`, gossip.DBID(i)), func() float64 {
			if cb.State() == gobreaker.StateOpen {
				return 1
			}
			return 0
		})
	}
	return rt, nil
}

func (rt *Router) breakerSettings(shard int) gobreaker.Settings {
	failures := rt.cfg.BreakerFailures
	return gobreaker.Settings{
		Name:        gossip.DBID(shard),
		MaxRequests: 1,
		Timeout:     rt.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		// a client that gave up says nothing about the health of the shard
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warningf("circuit breaker of %s: %s -> %s", name, from, to)
		},
	}
}

// Handler returns the routes of the router
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/rating/{entity}", func(r chi.Router) {
		r.Put("/", rt.metrics.instrument("put", rt.forwardOwner))
		r.Delete("/", rt.metrics.instrument("delete", rt.forwardOwner))
		r.Get("/", rt.metrics.instrument("get", rt.forwardRead))
	})
	r.Get("/healthz", rt.handleHealth)
	r.Get("/metrics", rt.metrics.handler())
	return r
}

// Close releases idle connections to the shards
func (rt *Router) Close() {
	rt.client.CloseIdleConnections()
}

// --------------------------------------------------------------------------
// Forwarding
// --------------------------------------------------------------------------

func (rt *Router) forwardOwner(w http.ResponseWriter, r *http.Request) {
	rt.forward(w, r, rt.ring.Owner(entityParam(r)))
}

func (rt *Router) forwardRead(w http.ResponseWriter, r *http.Request) {
	c := router.ParseConsistency(r.URL.Query().Get("consistency"))
	rt.forward(w, r, rt.ring.ChooseShard(entityParam(r), c))
}

// forward sends the request to shard and copies the answer. Timeouts, connection errors
// and an open circuit breaker are answered with 503, there are no retries.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, shard int) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httptransport.WriteError(w, store.Errorf(store.RetCBadRequest, "failed to read body: %v", err))
		return
	}

	rt.metrics.counter(fmt.Sprintf(`drate_router_forwarded_total{shard=%q}`, gossip.DBID(shard))).Inc()
	resp, err := rt.breakers[shard].Execute(func() (*downstream, error) {
		return rt.send(r.Context(), r, shard, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = store.Errorf(store.RetCUnavailable, "%s is unavailable: %v", gossip.DBID(shard), err)
		}
		log.Warningf("forwarding %s %s to %s failed: %v", r.Method, r.URL.Path, gossip.DBID(shard), err)
		rt.metrics.counter(fmt.Sprintf(`drate_router_unavailable_total{shard=%q}`, gossip.DBID(shard))).Inc()
		httptransport.WriteError(w, err)
		return
	}

	for _, h := range responseHeaders {
		if v := resp.header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.status)
	if _, err := w.Write(resp.body); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

// send performs one request against shard. Only transport failures are errors, every
// answer of the shard (including 4xx and 5xx) is a result.
func (rt *Router) send(ctx context.Context, r *http.Request, shard int, body []byte) (*downstream, error) {
	client := ctx
	if rt.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, rt.shards[shard]+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, store.Errorf(store.RetCInternalError, "failed to build request: %v", err)
	}
	for _, h := range requestHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := rt.client.Do(req)
	if err != nil {
		if client.Err() != nil {
			return nil, fmt.Errorf("%s: request cancelled by client: %w", gossip.DBID(shard), context.Canceled)
		}
		return nil, store.Errorf(store.RetCUnavailable, "%s (%s): %v", gossip.DBID(shard), rt.shards[shard], err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if client.Err() != nil {
			return nil, fmt.Errorf("%s: request cancelled by client: %w", gossip.DBID(shard), context.Canceled)
		}
		return nil, store.Errorf(store.RetCUnavailable, "%s (%s): failed to read body: %v", gossip.DBID(shard), rt.shards[shard], err)
	}
	return &downstream{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// --------------------------------------------------------------------------
// Health
// --------------------------------------------------------------------------

// Health asks every shard for its health in parallel
func (rt *Router) Health(ctx context.Context) []ShardHealth {
	report := make([]ShardHealth, len(rt.shards))
	var g errgroup.Group
	for i := range rt.shards {
		g.Go(func() error {
			report[i] = rt.shardHealth(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (rt *Router) shardHealth(ctx context.Context, shard int) ShardHealth {
	h := ShardHealth{
		Shard:    gossip.DBID(shard),
		Endpoint: rt.shards[shard],
		Status:   "ok",
		Breaker:  rt.breakers[shard].State().String(),
	}

	if rt.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rt.shards[shard]+"/healthz", nil)
	if err != nil {
		h.Status, h.Error = "unavailable", err.Error()
		return h
	}
	resp, err := rt.client.Do(req)
	if err != nil {
		h.Status, h.Error = "unavailable", err.Error()
		return h
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		h.Status, h.Error = "unavailable", resp.Status
	}
	return h
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := rt.Health(r.Context())
	status := http.StatusOK
	for _, h := range report {
		if h.Status != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}
	httptransport.WriteJSON(w, status, report)
}
