package server

import (
	"encoding/hex"
	"io"
	"net/http"
	"net/url"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/replica"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/common"
	httptransport "github.com/ValentinKolb/dRate/rpc/transport/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/munnerz/goautoneg"
)

var log = logger.GetLogger("rpc")

// maxBodyBytes bounds the body of a PUT request
const maxBodyBytes = 1 << 20

// Node serves the rating api of one storage node on top of its replica and gossip engine
type Node struct {
	cfg      common.NodeConfig
	replica  *replica.Store
	engine   *gossip.Engine
	gossip   http.Handler
	metrics  *httpMetrics
	instance string
}

// NodeInfo is the answer to GET /info
type NodeInfo struct {
	ID       string          `json:"id"`
	NDB      int             `json:"ndb"`
	Instance string          `json:"instance"`
	Backend  string          `json:"backend"`
	Queue    string          `json:"queue"`
	DB       db.DatabaseInfo `json:"db"`
}

// NewNode creates the HTTP surface of a node. gossipHandler serves POST /gossip/{node}
// and may be nil when the gossip queue does not use HTTP.
func NewNode(cfg common.NodeConfig, r *replica.Store, e *gossip.Engine, gossipHandler http.Handler) *Node {
	n := &Node{
		cfg:      cfg,
		replica:  r,
		engine:   e,
		gossip:   gossipHandler,
		metrics:  newHTTPMetrics("node"),
		instance: hex.EncodeToString(util.GenerateID(8)),
	}
	n.metrics.gauge(`drate_gossip_buffered`, func() float64 {
		records, _ := e.Pending()
		return float64(records)
	})
	n.metrics.gauge(`drate_gossip_writes_since_flush`, func() float64 {
		_, writes := e.Pending()
		return float64(writes)
	})
	return n
}

// Engine returns the gossip engine of the node
func (n *Node) Engine() *gossip.Engine {
	return n.engine
}

// Handler returns the routes of the node
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/rating/{entity}", func(r chi.Router) {
		r.Use(negotiateJSON)
		if n.cfg.GossipInline {
			r.Use(n.tickInline)
		}
		r.With(requireContentType, middleware.AllowContentType(common.ContentTypeJSON)).Put("/", n.metrics.instrument("put", n.handlePut))
		r.Get("/", n.metrics.instrument("get", n.handleGet))
		r.Delete("/", n.metrics.instrument("delete", n.handleDelete))
	})

	if n.gossip != nil {
		r.Post("/gossip/{node}", n.metrics.instrument("gossip", n.gossip.ServeHTTP))
	}
	r.Get("/gossip/stats", n.handleStats)
	r.Get("/info", n.handleInfo)
	r.Get("/healthz", n.handleHealth)
	r.Get("/metrics", n.metrics.handler())
	return r
}

// --------------------------------------------------------------------------
// Rating handlers
// --------------------------------------------------------------------------

func (n *Node) handlePut(w http.ResponseWriter, r *http.Request) {
	entity := entityParam(r)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httptransport.WriteError(w, store.Errorf(store.RetCBadRequest, "failed to read body: %v", err))
		return
	}
	value, clock, err := common.ParsePutRequest(body)
	if err != nil {
		httptransport.WriteError(w, err)
		return
	}

	agg, mutated, err := n.replica.Put(entity, value, clock)
	if err != nil {
		log.Errorf("%s: put %s failed: %v", gossip.DBID(n.cfg.ID), entity, err)
		httptransport.WriteError(w, err)
		return
	}
	if mutated {
		n.engine.Buffer(entity, agg)
		if n.cfg.GossipInline {
			n.engine.Flush()
		}
	}
	httptransport.WriteJSON(w, http.StatusOK, common.PutResponse{Rating: agg.Mean()})
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	entity := entityParam(r)
	agg, _, err := n.replica.Get(entity)
	if err != nil {
		log.Errorf("%s: get %s failed: %v", gossip.DBID(n.cfg.ID), entity, err)
		httptransport.WriteError(w, err)
		return
	}
	httptransport.WriteJSON(w, http.StatusOK, common.NewGetResponse(agg))
}

func (n *Node) handleDelete(w http.ResponseWriter, r *http.Request) {
	entity := entityParam(r)
	deleted, err := n.replica.Delete(entity)
	if err != nil {
		httptransport.WriteError(w, err)
		return
	}
	if !deleted {
		httptransport.WriteError(w, store.Errorf(store.RetCNotFound, "no rating stored for %q", entity))
		return
	}
	httptransport.WriteJSON(w, http.StatusOK, common.DeleteResponse{})
}

// --------------------------------------------------------------------------
// Operational handlers
// --------------------------------------------------------------------------

func (n *Node) handleStats(w http.ResponseWriter, _ *http.Request) {
	httptransport.WriteJSON(w, http.StatusOK, n.engine.Stats())
}

func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := n.replica.Backend().GetDBInfo()
	if err != nil {
		httptransport.WriteError(w, err)
		return
	}
	httptransport.WriteJSON(w, http.StatusOK, NodeInfo{
		ID:       gossip.DBID(n.cfg.ID),
		NDB:      n.cfg.NDB,
		Instance: n.instance,
		Backend:  string(n.cfg.Backend),
		Queue:    string(n.cfg.Queue),
		DB:       info,
	})
}

func (n *Node) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httptransport.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"id":     gossip.DBID(n.cfg.ID),
	})
}

// --------------------------------------------------------------------------
// Middleware and helpers
// --------------------------------------------------------------------------

// negotiateJSON rejects requests whose Accept header rules out application/json.
// Requests without an Accept header are served.
func negotiateJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if accept != "" && goautoneg.Negotiate(accept, []string{common.ContentTypeJSON}) == "" {
			httptransport.WriteError(w, store.Errorf(store.RetCNotAcceptable, "cannot produce %s for %q", common.ContentTypeJSON, accept))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireContentType rejects requests without a Content-Type, AllowContentType lets
// them through when the body is empty
func requireContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "" {
			httptransport.WriteError(w, store.Errorf(store.RetCUnsupportedMediaType, "missing content type, expected %s", common.ContentTypeJSON))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tickInline drains the gossip inbox before every rating request
func (n *Node) tickInline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.engine.Tick()
		next.ServeHTTP(w, r)
	})
}

func entityParam(r *http.Request) string {
	raw := chi.URLParam(r, "entity")
	if entity, err := url.PathUnescape(raw); err == nil {
		return entity
	}
	return raw
}
