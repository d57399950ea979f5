package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple"
	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/lockmgr"
	"github.com/ValentinKolb/dRate/lib/replica"
	"github.com/ValentinKolb/dRate/lib/store/lstore"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	node    *Node
	replica *replica.Store
	engine  *gossip.Engine
	queue   gossip.IQueue
	handler http.Handler
}

func newTestNode(t *testing.T, cfg common.NodeConfig) *testNode {
	t.Helper()
	if cfg.NDB == 0 {
		cfg.NDB = 2
	}
	if cfg.DigestLength == 0 {
		cfg.DigestLength = 1
	}
	cfg.Backend = common.BackendLocal
	cfg.Queue = common.QueueMemory

	q := gossip.NewMemoryQueue(cfg.NDB)
	r := replica.NewStore(lstore.NewLocalStore(func() db.HashDB { return maple.NewMapleDB(nil) }), lockmgr.NewLockManager(), time.Second)
	e := gossip.NewEngine(gossip.Config{ID: cfg.ID, NDB: cfg.NDB, DigestLength: cfg.DigestLength}, q, r)
	n := NewNode(cfg, r, e, nil)
	return &testNode{node: n, replica: r, engine: e, queue: q, handler: n.Handler()}
}

// do sends a request with a JSON body (if not empty) and Accept: application/json
func (tn *testNode) do(method, path, body string) *httptest.ResponseRecorder {
	return tn.doWith(method, path, body, map[string]string{
		"Content-Type": common.ContentTypeJSON,
		"Accept":       common.ContentTypeJSON,
	})
}

func (tn *testNode) doWith(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tn.handler.ServeHTTP(rec, req)
	return rec
}

func TestNodeScenarios(t *testing.T) {
	tn := newTestNode(t, common.NodeConfig{})

	t.Run("FirstWrite", func(t *testing.T) {
		rec := tn.do(http.MethodPut, "/rating/bob", `{"rating":5,"clock":{"c1":1}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"rating":5.0}`, rec.Body.String())
		assert.Equal(t, common.ContentTypeJSON, rec.Header().Get("Content-Type"))
	})

	t.Run("ConcurrentWrite", func(t *testing.T) {
		rec := tn.do(http.MethodPut, "/rating/bob", `{"rating":3,"clock":{"c2":1}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":4.0}`, rec.Body.String())

		rec = tn.do(http.MethodGet, "/rating/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":4.0,"choices":[5,3],"clocks":[{"c1":1},{"c2":1}]}`, rec.Body.String())
	})

	t.Run("DominatingWrite", func(t *testing.T) {
		rec := tn.do(http.MethodPut, "/rating/bob", `{"rating":4,"clock":{"c1":2,"c2":1}}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = tn.do(http.MethodGet, "/rating/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":4.0,"choices":[4],"clocks":[{"c1":2,"c2":1}]}`, rec.Body.String())
	})

	t.Run("Delete", func(t *testing.T) {
		rec := tn.do(http.MethodDelete, "/rating/nobody", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = tn.do(http.MethodDelete, "/rating/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":null}`, rec.Body.String())

		rec = tn.do(http.MethodGet, "/rating/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":0.0,"choices":[],"clocks":[]}`, rec.Body.String())
	})
}

func TestNodeGossipBuffer(t *testing.T) {
	t.Run("OnlyMutatingWrites", func(t *testing.T) {
		tn := newTestNode(t, common.NodeConfig{DigestLength: 10})

		require.Equal(t, http.StatusOK, tn.do(http.MethodPut, "/rating/alice", `{"rating":2,"clock":{"c1":1}}`).Code)
		records, writes := tn.engine.Pending()
		assert.Equal(t, 1, records)
		assert.Equal(t, 1, writes)

		// stale write, the mean of the stored register is returned
		rec := tn.do(http.MethodPut, "/rating/alice", `{"rating":9,"clock":{"c1":1}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rating":2.0}`, rec.Body.String())
		records, writes = tn.engine.Pending()
		assert.Equal(t, 1, records)
		assert.Equal(t, 1, writes)
	})

	t.Run("Inline", func(t *testing.T) {
		tn := newTestNode(t, common.NodeConfig{GossipInline: true})

		require.Equal(t, http.StatusOK, tn.do(http.MethodPut, "/rating/alice", `{"rating":2,"clock":{"c1":1}}`).Code)
		records, _ := tn.engine.Pending()
		assert.Zero(t, records)

		rec, ok, err := tn.queue.Pop(1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alice", rec.Entity)
		assert.Equal(t, 0, rec.Origin)
		assert.Equal(t, 1, rec.Hops)
	})
}

func TestNodeLargeRatings(t *testing.T) {
	tn := newTestNode(t, common.NodeConfig{GossipInline: true})

	for i, clock := range []string{`{"c1":1}`, `{"c2":1}`} {
		rec := tn.do(http.MethodPut, "/rating/huge", `{"rating":1e308,"clock":`+clock+`}`)
		require.Equal(t, http.StatusOK, rec.Code, "put %d", i)
		var resp common.PutResponse
		require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
		assert.Equal(t, 1e308, resp.Rating)
	}

	rec := tn.do(http.MethodGet, "/rating/huge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp common.GetResponse
	require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.Equal(t, 1e308, resp.Rating)
	assert.Equal(t, []float64{1e308, 1e308}, resp.Choices)

	fields, ok, err := tn.replica.Backend().HGetAll(replica.Key("huge"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, fields["rating"], "Inf")

	// both writes were handed to the successor and can be encoded
	for i := 0; i < 2; i++ {
		record, ok, err := tn.queue.Pop(1)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = common.JSON.Marshal(record)
		assert.NoError(t, err)
	}
}

func TestNodeErrors(t *testing.T) {
	tn := newTestNode(t, common.NodeConfig{})

	tests := []struct {
		name   string
		method string
		body   string
		header map[string]string
		status int
	}{
		{"MissingRating", http.MethodPut, `{"clock":{"c1":1}}`, nil, http.StatusBadRequest},
		{"RatingNotNumeric", http.MethodPut, `{"rating":"five","clock":{"c1":1}}`, nil, http.StatusBadRequest},
		{"NegativeCounter", http.MethodPut, `{"rating":5,"clock":{"c1":-1}}`, nil, http.StatusBadRequest},
		{"ClockNotObject", http.MethodPut, `{"rating":5,"clock":[1]}`, nil, http.StatusBadRequest},
		{"InvalidJSON", http.MethodPut, `{"rating":`, nil, http.StatusBadRequest},
		{"NotJSONBody", http.MethodPut, `rating=5`, map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, http.StatusUnsupportedMediaType},
		{"EmptyBodyNoContentType", http.MethodPut, "", map[string]string{}, http.StatusUnsupportedMediaType},
		{"EmptyBodyJSON", http.MethodPut, "", map[string]string{"Content-Type": common.ContentTypeJSON}, http.StatusBadRequest},
		{"NotAcceptable", http.MethodGet, "", map[string]string{"Accept": "text/html"}, http.StatusNotAcceptable},
		{"AcceptAnything", http.MethodGet, "", map[string]string{"Accept": "*/*"}, http.StatusOK},
		{"NoAccept", http.MethodGet, "", map[string]string{}, http.StatusOK},
		{"MissingClock", http.MethodPut, `{"rating":5}`, nil, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := map[string]string{"Content-Type": common.ContentTypeJSON, "Accept": common.ContentTypeJSON}
			if tc.header != nil {
				header = tc.header
				if _, ok := header["Content-Type"]; !ok && tc.body != "" {
					header["Content-Type"] = common.ContentTypeJSON
				}
			}
			rec := tn.doWith(tc.method, "/rating/carol", tc.body, header)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("ErrorBody", func(t *testing.T) {
		rec := tn.do(http.MethodPut, "/rating/carol", `{"clock":{}}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp common.ErrorResponse
		require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "BadRequest", resp.Code)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("CorruptedAggregate", func(t *testing.T) {
		require.NoError(t, tn.replica.Backend().HSet(replica.Key("eve"), map[string]string{
			"rating":  "1",
			"choices": "[1,2]",
			"clocks":  `[{"c1":1}]`,
		}))
		rec := tn.do(http.MethodGet, "/rating/eve", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp common.ErrorResponse
		require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "InvariantViolation", resp.Code)

		// other keys are still served
		assert.Equal(t, http.StatusOK, tn.do(http.MethodGet, "/rating/dave", "").Code)
	})
}

func TestNodeOperationalEndpoints(t *testing.T) {
	tn := newTestNode(t, common.NodeConfig{ID: 1, NDB: 3})
	require.Equal(t, http.StatusOK, tn.do(http.MethodPut, "/rating/bob", `{"rating":5,"clock":{"c1":1}}`).Code)

	t.Run("Health", func(t *testing.T) {
		rec := tn.do(http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","id":"db1"}`, rec.Body.String())
	})

	t.Run("Info", func(t *testing.T) {
		rec := tn.do(http.MethodGet, "/info", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var info NodeInfo
		require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, "db1", info.ID)
		assert.Equal(t, 3, info.NDB)
		assert.Len(t, info.Instance, 16)
		assert.Equal(t, 1, info.DB.Keys)
	})

	t.Run("GossipStats", func(t *testing.T) {
		rec := tn.do(http.MethodGet, "/gossip/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var stats gossip.Stats
		require.NoError(t, common.JSON.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.ID)
		assert.Equal(t, 2, stats.Successor)
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := tn.do(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `drate_http_requests_total{role="node",handler="put",method="PUT",code="200"} 1`)
		assert.Contains(t, rec.Body.String(), "drate_gossip_buffered")
	})

	t.Run("NoGossipRouteWithoutHTTPQueue", func(t *testing.T) {
		rec := tn.do(http.MethodPost, "/gossip/1", "{}")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
