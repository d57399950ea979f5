package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/lib/router"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer records the last request and answers with a fixed status and body
type fakeServer struct {
	status int
	body   string

	method      string
	path        string
	query       string
	contentType string
	accept      string
	received    []byte
}

func (f *fakeServer) handler() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		f.method = r.Method
		f.path = r.URL.EscapedPath()
		f.query = r.URL.RawQuery
		f.contentType = r.Header.Get("Content-Type")
		f.accept = r.Header.Get("Accept")
		f.received, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", common.ContentTypeJSON)
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
	})
	return r
}

func newFake(t *testing.T, status int, body string) (*fakeServer, *Client) {
	t.Helper()
	f := &fakeServer{status: status, body: body}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c := New(common.ClientConfig{Endpoint: srv.URL + "/", Timeout: time.Second})
	t.Cleanup(c.Close)
	return f, c
}

func TestClientRequests(t *testing.T) {
	ctx := context.Background()

	t.Run("Put", func(t *testing.T) {
		f, c := newFake(t, http.StatusOK, `{"rating":4.5}`)
		mean, err := c.Put(ctx, "bob", 4, vclock.VectorClock{"c1": 2})
		require.NoError(t, err)
		assert.Equal(t, 4.5, mean)
		assert.Equal(t, http.MethodPut, f.method)
		assert.Equal(t, "/rating/bob", f.path)
		assert.Equal(t, common.ContentTypeJSON, f.contentType)
		assert.Equal(t, common.ContentTypeJSON, f.accept)
		assert.JSONEq(t, `{"rating":4,"clock":{"c1":2}}`, string(f.received))
	})

	t.Run("GetStrong", func(t *testing.T) {
		f, c := newFake(t, http.StatusOK, `{"rating":4,"choices":[5,3],"clocks":[{"c1":1},{"c2":1}]}`)
		resp, err := c.Get(ctx, "bob", router.Strong)
		require.NoError(t, err)
		assert.Equal(t, 4.0, resp.Rating)
		assert.Equal(t, []float64{5, 3}, resp.Choices)
		assert.Equal(t, vclock.VectorClock{"c2": 1}, resp.Aggregate().Clocks[1])
		assert.Empty(t, f.query)
	})

	t.Run("GetWeak", func(t *testing.T) {
		f, c := newFake(t, http.StatusOK, `{"rating":0,"choices":[],"clocks":[]}`)
		_, err := c.Get(ctx, "bob", router.Weak)
		require.NoError(t, err)
		assert.Equal(t, "consistency=weak", f.query)
	})

	t.Run("EscapedEntity", func(t *testing.T) {
		f, c := newFake(t, http.StatusOK, `{"rating":null}`)
		require.NoError(t, c.Delete(ctx, "a b/c"))
		assert.Equal(t, "/rating/a%20b%2Fc", f.path)
	})
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status int
		body   string
		code   store.RetCode
	}{
		{"NotFound", http.StatusNotFound, `{"error":"no rating stored","code":"NotFound"}`, store.RetCNotFound},
		{"BadRequest", http.StatusBadRequest, `{"error":"rating is missing","code":"BadRequest"}`, store.RetCBadRequest},
		{"Unavailable", http.StatusServiceUnavailable, ``, store.RetCUnavailable},
		{"NotAcceptable", http.StatusNotAcceptable, ``, store.RetCNotAcceptable},
		{"Internal", http.StatusInternalServerError, `not json`, store.RetCInternalError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, c := newFake(t, tc.status, tc.body)
			err := c.Delete(ctx, "bob")
			require.Error(t, err)
			assert.Equal(t, tc.code, store.CodeOf(err))
		})
	}

	t.Run("MessageFromBody", func(t *testing.T) {
		_, c := newFake(t, http.StatusBadRequest, `{"error":"rating is missing","code":"BadRequest"}`)
		_, err := c.Put(ctx, "bob", 1, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rating is missing")
	})

	t.Run("ServerDown", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := New(common.ClientConfig{Endpoint: srv.URL, Timeout: time.Second})
		defer c.Close()
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(c.Health(ctx)))
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		c := New(common.ClientConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
		defer c.Close()
		_, err := c.Get(ctx, "bob", router.Strong)
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(err))
	})
}

func TestNewDefaultsToHTTP(t *testing.T) {
	c := New(common.ClientConfig{Endpoint: " localhost:8080/ "})
	assert.Equal(t, "http://localhost:8080", c.Endpoint())
}
