package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/ValentinKolb/dRate/rpc/transport"
	"github.com/go-chi/chi/v5"
)

// maxRecordBytes bounds the body of a gossip request
const maxRecordBytes = 4 << 20

// Queue pushes gossip records to the /gossip/{node} endpoint of the peers and keeps
// the records received by the local node in an inbox.
type Queue struct {
	inbox      *transport.Inbox
	peers      []string
	client     *http.Client
	serializer serializer.IRecordSerializer
	timeout    time.Duration
	closed     atomic.Bool
}

// NewQueue creates the queue of node id. peers holds the base url of every node
// (index = node id), records are encoded with s.
func NewQueue(id int, peers []string, s serializer.IRecordSerializer, timeout time.Duration) (*Queue, error) {
	if id < 0 || id >= len(peers) {
		return nil, fmt.Errorf("node id %d has no peer entry (%d peers)", id, len(peers))
	}
	trimmed := make([]string, len(peers))
	for i, p := range peers {
		trimmed[i] = strings.TrimRight(strings.TrimSpace(p), "/")
	}
	return &Queue{
		inbox: transport.NewInbox(id),
		peers: trimmed,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		serializer: s,
		timeout:    timeout,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IGossipTransport)
// --------------------------------------------------------------------------

func (q *Queue) Push(node int, r gossip.Record) error {
	if q.closed.Load() {
		return store.NewError(store.RetCUnavailable, "http gossip queue is closed")
	}
	if node < 0 || node >= len(q.peers) {
		return store.Errorf(store.RetCInvalidOperation, "unknown node %d", node)
	}

	body, err := q.serializer.Serialize(r)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", r, err)
	}

	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/gossip/%d", q.peers[node], node)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", q.serializer.ContentType())

	resp, err := q.client.Do(req)
	if err != nil {
		return store.Errorf(store.RetCUnavailable, "push to %s: %v", gossip.DBID(node), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return store.Errorf(store.RetCodeFromHTTPStatus(resp.StatusCode), "push to %s: %s", gossip.DBID(node), resp.Status)
	}
	return nil
}

func (q *Queue) Pop(node int) (*gossip.Record, bool, error) {
	return q.inbox.Pop(node)
}

func (q *Queue) Close() error {
	q.closed.Store(true)
	q.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Receiving side
// --------------------------------------------------------------------------

// Handler serves POST /gossip/{node}. The record is decoded with the serializer that
// matches the Content-Type and stored in the inbox. The answer is 202 without waiting
// for the engine to apply the record.
func (q *Queue) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node, err := strconv.Atoi(chi.URLParam(r, "node"))
		if err != nil {
			WriteError(w, store.Errorf(store.RetCBadRequest, "invalid node %q", chi.URLParam(r, "node")))
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			WriteError(w, store.Errorf(store.RetCUnsupportedMediaType, "invalid content type: %v", err))
			return
		}
		s, ok := serializer.ForContentType(mediaType)
		if !ok {
			WriteError(w, store.Errorf(store.RetCUnsupportedMediaType, "no serializer for %s", mediaType))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
		if err != nil {
			WriteError(w, store.Errorf(store.RetCBadRequest, "failed to read body: %v", err))
			return
		}

		var rec gossip.Record
		if err := s.Deserialize(body, &rec); err != nil {
			WriteError(w, store.Errorf(store.RetCBadRequest, "failed to decode record: %v", err))
			return
		}
		if err := q.inbox.Deliver(node, rec); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// Inbox returns the inbox of the local node
func (q *Queue) Inbox() *transport.Inbox {
	return q.inbox
}
