package gossip

import (
	"github.com/rcrowley/go-metrics"
)

type engineStats struct {
	registry metrics.Registry

	received       metrics.Counter
	applied        metrics.Counter
	rebuffered     metrics.Counter
	droppedOwn     metrics.Counter
	droppedInvalid metrics.Counter
	droppedHops    metrics.Counter
	pushErrors     metrics.Counter
	flushed        metrics.Counter
	digests        metrics.Counter
	buffered       metrics.Gauge
	hops           metrics.Histogram
}

func newEngineStats() *engineStats {
	r := metrics.NewRegistry()
	return &engineStats{
		registry:       r,
		received:       metrics.GetOrRegisterCounter("gossip.received", r),
		applied:        metrics.GetOrRegisterCounter("gossip.applied", r),
		rebuffered:     metrics.GetOrRegisterCounter("gossip.rebuffered", r),
		droppedOwn:     metrics.GetOrRegisterCounter("gossip.dropped.own", r),
		droppedInvalid: metrics.GetOrRegisterCounter("gossip.dropped.invalid", r),
		droppedHops:    metrics.GetOrRegisterCounter("gossip.dropped.hops", r),
		pushErrors:     metrics.GetOrRegisterCounter("gossip.push.errors", r),
		flushed:        metrics.GetOrRegisterCounter("gossip.flushed", r),
		digests:        metrics.GetOrRegisterCounter("gossip.digests", r),
		buffered:       metrics.GetOrRegisterGauge("gossip.buffered", r),
		hops:           metrics.GetOrRegisterHistogram("gossip.hops", r, metrics.NewUniformSample(1024)),
	}
}

// Stats is a point in time view of the engine counters
type Stats struct {
	ID             int     `json:"id"`
	Successor      int     `json:"successor"`
	Received       int64   `json:"received"`
	Applied        int64   `json:"applied"`
	Rebuffered     int64   `json:"rebuffered"`
	DroppedOwn     int64   `json:"dropped_own"`
	DroppedInvalid int64   `json:"dropped_invalid"`
	DroppedHops    int64   `json:"dropped_hops"`
	PushErrors     int64   `json:"push_errors"`
	Flushed        int64   `json:"flushed"`
	Digests        int64   `json:"digests"`
	Buffered       int     `json:"buffered"`
	Writes         int     `json:"writes_since_flush"`
	MeanHops       float64 `json:"mean_hops"`
	MaxHops        int64   `json:"max_hops"`
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	buffered, writes := e.Pending()
	hops := e.stats.hops.Snapshot()
	return Stats{
		ID:             e.cfg.ID,
		Successor:      Successor(e.cfg.ID, e.cfg.NDB),
		Received:       e.stats.received.Count(),
		Applied:        e.stats.applied.Count(),
		Rebuffered:     e.stats.rebuffered.Count(),
		DroppedOwn:     e.stats.droppedOwn.Count(),
		DroppedInvalid: e.stats.droppedInvalid.Count(),
		DroppedHops:    e.stats.droppedHops.Count(),
		PushErrors:     e.stats.pushErrors.Count(),
		Flushed:        e.stats.flushed.Count(),
		Digests:        e.stats.digests.Count(),
		Buffered:       buffered,
		Writes:         writes,
		MeanHops:       hops.Mean(),
		MaxHops:        hops.Max(),
	}
}
