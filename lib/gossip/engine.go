package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("gossip")

// Applier merges a gossiped snapshot into the local replica
type Applier interface {
	Apply(entity string, choices []float64, clocks []vclock.VectorClock) (register.Aggregate, bool, error)
}

// Config configures an Engine
type Config struct {
	ID           int           // id of this node in [0, NDB)
	NDB          int           // number of nodes in the ring
	DigestLength int           // buffered records needed before a flush
	Interval     time.Duration // period of the background tick
	MaxAge       time.Duration // flush a non-empty buffer older than this (0 = off)
	MaxHops      int           // stop forwarding after this many hops (0 = unbounded)
}

// Engine is the anti-entropy engine of one node. It owns the outbound buffer of records
// and the count of local writes since the last flush.
type Engine struct {
	cfg     Config
	queue   IQueue
	applier Applier
	now     func() time.Time

	mu     sync.Mutex
	buffer []Record
	writes int
	since  time.Time // time the buffer became non-empty

	// Tick is single consumer of the inbox
	tickMu sync.Mutex

	stats *engineStats

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine for the node cfg.ID. Nothing runs until Start is called.
func NewEngine(cfg Config, queue IQueue, applier Applier) *Engine {
	if cfg.DigestLength < 1 {
		cfg.DigestLength = 1
	}
	if cfg.NDB < 1 {
		cfg.NDB = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	return &Engine{
		cfg:     cfg,
		queue:   queue,
		applier: applier,
		now:     time.Now,
		stats:   newEngineStats(),
	}
}

// --------------------------------------------------------------------------
// Background runner
// --------------------------------------------------------------------------

// Start runs Tick every cfg.Interval until Stop is called or ctx is cancelled.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		log.Infof("%s: gossip started (successor=%s, digest-length=%d, interval=%s)",
			DBID(e.cfg.ID), DBID(Successor(e.cfg.ID, e.cfg.NDB)), e.cfg.DigestLength, e.cfg.Interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	}()
}

// Stop stops the background runner and waits for it to exit. A final Flush pushes
// records that are due.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.Flush()
	log.Infof("%s: gossip stopped", DBID(e.cfg.ID))
}

// Tick drains the inbox and flushes the buffer if it is due
func (e *Engine) Tick() {
	e.Drain()
	e.Flush()
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// Drain applies every record waiting in the inbox of this node and returns how many
// records were taken from the queue.
//
// Records produced by this node went around the ring and are dropped. Other records are
// applied and buffered again (with their origin kept) if they changed the local replica,
// so they travel on to the successor.
func (e *Engine) Drain() int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	n := 0
	for {
		rec, ok, err := e.queue.Pop(e.cfg.ID)
		if err != nil {
			log.Warningf("%s: failed to read gossip inbox: %v", DBID(e.cfg.ID), err)
			return n
		}
		if !ok {
			return n
		}
		n++
		e.handle(*rec)
	}
}

func (e *Engine) handle(rec Record) {
	e.stats.received.Inc(1)
	e.stats.hops.Update(int64(rec.Hops))

	if rec.Origin == e.cfg.ID {
		e.stats.droppedOwn.Inc(1)
		return
	}
	if err := rec.Validate(); err != nil {
		e.stats.droppedInvalid.Inc(1)
		log.Warningf("%s: dropping %s: %v", DBID(e.cfg.ID), rec, err)
		return
	}

	agg, mutated, err := e.applier.Apply(rec.Entity, rec.Choices, rec.Clocks)
	if err != nil {
		e.stats.droppedInvalid.Inc(1)
		log.Errorf("%s: failed to apply %s: %v", DBID(e.cfg.ID), rec, err)
		return
	}
	e.stats.applied.Inc(1)
	if !mutated {
		return
	}

	if e.cfg.MaxHops > 0 && rec.Hops >= e.cfg.MaxHops {
		e.stats.droppedHops.Inc(1)
		log.Debugf("%s: not forwarding %s, hop limit reached", DBID(e.cfg.ID), rec)
		return
	}

	fwd := NewRecord(rec.Origin, rec.Entity, agg)
	fwd.Hops = rec.Hops
	e.stats.rebuffered.Inc(1)
	e.enqueue(fwd)
}

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// Buffer records a mutating local write of entity. The record is pushed with the next flush.
func (e *Engine) Buffer(entity string, agg register.Aggregate) {
	e.mu.Lock()
	e.writes++
	e.mu.Unlock()
	e.enqueue(NewRecord(e.cfg.ID, entity, agg))
}

func (e *Engine) enqueue(rec Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		e.since = e.now()
	}
	e.buffer = append(e.buffer, rec)
	e.stats.buffered.Update(int64(len(e.buffer)))
}

// due reports whether the buffer has to be flushed. Must be called with e.mu held.
func (e *Engine) due() bool {
	if len(e.buffer) == 0 {
		return false
	}
	if len(e.buffer) >= e.cfg.DigestLength {
		return true
	}
	return e.cfg.MaxAge > 0 && e.now().Sub(e.since) >= e.cfg.MaxAge
}

// Flush pushes every buffered record to the successor once the buffer holds at least
// digest-length records (or is older than MaxAge). The buffer and the write counter are
// reset. Push errors are logged, the records are lost. Returns the number of records pushed.
func (e *Engine) Flush() int {
	e.mu.Lock()
	if !e.due() {
		e.mu.Unlock()
		return 0
	}
	digest := e.buffer
	e.buffer = nil
	e.writes = 0
	e.stats.buffered.Update(0)
	e.mu.Unlock()

	successor := Successor(e.cfg.ID, e.cfg.NDB)
	pushed := 0
	for _, rec := range digest {
		rec.Hops++
		if err := e.queue.Push(successor, rec); err != nil {
			e.stats.pushErrors.Inc(1)
			log.Warningf("%s: failed to push %s to %s: %v", DBID(e.cfg.ID), rec, DBID(successor), err)
			continue
		}
		pushed++
	}
	e.stats.digests.Inc(1)
	e.stats.flushed.Inc(int64(pushed))
	log.Debugf("%s: flushed %d/%d records to %s", DBID(e.cfg.ID), pushed, len(digest), DBID(successor))
	return pushed
}

// Pending returns the number of buffered records and local writes since the last flush
func (e *Engine) Pending() (records int, writes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer), e.writes
}

// Registry exposes the metrics registry of the engine
func (e *Engine) Registry() metrics.Registry {
	return e.stats.registry
}
