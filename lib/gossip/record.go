package gossip

import (
	"fmt"

	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
)

// Record is one gossip message: the full register snapshot of an entity as seen by a node.
type Record struct {
	Origin  int                  `json:"origin"`  // node that produced the write
	Entity  string               `json:"entity"`  // entity the snapshot belongs to
	Mean    float64              `json:"rating"`  // mean of Choices
	Choices []float64            `json:"choices"` // index aligned with Clocks
	Clocks  []vclock.VectorClock `json:"clocks"`
	Hops    int                  `json:"hops"` // ring hops taken so far
}

// NewRecord creates a record for the aggregate of entity
func NewRecord(origin int, entity string, agg register.Aggregate) Record {
	agg = agg.Copy()
	return Record{
		Origin:  origin,
		Entity:  entity,
		Mean:    agg.Mean(),
		Choices: agg.Choices,
		Clocks:  agg.Clocks,
	}
}

// Validate checks the record before it is applied
func (r Record) Validate() error {
	if r.Entity == "" {
		return store.NewError(store.RetCBadRequest, "gossip record without entity")
	}
	if r.Origin < 0 {
		return store.Errorf(store.RetCBadRequest, "gossip record with negative origin %d", r.Origin)
	}
	return register.Aggregate{Choices: r.Choices, Clocks: r.Clocks}.Validate()
}

func (r Record) String() string {
	return fmt.Sprintf("record{origin=db%d entity=%q rating=%g choices=%d hops=%d}",
		r.Origin, r.Entity, r.Mean, len(r.Choices), r.Hops)
}

// DBID returns the name of a node, as used in logs
func DBID(id int) string {
	return fmt.Sprintf("db%d", id)
}

// Successor returns the ring successor of node id
func Successor(id, ndb int) int {
	return (id + 1) % ndb
}
