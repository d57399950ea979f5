package vclock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Relation is the result of comparing two vector clocks
type Relation int

const (
	Before     Relation = iota // a happened before b
	After                      // a happened after b
	Equal                      // a and b are identical
	Concurrent                 // neither dominates the other
)

func (r Relation) String() string {
	switch r {
	case Before:
		return "Before"
	case After:
		return "After"
	case Equal:
		return "Equal"
	case Concurrent:
		return "Concurrent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// VectorClock maps a replica id to its counter. Missing entries are 0.
type VectorClock map[string]uint64

// New returns an empty clock
func New() VectorClock {
	return VectorClock{}
}

// FromMap builds a clock from a plain mapping. Zero counters are dropped since
// they are indistinguishable from missing entries.
func FromMap(m map[string]uint64) VectorClock {
	vc := make(VectorClock, len(m))
	for id, counter := range m {
		if counter > 0 {
			vc[id] = counter
		}
	}
	return vc
}

// Map returns the clock as a plain mapping (a copy)
func (vc VectorClock) Map() map[string]uint64 {
	m := make(map[string]uint64, len(vc))
	for id, counter := range vc {
		m[id] = counter
	}
	return m
}

// Copy returns a deep copy of the clock
func (vc VectorClock) Copy() VectorClock {
	return VectorClock(vc.Map())
}

// Get returns the counter for the replica id (0 if unset)
func (vc VectorClock) Get(id string) uint64 {
	return vc[id]
}

// Increment returns a new clock with the counter of id advanced by one
func (vc VectorClock) Increment(id string) VectorClock {
	next := vc.Copy()
	next[id]++
	return next
}

// LessEqual reports whether every counter of a is <= the matching counter of b
func LessEqual(a, b VectorClock) bool {
	for id, counter := range a {
		if counter > b[id] {
			return false
		}
	}
	return true
}

// Less reports whether a <= b and a != b
func Less(a, b VectorClock) bool {
	return LessEqual(a, b) && !LessEqual(b, a)
}

// Compare compares every counter in the union of both clocks
func Compare(a, b VectorClock) Relation {
	aLE := LessEqual(a, b)
	bLE := LessEqual(b, a)
	switch {
	case aLE && bLE:
		return Equal
	case aLE:
		return Before
	case bLE:
		return After
	default:
		return Concurrent
	}
}

// String renders the clock as "id=counter" pairs sorted by id
func (vc VectorClock) String() string {
	ids := make([]string, 0, len(vc))
	for id := range vc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+"="+strconv.FormatUint(vc[id], 10))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Parse reads a clock in the format "c1=1,c2=3". Whitespace around ids and counters is
// ignored, an empty string yields an empty clock.
func Parse(s string) (VectorClock, error) {
	vc := New()
	s = strings.TrimSpace(s)
	if s == "" {
		return vc, nil
	}

	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid clock entry %q (expected id=counter)", part)
		}
		id := strings.TrimSpace(kv[0])
		if id == "" {
			return nil, fmt.Errorf("invalid clock entry %q: empty replica id", part)
		}
		counter, err := strconv.ParseUint(strings.TrimSpace(kv[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter for %s: %w", id, err)
		}
		if _, dup := vc[id]; dup {
			return nil, fmt.Errorf("duplicate replica id %s", id)
		}
		if counter > 0 {
			vc[id] = counter
		} else {
			// remember the id for duplicate detection, dropped below
			vc[id] = 0
		}
	}
	return FromMap(vc), nil
}
