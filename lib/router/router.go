package router

import (
	"crypto/sha1"
	"math/big"
	"math/rand"
	"sync"
	"time"
)

// Consistency selects which shard serves a read
type Consistency int

const (
	Strong Consistency = iota // read from the owning shard
	Weak                      // read from a uniformly random shard
)

func (c Consistency) String() string {
	if c == Weak {
		return "weak"
	}
	return "strong"
}

// ParseConsistency parses the consistency query parameter. Everything except "weak" is strong.
func ParseConsistency(s string) Consistency {
	if s == "weak" {
		return Weak
	}
	return Strong
}

// HashEntity returns the owning shard of entity: the SHA-1 digest of the entity,
// read as a big-endian unsigned integer, modulo ndb.
func HashEntity(entity string, ndb int) int {
	if ndb <= 1 {
		return 0
	}
	digest := sha1.Sum([]byte(entity))
	n := new(big.Int).SetBytes(digest[:])
	return int(n.Mod(n, big.NewInt(int64(ndb))).Int64())
}

// Router chooses shards for a fixed number of shards
type Router struct {
	ndb    int
	mu     sync.Mutex
	random func(n int) int
}

// New creates a router for ndb shards with a time seeded random source for weak reads
func New(ndb int) *Router {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return NewWithRand(ndb, r.Intn)
}

// NewWithRand creates a router that draws weak read shards from random.
// random(n) must return a value in [0, n).
func NewWithRand(ndb int, random func(n int) int) *Router {
	if ndb < 1 {
		ndb = 1
	}
	return &Router{ndb: ndb, random: random}
}

// NDB returns the number of shards
func (r *Router) NDB() int {
	return r.ndb
}

// Owner returns the shard owning entity. Writes and deletes always go to the owner.
func (r *Router) Owner(entity string) int {
	return HashEntity(entity, r.ndb)
}

// ChooseShard returns the shard serving a read of entity
func (r *Router) ChooseShard(entity string, c Consistency) int {
	if c != Weak {
		return r.Owner(entity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.random(r.ndb)
}
