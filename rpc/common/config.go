package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (dstore backend)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1

	// shardIDOffset keeps raft shard ids of rating nodes away from 0, which dragonboat rejects
	shardIDOffset = 100
)

// RaftShardID returns the raft shard that replicates the aggregates of the rating node id
func RaftShardID(id int) uint64 {
	return uint64(id) + shardIDOffset
}

// ToDragonboatConfig converts the NodeConfig to a Dragonboat Config for the shard of this node
func (c *NodeConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            RaftShardID(c.ID),
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *NodeConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Enumerations
// --------------------------------------------------------------------------

// BackendType selects the field store holding the aggregates of a node
type BackendType string

const (
	BackendLocal       BackendType = "lstore"
	BackendRedis       BackendType = "rstore"
	BackendDistributed BackendType = "dstore"
)

// QueueType selects how gossip records travel between nodes
type QueueType string

const (
	QueueMemory QueueType = "memory"
	QueueHTTP   QueueType = "http"
	QueueTCP    QueueType = "tcp"
	QueueRedis  QueueType = "redis"
)

// --------------------------------------------------------------------------
// Rating node configuration struct
// --------------------------------------------------------------------------

// NodeConfig holds all configuration parameters of a single rating node.
type NodeConfig struct {
	// identity and ring
	ID    int
	NDB   int
	Peers []string // base url of every node, index = node id

	// HTTP api settings
	Endpoint string
	Timeout  time.Duration

	// gossip
	DigestLength   int
	GossipInterval time.Duration
	DigestMaxAge   time.Duration
	MaxHops        int
	GossipInline   bool
	Queue          QueueType
	QueueRedisAddr string
	GossipEndpoint string // tcp listen address (tcp queue only)
	GossipPeers    []string
	Serializer     string

	// backing store
	Backend     BackendType
	RedisAddr   string
	RedisDB     int
	LockTimeout time.Duration

	// Dragonboat parameters (dstore backend)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// Logging configuration
	LogLevel string
}

// Validate checks the parts of the configuration that cannot be checked flag by flag
func (c *NodeConfig) Validate() error {
	if c.NDB < 1 {
		return fmt.Errorf("ndb must be at least 1, got %d", c.NDB)
	}
	if c.ID < 0 || c.ID >= c.NDB {
		return fmt.Errorf("id must be in [0, %d), got %d", c.NDB, c.ID)
	}
	if c.DigestLength < 1 {
		return fmt.Errorf("digest-length must be at least 1, got %d", c.DigestLength)
	}
	switch c.Queue {
	case QueueHTTP:
		if len(c.Peers) != c.NDB {
			return fmt.Errorf("the http queue needs %d peers, got %d", c.NDB, len(c.Peers))
		}
	case QueueTCP:
		if len(c.GossipPeers) != c.NDB {
			return fmt.Errorf("the tcp queue needs %d gossip peers, got %d", c.NDB, len(c.GossipPeers))
		}
	case QueueRedis, QueueMemory:
	default:
		return fmt.Errorf("invalid queue %q (expected one of: http, tcp, redis, memory)", c.Queue)
	}
	switch c.Backend {
	case BackendLocal, BackendRedis:
	case BackendDistributed:
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
		}
	default:
		return fmt.Errorf("invalid backend %q (expected one of: lstore, rstore, dstore)", c.Backend)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *NodeConfig) String() string {
	var sb strings.Builder
	addSection, addField := sectionWriters(&sb)

	// Node identity
	addSection("Rating Node")
	addField("Node ID", fmt.Sprintf("db%d", c.ID))
	addField("Ring Size (ndb)", strconv.Itoa(c.NDB))
	addField("Endpoint", c.Endpoint)
	addField("Timeout", c.Timeout.String())

	// Gossip
	addSection("Gossip")
	addField("Queue", string(c.Queue))
	addField("Serializer", c.Serializer)
	addField("Digest Length", strconv.Itoa(c.DigestLength))
	addField("Interval", c.GossipInterval.String())
	addField("Digest Max Age", durationOrOff(c.DigestMaxAge))
	if c.MaxHops > 0 {
		addField("Max Hops", strconv.Itoa(c.MaxHops))
	} else {
		addField("Max Hops", "unbounded")
	}
	addField("Inline", fmt.Sprintf("%t", c.GossipInline))
	switch c.Queue {
	case QueueRedis:
		addField("Redis Address", c.QueueRedisAddr)
	case QueueTCP:
		addField("Listen Address", c.GossipEndpoint)
		for i, peer := range c.GossipPeers {
			addField(fmt.Sprintf("Peer db%d", i), peer)
		}
	case QueueHTTP:
		for i, peer := range c.Peers {
			addField(fmt.Sprintf("Peer db%d", i), peer)
		}
	}

	// Storage
	addSection("Storage")
	addField("Backend", string(c.Backend))
	addField("Lock Timeout", durationOrOff(c.LockTimeout))
	if c.Backend == BackendRedis {
		addField("Redis Address", c.RedisAddr)
		addField("Redis DB", strconv.Itoa(c.RedisDB))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Backend == BackendDistributed {
		// Raft identity
		addSection("Raft Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Replica ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(RaftShardID(c.ID), 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Data Directory", c.DataDir)

		// Cluster members
		addSection("Raft Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Replica %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Router configuration struct
// --------------------------------------------------------------------------

// RouterConfig holds the configuration of the shard router
type RouterConfig struct {
	Endpoint string
	Shards   []string // base url of every node, index = shard
	Timeout  time.Duration

	// circuit breaker per shard
	BreakerFailures uint32
	BreakerCooldown time.Duration

	LogLevel string
}

// NDB returns the number of shards behind the router
func (c *RouterConfig) NDB() int {
	return len(c.Shards)
}

// String returns a formatted string representation of the router configuration
func (c *RouterConfig) String() string {
	var sb strings.Builder
	addSection, addField := sectionWriters(&sb)

	addSection("Router")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", c.Timeout.String())
	addField("Breaker Failures", strconv.FormatUint(uint64(c.BreakerFailures), 10))
	addField("Breaker Cooldown", c.BreakerCooldown.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Shards")
	for i, shard := range c.Shards {
		addField(fmt.Sprintf("db%d", i), shard)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the HTTP rating client
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection, addField := sectionWriters(&sb)

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", c.Timeout.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// sectionWriters returns helper functions for consistent formatting
func sectionWriters(sb *strings.Builder) (addSection func(string), addField func(string, string)) {
	addSection = func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField = func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return addSection, addField
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}
