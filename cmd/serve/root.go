package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dRate/cmd/util"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/ValentinKolb/dRate/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("cmd")

var (
	serveCmdConfig = &common.NodeConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a rating node",
		Long: `Start a single rating node (dbN) of the ring. The configuration can be set via command line flags or environment variables.
The format of the environment variables is DRATE_<flag> (e.g. DRATE_DIGEST_LENGTH=10)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// identity and ring
	key := "id"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Index of this node in the ring (0 <= id < ndb)"))

	key = "ndb"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Number of rating nodes in the ring"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the HTTP api will listen"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated base urls of all nodes, ordered by id (required for the http queue)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("Timeout of gossip pushes (http, tcp and redis queue), raft proposals (dstore) and redis commands (rstore)"))

	// gossip
	key = "digest-length"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Number of mutating writes after which the buffered digest is pushed to the successor"))

	key = "gossip-interval"
	ServeCmd.PersistentFlags().Duration(key, 100*time.Millisecond, cmdUtil.WrapString("How often the node drains its gossip queue and checks whether a digest is due"))

	key = "digest-max-age"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Push a non empty digest after this time even if fewer than digest-length writes happened (0 disables)"))

	key = "max-hops"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Records that travelled this many hops are applied but not forwarded (0 means unbounded)"))

	key = "gossip-inline"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Drain and flush gossip as part of every rating request instead of only in the background"))

	key = "queue"
	ServeCmd.PersistentFlags().String(key, string(common.QueueHTTP), cmdUtil.WrapString("How gossip records travel between nodes (http, tcp, redis, memory)"))

	key = "queue-redis-addr"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("Address of the redis server holding the gossip lists (redis queue only)"))

	key = "gossip-endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:9090", cmdUtil.WrapString("Address the gossip listener binds to (tcp queue only)"))

	key = "gossip-peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated gossip addresses of all nodes, ordered by id (tcp queue only)"))

	key = "serializer"
	ServeCmd.PersistentFlags().String(key, "json", cmdUtil.WrapString("Wire format of gossip records (json, gob, binary). All nodes of a ring must agree"))

	// backing store
	key = "backend"
	ServeCmd.PersistentFlags().String(key, string(common.BackendLocal), cmdUtil.WrapString("Store holding the aggregates (lstore, rstore, dstore)"))

	key = "redis-addr"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("Address of the redis server (rstore backend only)"))

	key = "redis-db"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Redis database number (rstore backend only)"))

	key = "lock-timeout"
	ServeCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("How long a write waits to acquire the per entity lock of its read-modify-write cycle before failing (0 waits forever)"))

	// raft (dstore backend)
	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. Other raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots that should be retained in the system"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for storing the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the node configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	cfg, err := ReadNodeConfig()
	if err != nil {
		return err
	}
	*serveCmdConfig = cfg
	return serveCmdConfig.Validate()
}

// ReadNodeConfig builds a node configuration from the values bound to viper
func ReadNodeConfig() (common.NodeConfig, error) {
	cfg := common.NodeConfig{
		ID:       viper.GetInt("id"),
		NDB:      viper.GetInt("ndb"),
		Peers:    cmdUtil.ParseList(viper.GetString("peers")),
		Endpoint: viper.GetString("endpoint"),
		Timeout:  viper.GetDuration("timeout"),

		DigestLength:   viper.GetInt("digest-length"),
		GossipInterval: viper.GetDuration("gossip-interval"),
		DigestMaxAge:   viper.GetDuration("digest-max-age"),
		MaxHops:        viper.GetInt("max-hops"),
		GossipInline:   viper.GetBool("gossip-inline"),
		Queue:          common.QueueType(viper.GetString("queue")),
		QueueRedisAddr: viper.GetString("queue-redis-addr"),
		GossipEndpoint: viper.GetString("gossip-endpoint"),
		GossipPeers:    cmdUtil.ParseList(viper.GetString("gossip-peers")),
		Serializer:     viper.GetString("serializer"),

		Backend:     common.BackendType(viper.GetString("backend")),
		RedisAddr:   viper.GetString("redis-addr"),
		RedisDB:     viper.GetInt("redis-db"),
		LockTimeout: viper.GetDuration("lock-timeout"),

		RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:    viper.GetUint64("snapshot-entries"),
		CompactionOverhead: viper.GetUint64("compaction-overhead"),
		DataDir:            viper.GetString("data-dir"),

		LogLevel: viper.GetString("log-level"),
	}

	if cfg.Backend != common.BackendDistributed {
		return cfg, nil
	}

	// parse replica id
	id := viper.GetString("replica-id")
	if id == "" {
		return cfg, fmt.Errorf("replica-id is required for the dstore backend")
	}
	cfg.ReplicaID = cmdUtil.ReplicaID(id)

	// parse cluster members
	members := viper.GetString("cluster-members")
	if members == "" {
		return cfg, fmt.Errorf("cluster-members is required for the dstore backend")
	}
	parsed, err := cmdUtil.ParseClusterMembers(members)
	if err != nil {
		return cfg, err
	}
	cfg.ClusterMembers = parsed
	return cfg, nil
}

// run starts the rating node and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	log.Infof("starting rating node\n%s", serveCmdConfig.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewNodeServer(*serveCmdConfig, nil)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
