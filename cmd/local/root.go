package local

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
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
	localNodes      []common.NodeConfig
	localRouterConf = &common.RouterConfig{}
	LocalCmd        = &cobra.Command{
		Use:   "local",
		Short: "Run a complete ring and the router in one process",
		Long: `Run ndb rating nodes and a router in one process. The nodes gossip through an in-memory queue
and keep their aggregates in memory. Useful for development and demos.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "ndb"
	LocalCmd.PersistentFlags().Int(key, 3, cmdUtil.WrapString("Number of rating nodes to start"))

	key = "endpoint"
	LocalCmd.PersistentFlags().String(key, "0.0.0.0:8000", cmdUtil.WrapString("The address on which the router will listen"))

	key = "node-host"
	LocalCmd.PersistentFlags().String(key, "127.0.0.1", cmdUtil.WrapString("Host the rating nodes bind to"))

	key = "node-base-port"
	LocalCmd.PersistentFlags().Int(key, 8080, cmdUtil.WrapString("Node i listens on node-base-port+i (0 picks free ports)"))

	key = "digest-length"
	LocalCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Number of mutating writes after which the buffered digest is pushed to the successor"))

	key = "gossip-interval"
	LocalCmd.PersistentFlags().Duration(key, 100*time.Millisecond, cmdUtil.WrapString("How often every node drains its gossip queue"))

	key = "digest-max-age"
	LocalCmd.PersistentFlags().Duration(key, time.Second, cmdUtil.WrapString("Push a non empty digest after this time (0 disables)"))

	key = "timeout"
	LocalCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("Timeout of forwarded requests"))

	key = "log-level"
	LocalCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig builds one node configuration per node and the router configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	ndb := viper.GetInt("ndb")
	if ndb < 1 {
		return fmt.Errorf("ndb must be at least 1, got %d", ndb)
	}
	host := viper.GetString("node-host")
	basePort := viper.GetInt("node-base-port")

	localNodes = make([]common.NodeConfig, ndb)
	for i := range localNodes {
		port := 0
		if basePort > 0 {
			port = basePort + i
		}
		localNodes[i] = common.NodeConfig{
			ID:             i,
			NDB:            ndb,
			Endpoint:       net.JoinHostPort(host, strconv.Itoa(port)),
			Timeout:        viper.GetDuration("timeout"),
			DigestLength:   viper.GetInt("digest-length"),
			GossipInterval: viper.GetDuration("gossip-interval"),
			DigestMaxAge:   viper.GetDuration("digest-max-age"),
			Queue:          common.QueueMemory,
			Serializer:     "json",
			Backend:        common.BackendLocal,
			LockTimeout:    viper.GetDuration("timeout"),
			LogLevel:       viper.GetString("log-level"),
		}
	}

	localRouterConf.Endpoint = viper.GetString("endpoint")
	localRouterConf.Timeout = viper.GetDuration("timeout")
	localRouterConf.LogLevel = viper.GetString("log-level")
	return nil
}

// run starts the cluster and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(localRouterConf.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc, err := server.StartLocalCluster(ctx, localNodes, *localRouterConf)
	if err != nil {
		return err
	}
	for i, s := range lc.Nodes() {
		log.Infof("db%d listening on %s", i, s.Addr())
	}
	log.Infof("router listening on %s", lc.Addr())
	return lc.Wait(ctx)
}
