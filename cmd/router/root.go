package router

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
	routerCmdConfig = &common.RouterConfig{}
	RouterCmd       = &cobra.Command{
		Use:   "router",
		Short: "Start the shard router",
		Long: `Start the stateless router in front of the rating nodes. Writes go to the owner shard of the entity,
reads go to the owner (strong) or to a random shard (weak). The format of the environment variables is DRATE_<flag> (e.g. DRATE_SHARDS=...)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "endpoint"
	RouterCmd.PersistentFlags().String(key, "0.0.0.0:8000", cmdUtil.WrapString("The address on which the router will listen"))

	key = "shards"
	RouterCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated base urls of all rating nodes, ordered by id (e.g. http://db0:8080,http://db1:8080)"))

	key = "timeout"
	RouterCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("Timeout of a single forwarded request"))

	key = "breaker-failures"
	RouterCmd.PersistentFlags().Uint32(key, 5, cmdUtil.WrapString("Consecutive transport failures after which the circuit breaker of a shard opens (0 disables the breaker)"))

	key = "breaker-cooldown"
	RouterCmd.PersistentFlags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long an open breaker rejects requests before probing the shard again"))

	key = "log-level"
	RouterCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the router configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	routerCmdConfig.Endpoint = viper.GetString("endpoint")
	routerCmdConfig.Shards = cmdUtil.ParseList(viper.GetString("shards"))
	routerCmdConfig.Timeout = viper.GetDuration("timeout")
	routerCmdConfig.BreakerFailures = viper.GetUint32("breaker-failures")
	routerCmdConfig.BreakerCooldown = viper.GetDuration("breaker-cooldown")
	routerCmdConfig.LogLevel = viper.GetString("log-level")

	if routerCmdConfig.NDB() == 0 {
		return fmt.Errorf("at least one shard is required")
	}
	return nil
}

// run starts the router and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(routerCmdConfig.LogLevel); err != nil {
		return err
	}
	log.Infof("starting router\n%s", routerCmdConfig.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.ServeRouter(ctx, *routerCmdConfig)
}
