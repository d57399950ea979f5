package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dRate/cmd/local"
	"github.com/ValentinKolb/dRate/cmd/rating"
	"github.com/ValentinKolb/dRate/cmd/router"
	"github.com/ValentinKolb/dRate/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "drate",
		Short: "sharded multi-writer ratings store",
		Long: fmt.Sprintf(`dRate (v%s)

A sharded ratings store written in Go. Every entity is owned by one node of a ring,
concurrent writes are kept as siblings of a multi-value register and spread to all
nodes by ring gossip.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dRate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dRate v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(router.RouterCmd)
	RootCmd.AddCommand(local.LocalCmd)
	RootCmd.AddCommand(rating.RatingCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
