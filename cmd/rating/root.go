package rating

import (
	"github.com/ValentinKolb/dRate/cmd/util"
	"github.com/ValentinKolb/dRate/rpc/client"
	"github.com/spf13/cobra"
)

var (
	ratingClient *client.Client

	// RatingCommands represents the rating command group
	RatingCommands = &cobra.Command{
		Use:               "rating",
		Short:             "Read and write ratings through a router or node",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common client flags to the rating command
	util.SetupClientFlags(RatingCommands)

	// Add subcommands
	RatingCommands.AddCommand(getCmd)
	RatingCommands.AddCommand(putCmd)
	RatingCommands.AddCommand(delCmd)
	RatingCommands.AddCommand(benchCmd)
}

// setupClient initializes the HTTP rating client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	ratingClient = client.New(*util.GetClientConfig())
	return nil
}
