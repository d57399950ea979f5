package rating

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dRate/lib/router"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [entity]",
		Short: "Reads the rating of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := args[0]
			weak, _ := cmd.Flags().GetBool("weak")
			consistency := router.Strong
			if weak {
				consistency = router.Weak
			}

			resp, err := ratingClient.Get(cmd.Context(), entity, consistency)
			if err != nil {
				return err
			}
			fmt.Printf("entity=%s, rating=%g, choices=%v\n", entity, resp.Rating, resp.Choices)
			for i, clock := range resp.Clocks {
				fmt.Printf("  %g %s\n", resp.Choices[i], vclock.FromMap(clock))
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [entity] [rating]",
		Short: "Writes a rating for an entity",
		Long: `Writes a rating for an entity. --clock (e.g. c1=2,c2=1) is the clock of the write. With --client-id
the entry of that client is advanced by one (or set to --counter), so the write supersedes the given clock.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := args[0]
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("rating must be a number: %w", err)
			}

			clock, err := clockFromFlags(cmd)
			if err != nil {
				return err
			}

			mean, err := ratingClient.Put(cmd.Context(), entity, value, clock)
			if err != nil {
				return err
			}
			fmt.Printf("entity=%s, clock=%s, rating=%g\n", entity, clock, mean)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [entity]",
		Short: "Deletes the rating of an entity on its owner node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ratingClient.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
)

func init() {
	getCmd.Flags().Bool("weak", false, "Read from a random shard instead of the owner")

	putCmd.Flags().String("clock", "", "Vector clock of the write (e.g. c1=2,c2=1)")
	putCmd.Flags().String("client-id", "", "Replica id of the writing client")
	putCmd.Flags().Uint64("counter", 0, "Counter of the writing client (used with --client-id, 0 advances the entry of --clock by one)")
}

// clockFromFlags reads the vector clock of a put. --clock is the clock the client last
// read, --client-id advances the entry of the writer so the write dominates that clock.
func clockFromFlags(cmd *cobra.Command) (vclock.VectorClock, error) {
	raw, _ := cmd.Flags().GetString("clock")
	clientID, _ := cmd.Flags().GetString("client-id")
	counter, _ := cmd.Flags().GetUint64("counter")

	clock, err := vclock.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case clientID == "" && counter > 0:
		return nil, fmt.Errorf("--counter requires --client-id")
	case clientID == "":
		return clock, nil
	case counter == 0:
		return clock.Increment(clientID), nil
	case counter <= clock.Get(clientID):
		return nil, fmt.Errorf("--counter %d does not advance %s=%d", counter, clientID, clock.Get(clientID))
	default:
		m := clock.Map()
		m[clientID] = counter
		return vclock.FromMap(m), nil
	}
}
