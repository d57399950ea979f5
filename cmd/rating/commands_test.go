package rating

import (
	"testing"

	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPutCmd returns a command with the clock flags of put, parsed from args
func newPutCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	fresh := &cobra.Command{}
	fresh.Flags().String("clock", "", "")
	fresh.Flags().String("client-id", "", "")
	fresh.Flags().Uint64("counter", 0, "")
	require.NoError(t, fresh.Flags().Parse(args))
	return fresh
}

func TestClockFromFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		clock vclock.VectorClock
		err   bool
	}{
		{"Empty", nil, vclock.VectorClock{}, false},
		{"Clock", []string{"--clock", "c1=2,c2=1"}, vclock.VectorClock{"c1": 2, "c2": 1}, false},
		{"ClientIncrement", []string{"--client-id", "c1"}, vclock.VectorClock{"c1": 1}, false},
		{"ClientCounter", []string{"--client-id", "c1", "--counter", "7"}, vclock.VectorClock{"c1": 7}, false},
		{"ClockAdvanced", []string{"--clock", "c1=1,c2=4", "--client-id", "c1"}, vclock.VectorClock{"c1": 2, "c2": 4}, false},
		{"ClockNewClient", []string{"--clock", "c1=2", "--client-id", "c3"}, vclock.VectorClock{"c1": 2, "c3": 1}, false},
		{"ClockCounter", []string{"--clock", "c1=2,c2=1", "--client-id", "c2", "--counter", "5"}, vclock.VectorClock{"c1": 2, "c2": 5}, false},
		{"CounterNotAdvancing", []string{"--clock", "c1=3", "--client-id", "c1", "--counter", "2"}, nil, true},
		{"CounterWithoutClient", []string{"--counter", "2"}, nil, true},
		{"InvalidClock", []string{"--clock", "c1"}, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock, err := clockFromFlags(newPutCmd(t, tc.args...))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.clock, clock)
		})
	}

	t.Run("DominatesReadClock", func(t *testing.T) {
		read := vclock.VectorClock{"c1": 3, "c2": 1}
		clock, err := clockFromFlags(newPutCmd(t, "--clock", "c1=3,c2=1", "--client-id", "c2"))
		require.NoError(t, err)
		assert.Equal(t, vclock.After, vclock.Compare(clock, read))
	})
}
