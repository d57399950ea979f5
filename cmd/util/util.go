package util

import (
	"fmt"
	"strings"
	"time"

	dbUtil "github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by dRate
	EnvPrefix = "drate"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DRATE_* environment variables.
// Dashes in flag names become underscores (log-level -> DRATE_LOG_LEVEL).
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client flags
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection flags of the rating client to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("Base url of the router or node to talk to"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("Timeout of a single request"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint: viper.GetString("endpoint"),
		Timeout:  viper.GetDuration("timeout"),
	}
}

// --------------------------------------------------------------------------
// Parsing helpers
// --------------------------------------------------------------------------

// ParseList splits a comma separated list and drops empty entries
func ParseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ReplicaID maps a human readable replica name (e.g. 'node-1') to the numeric id used by raft
func ReplicaID(name string) uint64 {
	return uint64(dbUtil.HashString(name, 0))
}

// ParseClusterMembers parses 'node-1=localhost:63001,node-2=localhost:63002'
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range ParseList(s) {
		parts := strings.Split(member, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[ReplicaID(parts[0])] = parts[1]
	}
	return members, nil
}
