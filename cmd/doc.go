// Package cmd implements the command-line interface of dRate. It provides commands
// for running the rating nodes and the router and for talking to them as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Start a single rating node (one member of the ring)
//   - router: Start the stateless shard router in front of the nodes
//   - local: Run a whole ring plus router in one process
//   - rating: Client commands (get, put, del) and a load test (bench)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable DRATE_<FLAG> (dashes become
// underscores) or a .env / .env.local file in the working directory.
//
// See drate -help for a list of all commands.
package cmd
