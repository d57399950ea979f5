// Package common provides the types shared by the servers, clients and commands of dRate.
//
// Key Components:
//
//   - NodeConfig, RouterConfig, ClientConfig: process configuration, filled by the cmd
//     package from flags, environment and .env files. NodeConfig also converts the raft
//     settings of the dstore backend into dragonboat configurations.
//
//   - PutRequest, GetResponse, ...: the JSON payloads of the rating api. JSON is the
//     codec used for every payload.
//
//   - Logger: a dragonboat logger.ILogger with a fixed "LEVEL | name | message" layout.
//     InitLoggers installs it and sets the level of every project and raft logger.
package common
