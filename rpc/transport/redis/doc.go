// Package redis keeps the gossip inboxes of a ring in a shared redis server.
//
// Every node owns one list, named <prefix>gossip:db<id>. Pushing a record to a node
// appends the serialized record with RPUSH, the node drains its list with LPOP. Nodes
// never talk to each other directly, so this transport works when the nodes cannot
// reach each other but all of them reach redis.
//
// Records are stored in the format of the configured serializer. The same serializer
// has to be used by every node sharing the server.
package redis
