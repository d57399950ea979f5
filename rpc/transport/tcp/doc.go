// Package tcp carries gossip records as length prefixed frames over plain TCP.
//
// Every node keeps one outgoing connection per peer, dialed on the first push and
// redialed once when a write fails. The receiving side accepts any number of peer
// connections and decodes their frames into the inbox of the local node.
//
// Frame format (big endian):
//
//	uint32 receiving node | uint32 payload length | payload (serialized record)
//
// There is no content negotiation on this transport, all nodes of a ring must be
// started with the same serializer.
package tcp
