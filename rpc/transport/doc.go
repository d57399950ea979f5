// Package transport defines how gossip records travel between rating nodes.
//
// Every transport implements gossip.IQueue. Push sends a record to the inbox of
// another node, Pop reads the inbox of the local node. The implementations are:
//
//   - http: records are POSTed to /gossip/{node} of the peer and land in its Inbox.
//   - tcp: records are written as frames over one persistent connection per peer.
//   - redis: every inbox is a redis list shared by all nodes.
//
// The in-process queue used by tests and the local command lives in the gossip package.
package transport
