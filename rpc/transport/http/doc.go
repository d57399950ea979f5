// Package http carries gossip records over HTTP and runs the HTTP servers of the
// node and the router.
//
// Key Components:
//
//   - Queue: implements transport.IGossipTransport. Push POSTs the serialized record to
//     /gossip/{node} of the target peer, the Content-Type names the serializer.
//     Handler decodes such requests into the local Inbox and answers 202 at once, so a
//     sender never waits for the receiving engine.
//
//   - Server: wraps http.Server with a debug level request logger and a graceful shutdown.
//
// Thread Safety:
//
//	Push and Handler can be used concurrently. Pop follows the single consumer rule of
//	the gossip engine.
package http
