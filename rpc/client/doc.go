// Package client implements an HTTP client for the rating api.
//
// Nodes and routers serve the same /rating/{entity} surface, so a Client can point at
// either of them. Non 2xx answers are returned as *store.Error with the code matching
// the status (404 = RetCNotFound, 503 = RetCUnavailable, ...). Connection problems and
// timeouts are RetCUnavailable.
//
// Usage Example:
//
//	c := client.New(common.ClientConfig{Endpoint: "localhost:8080", Timeout: 5 * time.Second})
//	defer c.Close()
//
//	mean, err := c.Put(ctx, "bob", 4, vclock.VectorClock{"c1": 1})
//	agg, err := c.Get(ctx, "bob", router.Weak)
//	err = c.Delete(ctx, "bob")
//
// A Client is safe for concurrent use.
package client
