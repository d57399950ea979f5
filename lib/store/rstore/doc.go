// Package rstore implements store.IStore on top of redis hashes (go-redis). Every key
// is a redis hash holding the aggregate fields (rating, choices, clocks), so several
// replica processes can be restarted without losing state.
//
// Errors caused by timeouts or an unreachable redis server are reported as
// store.RetCUnavailable, everything else as store.RetCInternalError.
package rstore
