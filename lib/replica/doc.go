// Package replica keeps the rating aggregates of one shard on top of a store.IStore.
//
// Every aggregate lives under the key "/rating/<entity>" with the fields
//
//	rating   mean of the choices (JSON number)
//	choices  JSON array of numbers
//	clocks   JSON array of objects, index aligned with choices
//
// Read, merge and write of one entity run under a keyed lock, so concurrent writes to
// the same entity are serialized while writes to different entities run in parallel.
package replica
