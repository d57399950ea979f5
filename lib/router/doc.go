// Package router maps entities to the shard that owns them.
//
// The owner of an entity is sha1(entity) read as a big-endian integer, modulo ndb.
// Strong reads and all writes go to the owner, weak reads to a uniformly random shard.
//
// Usage Example:
//
//	r := router.New(3)
//	owner := r.Owner("bob")
//	shard := r.ChooseShard("bob", router.ParseConsistency("weak"))
package router
