// Package dstore implements store.IStore on top of the Dragonboat RAFT consensus
// library. A dRate replica started with the raft backend keeps its aggregates in a raft
// group, so the replica survives the loss of a minority of its machines. Every
// operation on the store is linearizable within the shard.
//
// The package consists of three components:
//
//   - Store Client (store.go): serializes operations into commands, proposes them with
//     SyncPropose and reads with SyncRead. ErrSystemBusy is retried a few times,
//     timeouts are reported as store.RetCUnavailable.
//
//   - State Machine (statemachine.go): a dragonboat IConcurrentStateMachine holding a
//     db.HashDB. The raft log index is used as write index, so replays of the log never
//     overwrite newer data. Snapshots are fuzzy and use the Save and Load methods of the
//     db.HashDB.
//
//   - Log Format: the Command and Query structures of the internal package.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.HashDB { return maple.NewMapleDB(nil) }
//
//	err = nh.StartConcurrentReplica(
//	    members,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// Deploy raft groups with an odd number of replicas (3, 5, ...). Writes need the leader
// and a majority of the group.
package dstore
