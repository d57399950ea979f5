// Package vclock implements vector clocks: causal timestamps mapping a replica id to a
// counter. Clocks form a partial order, two clocks are concurrent when neither
// dominates the other pointwise.
//
// A VectorClock is treated as an immutable value. Every method that produces a clock
// returns a fresh map, callers never mutate a clock they did not create.
//
// Usage Example:
//
//	read, _ := vclock.Parse("c1=2,c2=1")
//	next := read.Increment("c2") // {c1=2,c2=2}
//	vclock.Compare(next, read)   // After
package vclock
