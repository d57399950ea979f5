package register

import (
	"math"

	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
)

// Aggregate is the register content of one entity. Choices[i] was written with Clocks[i].
type Aggregate struct {
	Choices []float64
	Clocks  []vclock.VectorClock
}

// Empty returns an aggregate without choices
func Empty() Aggregate {
	return Aggregate{
		Choices: []float64{},
		Clocks:  []vclock.VectorClock{},
	}
}

// IsEmpty reports whether the aggregate holds no choice
func (a Aggregate) IsEmpty() bool {
	return len(a.Choices) == 0
}

// Mean returns the arithmetic mean of all choices, 0 for an empty aggregate. The mean
// of finite choices is always finite.
func (a Aggregate) Mean() float64 {
	if len(a.Choices) == 0 {
		return 0
	}
	n := float64(len(a.Choices))
	var sum float64
	for _, c := range a.Choices {
		sum += c
	}
	if !math.IsInf(sum, 0) {
		return sum / n
	}

	// the sum overflowed, every c/n is bounded by max |c| and so is their sum
	var mean float64
	for _, c := range a.Choices {
		mean += c / n
	}
	return mean
}

// Validate checks that choices and clocks are index aligned
func (a Aggregate) Validate() error {
	if len(a.Choices) != len(a.Clocks) {
		return store.Errorf(store.RetCInvariantViolation,
			"aggregate holds %d choices but %d clocks", len(a.Choices), len(a.Clocks))
	}
	return nil
}

// Copy returns a deep copy of the aggregate
func (a Aggregate) Copy() Aggregate {
	c := Aggregate{
		Choices: make([]float64, len(a.Choices)),
		Clocks:  make([]vclock.VectorClock, len(a.Clocks)),
	}
	copy(c.Choices, a.Choices)
	for i, clock := range a.Clocks {
		c.Clocks[i] = clock.Copy()
	}
	return c
}

// Merge folds a write (value, clock) into the register and returns the new register,
// its mean and whether anything changed.
//
//   - clock <= a retained clock: the write is stale (or a duplicate), nothing changes
//   - clock > a retained clock: the first dominated entry is replaced, later dominated
//     entries are dropped
//   - concurrent entries are kept, the write is appended if it replaced nothing
//
// The input register is never modified.
func Merge(reg Aggregate, value float64, clock vclock.VectorClock) (Aggregate, float64, bool) {
	if reg.IsEmpty() {
		res := Aggregate{
			Choices: []float64{value},
			Clocks:  []vclock.VectorClock{clock.Copy()},
		}
		return res, value, true
	}

	for _, stored := range reg.Clocks {
		if vclock.LessEqual(clock, stored) {
			return reg, reg.Mean(), false
		}
	}

	res := Aggregate{
		Choices: make([]float64, 0, len(reg.Choices)+1),
		Clocks:  make([]vclock.VectorClock, 0, len(reg.Clocks)+1),
	}
	replaced := false
	for i, stored := range reg.Clocks {
		if vclock.Less(stored, clock) {
			if replaced {
				continue
			}
			replaced = true
			res.Choices = append(res.Choices, value)
			res.Clocks = append(res.Clocks, clock.Copy())
			continue
		}
		res.Choices = append(res.Choices, reg.Choices[i])
		res.Clocks = append(res.Clocks, stored)
	}
	if !replaced {
		res.Choices = append(res.Choices, value)
		res.Clocks = append(res.Clocks, clock.Copy())
	}
	return res, res.Mean(), true
}

// MergeAll folds every (choice, clock) pair of a snapshot into the register. The
// boolean is true if at least one pair changed the register.
func MergeAll(reg Aggregate, choices []float64, clocks []vclock.VectorClock) (Aggregate, float64, bool, error) {
	snapshot := Aggregate{Choices: choices, Clocks: clocks}
	if err := snapshot.Validate(); err != nil {
		return reg, reg.Mean(), false, err
	}

	mutated := false
	for i := range choices {
		var changed bool
		reg, _, changed = Merge(reg, choices[i], clocks[i])
		mutated = mutated || changed
	}
	return reg, reg.Mean(), mutated, nil
}
