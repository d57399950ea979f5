// Package register implements the multi-value register that holds the ratings of an
// entity. Every retained choice is tagged with the vector clock of the write that
// produced it, the retained clocks are pairwise concurrent.
package register
