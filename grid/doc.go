// Package grid grows a lattice of scored locations outward from the
// destination.
//
// Ring 0 is the destination cell. Each following ring is made of the
// unvisited neighbours of the previous one, scored in a bounded worker pool
// with a barrier between rings. Expansion stops at the first ring in which
// no point scores within the threshold, at an optional ring cap, or when
// the context is cancelled. Completed rings can be checkpointed to SQLite
// and an interrupted run continued from them.
package grid
