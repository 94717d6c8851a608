// Package entry defines the bit-packed metadata words of the frame allocator
// and the atomic primitive used to mutate them.
//
// # Levels
//
// Three levels of metadata describe the managed range:
//
//   - Entry3: one per subtree (the giant-page granularity). Kept in volatile
//     memory and rebuilt on every start.
//   - Entry2: one per region (the huge-page granularity). Stored in the region
//     table frames at the end of the managed range.
//   - Entry1: one per frame, stored in a region's leaf table. The leaf table
//     itself lives inside one of the region's own free frames.
//
// # Transitions
//
// Entries are never mutated field by field. Every change goes through a total
// transition method returning (next, ok). ok == false is a logical rejection:
// the current word does not allow the transition and no compare-and-swap is
// attempted. Atomic.Update applies a transition with a CAS loop and only
// retries on contention.
package entry
