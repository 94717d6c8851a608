// Package lower implements the region and leaf level of the frame allocator.
//
// # Layout
//
// The lower allocator sees the managed range as an array of 4 KiB frames:
//
//	[ data frames 0..N-1 | ... | region tables | meta ]
//
// Every subtree owns one region table frame holding one Entry2 word per
// region. Every region with a leaf table stores that table inside one of its
// own free frames, at slot i1 of the region. The table frame is never handed
// out while other frames of the region are free. Allocating the region's last
// free frame hands out the table frame itself, and freeing a frame of a full
// region rebuilds the table inside the freed frame.
//
// All positions are computed from frame numbers; nothing stores pointers, so
// the structure is valid wherever the range is mapped.
//
// # Concurrency
//
// Region entries and leaf words are only changed with single-word CAS. Before
// touching a region's leaf table an allocating core publishes a claim on the
// table frame. The core that takes the last free frame waits until no other
// core claims that table before handing the frame out.
package lower
