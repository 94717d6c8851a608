// Package frame implements a lock-free frame allocator for persistent memory.
//
// The allocator manages a contiguous, frame aligned byte range and hands out
// 4 KiB small frames, 2 MiB huge frames (whole regions) and giant frames
// (whole subtrees) to a fixed number of cores. All metadata that must
// survive a restart lives inside the range itself:
//
//	[ data frames | slack | region tables | meta header ]
//
// Each region keeps its leaf table in one of its own free frames; see
// package lower. The subtree directory and its free lists are volatile and
// rebuilt by New from the region tables.
//
// # Concurrency
//
// Every shared word is changed with single-word CAS. A core is identified by
// a small integer; the caller must not use one core index from two
// goroutines at once. Stats, Snapshot and AllocatedPages scan the directory
// and are only exact while no core is working.
//
// # Persistence
//
// New formats the range if overwrite is set or the header does not match,
// and recovers otherwise. Close clears the header's active flag; finding it
// set on the next New triggers a deep recovery that recounts every leaf
// table. OpenFile maps a file and flushes metadata on Sync and Close.
//
// # Example
//
//	a, err := frame.OpenFile("frames.bin", 1<<30, runtime.NumCPU(), false, nil)
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	addr, err := a.Get(core, frame.Small)
//	...
//	err = a.Put(core, addr, frame.Small)
package frame
