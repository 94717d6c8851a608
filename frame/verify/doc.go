// Package verify checks the structural invariants of a frame allocator.
//
// The checks read the subtree directory, the free lists and every region
// table, so the allocator must be quiescent: no core may allocate or free
// while a check runs. They are meant for tests, for the framectl verify
// command and for diagnosing a range after recovery.
//
// # Checks
//
//   - Directory: every subtree entry respects its field bounds, and giant
//     subtrees carry the persisted giant marker
//   - Regions: every region entry is well formed and its leaf table agrees
//     with its free counter
//   - Counters: every subtree counter equals the sum of its regions, and
//     only huge subtrees contain huge pages
//   - Lists: every listed subtree is unreserved, listed once, and fits the
//     list it is on
//
// All checks return a *ValidationError on failure:
//
//	if err := verify.AllInvariants(a); err != nil {
//	    var verr *verify.ValidationError
//	    if errors.As(err, &verr) {
//	        fmt.Printf("%s subtree %d: %s\n", verr.Type, verr.Subtree, verr.Message)
//	    }
//	}
package verify
