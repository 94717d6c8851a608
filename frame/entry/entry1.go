package entry

// Entry1 is the state of a single frame in a region's leaf table.
type Entry1 uint64

const (
	// Empty marks a free frame.
	Empty Entry1 = 0
	// Page marks an allocated frame.
	Page Entry1 = 1
)

func (e Entry1) String() string {
	switch e {
	case Empty:
		return "Empty"
	case Page:
		return "Page"
	default:
		return "Invalid"
	}
}

// Valid reports whether e is one of the defined leaf states.
func (e Entry1) Valid() bool {
	return e == Empty || e == Page
}
