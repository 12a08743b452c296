package fat32

// Mode gates what OpenFile is allowed to do, mirroring the teacher's
// bitflag-based access mode (soypat-fat's Mode type) but generalized to the
// explicit mode names spec.md §4.E calls for.
type Mode uint8

const (
	ModeRead   Mode = 1 << iota // Permit Read.
	ModeWrite                   // Permit Write/Append and on-demand cluster extension.
	ModeCreate                  // Create the file if it does not already exist.
	ModeAppend                  // Stored with the open file; Read, Write and Seek do not consult it.

	modeRW = ModeRead | ModeWrite
)

// Has reports whether all bits in want are set in m.
func (m Mode) Has(want Mode) bool { return m&want == want }
