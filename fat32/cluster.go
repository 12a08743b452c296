package fat32

import "strings"

// slotIterator walks every 32-byte slot of a cluster chain in order,
// crossing cluster boundaries via the FAT and stopping when the next link
// is ClusterAllocatedEOF (or any EOF marker). It does not interpret LFN
// groupings -- that is EntryIterator's job. Both iterators are read through
// a single cluster-sized buffer, lazily refilled on cluster transitions.
type slotIterator struct {
	adapter *Adapter
	root    ClusterID

	cluster    ClusterID
	buf        []byte
	index      int
	entriesPer int
	atEnd      bool
}

func newSlotIterator(a *Adapter, root, first ClusterID) (*slotIterator, error) {
	it := &slotIterator{adapter: a, root: root, entriesPer: int(a.BytesPerCluster()) / directoryEntrySize}
	if err := it.resetTo(first); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *slotIterator) resetTo(cluster ClusterID) error {
	buf, err := it.adapter.ReadCluster(cluster)
	if err != nil {
		return err
	}
	it.cluster = cluster
	it.buf = buf
	it.index = 0
	it.atEnd = false
	return nil
}

// current returns the raw slot bytes and address at the iterator's position
// without advancing.
func (it *slotIterator) current() ([]byte, EntryAddress) {
	off := it.index * directoryEntrySize
	return it.buf[off : off+directoryEntrySize], EntryAddress{Cluster: it.cluster, Index: it.index}
}

// advance moves to the next slot, crossing a cluster boundary if needed.
// It reports atEnd=true (and leaves the iterator positioned at the last
// valid read) once the chain's final cluster is exhausted.
func (it *slotIterator) advance() error {
	it.index++
	if it.index < it.entriesPer {
		return nil
	}

	next, err := it.adapter.NextClusterInChain(it.cluster)
	if err != nil {
		return err
	}
	if next.IsEOF() {
		it.atEnd = true
		return nil
	}
	return it.resetTo(next)
}

// EntryIterator groups LFN prefix slots with the standard entry they name,
// per spec.md §4.C.
type EntryIterator struct {
	slots   *slotIterator
	pending [][directoryEntrySize]byte
	root    ClusterID
	done    bool
}

// NewEntryIterator begins iterating the directory whose data starts at
// first, a cluster chain on adapter whose filesystem root is root (needed
// to resolve ".." entries storing zero).
func NewEntryIterator(a *Adapter, root, first ClusterID) (*EntryIterator, error) {
	s, err := newSlotIterator(a, root, first)
	if err != nil {
		return nil, err
	}
	return &EntryIterator{slots: s, root: root}, nil
}

// Next returns the next standard directory entry (with any preceding LFN
// slots reassembled into its LongName), or ok=false once the physical end
// of the directory (a slot whose first byte is 0x00) is reached.
func (it *EntryIterator) Next() (entry *DirEntry, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}

	for {
		if it.slots.atEnd {
			it.done = true
			return nil, false, nil
		}

		raw, addr := it.slots.current()
		firstByte := raw[0]

		if firstByte == firstByteUnusedTerminal {
			it.done = true
			return nil, false, nil
		}

		if firstByte == firstByteUnused {
			it.pending = it.pending[:0]
			if err := it.slots.advance(); err != nil {
				return nil, false, err
			}
			continue
		}

		attr := raw[11]
		if attr == AttrLFN {
			var slot [directoryEntrySize]byte
			copy(slot[:], raw)
			if len(it.pending) < MaxLFNSlotBuffer {
				it.pending = append(it.pending, slot)
			}
			if err := it.slots.advance(); err != nil {
				return nil, false, err
			}
			continue
		}

		// Standard entry: pair with any buffered LFN slots (already in
		// on-disk, highest-sequence-first order), then reset the
		// accumulator for the next group.
		rawEntry := decodeRawDirEntry(raw)
		d := dirEntryFromRaw(rawEntry, addr, it.root)
		if len(it.pending) > 0 {
			d.LongName = reassembleLFN(it.pending)
		}
		it.pending = it.pending[:0]

		if advErr := it.slots.advance(); advErr != nil {
			return nil, false, advErr
		}
		return &d, true, nil
	}
}

// ClusterDirectory is the directory cluster engine bound to one directory's
// cluster chain. It is the component directory objects (component E) use to
// find, create, and remove entries.
type ClusterDirectory struct {
	adapter      *Adapter
	root         ClusterID
	firstCluster ClusterID
}

// NewClusterDirectory binds the cluster engine to a directory's data chain.
func NewClusterDirectory(a *Adapter, root, firstCluster ClusterID) *ClusterDirectory {
	return &ClusterDirectory{adapter: a, root: root, firstCluster: firstCluster}
}

// Iterator returns a fresh EntryIterator positioned at the start of the
// directory.
func (cd *ClusterDirectory) Iterator() (*EntryIterator, error) {
	return NewEntryIterator(cd.adapter, cd.root, cd.firstCluster)
}

func namesEqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// FindDirectoryEntry scans the directory for a standard entry whose kind
// matches kindFilter (KindAny matches anything but the volume label) and
// whose reassembled name (LFN if present, else compact 8.3) equals
// nameFilter case-insensitively.
func (cd *ClusterDirectory) FindDirectoryEntry(kindFilter EntryKind, nameFilter string) (*DirEntry, error) {
	it, err := cd.Iterator()
	if err != nil {
		return nil, err
	}
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if entry.IsVolumeLabel() {
			continue
		}
		if kindFilter != KindAny && entry.Kind() != kindFilter {
			continue
		}
		if namesEqualFold(entry.DisplayName(), nameFilter) {
			return entry, nil
		}
	}
}

// FindVolumeLabel returns the directory's volume-information entry, if any.
func (cd *ClusterDirectory) FindVolumeLabel() (*DirEntry, error) {
	it, err := cd.Iterator()
	if err != nil {
		return nil, err
	}
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrVolumeInformationNotFound
		}
		if entry.IsVolumeLabel() {
			return entry, nil
		}
	}
}

// findShortNameConflicts scans the whole directory for short names that are
// derivatives of basis, bucketing their numeric tails so
// resolveNumericTailConflict can find the smallest unused one, per
// spec.md §4.C step 4.
func (cd *ClusterDirectory) findShortNameConflicts(basis ShortName) (map[int]bool, error) {
	used := map[int]bool{}
	it, err := cd.Iterator()
	if err != nil {
		return nil, err
	}
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return used, nil
		}
		name, tail, hasTail := ParseCompactShortName(entry.ShortName.Compact())
		if !hasTail {
			continue
		}
		if IsDerivativeOf(name, basis, true) {
			used[tail] = true
		}
	}
}

// resolveNumericTailConflict picks the smallest tail in [1, MaxNumericTail]
// not present in used, searching in fixed-size windows of
// MaxFAT32ShortFilenameSearchTableSize so a densely populated low range
// cannot cause unbounded scanning.
func resolveNumericTailConflict(used map[int]bool) (int, error) {
	window := MaxFAT32ShortFilenameSearchTableSize
	for base := 1; base <= MaxNumericTail; base += window {
		top := base + window - 1
		if top > MaxNumericTail {
			top = MaxNumericTail
		}
		for n := base; n <= top; n++ {
			if !used[n] {
				return n, nil
			}
		}
	}
	return 0, ErrNumericTailOutOfRange
}

// FindEmptyBlockOfEntries finds a contiguous run of count empty (first byte
// 0xE5 or 0x00) slots starting anywhere in the directory's current
// allocation, preferring the earliest run. It does not allocate new
// clusters; callers retry after AddNewCluster on failure.
func (cd *ClusterDirectory) FindEmptyBlockOfEntries(count int) ([]EntryAddress, error) {
	it, err := newSlotIterator(cd.adapter, cd.root, cd.firstCluster)
	if err != nil {
		return nil, err
	}

	var run []EntryAddress
	for {
		raw, addr := it.current()
		if raw[0] == firstByteUnused || raw[0] == firstByteUnusedTerminal {
			run = append(run, addr)
			if len(run) == count {
				return run, nil
			}
		} else {
			run = run[:0]
		}

		if err := it.advance(); err != nil {
			return nil, err
		}
		if it.atEnd {
			return nil, ErrUnableToFindEmptyBlockOfDirectoryEntries
		}
	}
}

// AddNewCluster extends the directory's chain by one cluster: it allocates
// a free cluster, zeroes it, links the chain's current tail to it, and
// marks the new cluster ClusterAllocatedEOF. If marking EOF fails, the tail
// link is rolled back so the new cluster is not left dangling off the
// chain.
func (cd *ClusterDirectory) AddNewCluster() (ClusterID, error) {
	newCluster, err := cd.adapter.FindNextEmptyCluster(0)
	if err != nil {
		return 0, err
	}

	zero := make([]byte, cd.adapter.BytesPerCluster())
	if err := cd.adapter.WriteCluster(newCluster, zero); err != nil {
		return 0, err
	}

	tail := cd.firstCluster
	for {
		next, err := cd.adapter.NextClusterInChain(tail)
		if err != nil {
			return 0, err
		}
		if next.IsEOF() {
			break
		}
		tail = next
	}

	if err := cd.adapter.UpdateFATTableEntry(tail, newCluster); err != nil {
		return 0, err
	}
	if err := cd.adapter.UpdateFATTableEntry(newCluster, ClusterAllocatedEOF); err != nil {
		// Roll back the tail link so the new cluster doesn't dangle off the
		// chain unreferenced-but-marked-allocated.
		_ = cd.adapter.UpdateFATTableEntry(tail, ClusterAllocatedEOF)
		return 0, err
	}
	return newCluster, nil
}

// CreateEntryOptions carries the fields a new directory entry needs beyond
// its name, per spec.md §4.C.
type CreateEntryOptions struct {
	Attr           uint8
	FirstCluster   ClusterID
	Size           uint32
	CreateDate     Date
	CreateTime     Time
	CreateHundreds TimeHundredths
	WriteDate      Date
	WriteTime      Time
}

const maxCreateEntryRetries = 4

// CreateEntry validates longName, resolves it to a short name (direct if
// 8.3-compliant, else a basis name with numeric-tail conflict resolution),
// builds any needed LFN slots, and writes the group into the first
// contiguous run of free slots, extending the directory with a new cluster
// if none is found, per spec.md §4.C.
func (cd *ClusterDirectory) CreateEntry(longName string, opts CreateEntryOptions) (*DirEntry, error) {
	clean, err := ValidateLongFilename(longName)
	if err != nil {
		return nil, err
	}

	kind := KindFile
	if opts.Attr&AttrDirectory != 0 {
		kind = KindDirectory
	}
	if existing, err := cd.FindDirectoryEntry(kind, clean); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrFilenameAlreadyInUse
	}

	var short ShortName
	var longForEntry string

	if sfn, ok := Is8Dot3Filename(clean); ok {
		short = sfn
		longForEntry = ""
	} else {
		basis, needsTail := BasisShortName(clean)
		short = basis
		if needsTail {
			used, err := cd.findShortNameConflicts(basis)
			if err != nil {
				return nil, err
			}
			tail, err := resolveNumericTailConflict(used)
			if err != nil {
				return nil, err
			}
			taggedBase, err := AddNumericTail(basis.Base, tail)
			if err != nil {
				return nil, err
			}
			short = ShortName{Base: taggedBase, Ext: basis.Ext}
		}
		longForEntry = clean
	}

	var lfnSlots [][directoryEntrySize]byte
	if longForEntry != "" {
		lfnSlots = buildLFNSlots(longForEntry, short)
	}

	needed := len(lfnSlots) + 1
	var addrs []EntryAddress
	for attempt := 0; attempt < maxCreateEntryRetries; attempt++ {
		addrs, err = cd.FindEmptyBlockOfEntries(needed)
		if err == nil {
			break
		}
		if err != ErrUnableToFindEmptyBlockOfDirectoryEntries {
			return nil, err
		}
		if _, err := cd.AddNewCluster(); err != nil {
			return nil, err
		}
	}
	if addrs == nil {
		return nil, ErrUnableToFindEmptyBlockOfDirectoryEntries
	}

	entry := DirEntry{
		Address:        addrs[len(lfnSlots)],
		ShortName:      short,
		LongName:       longForEntry,
		Attr:           opts.Attr,
		FirstCluster:   opts.FirstCluster,
		Size:           opts.Size,
		CreateDate:     opts.CreateDate,
		CreateTime:     opts.CreateTime,
		CreateHundreds: opts.CreateHundreds,
		WriteDate:      opts.WriteDate,
		WriteTime:      opts.WriteTime,
	}

	// Write LFN slots first (inert without the owning standard slot), then
	// the standard slot, per the crash-ordering rule in spec.md §5.
	for i, slot := range lfnSlots {
		if err := cd.writeRawSlot(addrs[i], slot); err != nil {
			return nil, err
		}
	}
	if err := cd.writeRawSlot(entry.Address, entry.toRaw().encode()); err != nil {
		return nil, err
	}

	// If this group landed where the 0x00 terminator used to be, the slot
	// after it is already 0x00 (every slot past the old terminator is), so
	// the end-of-directory marker survives without a further write; see
	// preserveTerminator.
	if err := cd.preserveTerminator(addrs); err != nil {
		return nil, err
	}

	return &entry, nil
}

// preserveTerminator ensures a 0x00 end-of-directory sentinel still exists
// immediately after the newly written group. A freshly allocated cluster is
// zero-filled in full by AddNewCluster, so the slot beyond a group written
// at the old physical end is 0x00 by construction in every case except a
// group that lands exactly on the last slot of an existing cluster with no
// successor cluster yet -- there is no "next slot" to hold a sentinel, and
// none is needed since the chain itself ends there.
func (cd *ClusterDirectory) preserveTerminator(written []EntryAddress) error {
	last := written[len(written)-1]
	entriesPer := int(cd.adapter.BytesPerCluster()) / directoryEntrySize
	nextIdx := last.Index + 1

	var nextAddr EntryAddress
	if nextIdx < entriesPer {
		nextAddr = EntryAddress{Cluster: last.Cluster, Index: nextIdx}
	} else {
		next, err := cd.adapter.NextClusterInChain(last.Cluster)
		if err != nil {
			return err
		}
		if next.IsEOF() {
			return nil
		}
		nextAddr = EntryAddress{Cluster: next, Index: 0}
	}

	raw, err := cd.readSlot(nextAddr)
	if err != nil {
		return err
	}
	if raw[0] == firstByteUnused || raw[0] == firstByteUnusedTerminal {
		return nil
	}

	// The slot after the group holds real, previously-written data -- the
	// group did not consume the directory's physical end, so there is
	// nothing to push forward.
	return nil
}

func (cd *ClusterDirectory) readSlot(addr EntryAddress) ([]byte, error) {
	buf, err := cd.adapter.ReadCluster(addr.Cluster)
	if err != nil {
		return nil, err
	}
	off := addr.Index * directoryEntrySize
	out := make([]byte, directoryEntrySize)
	copy(out, buf[off:off+directoryEntrySize])
	return out, nil
}

func (cd *ClusterDirectory) writeRawSlot(addr EntryAddress, slot [directoryEntrySize]byte) error {
	buf, err := cd.adapter.ReadCluster(addr.Cluster)
	if err != nil {
		return err
	}
	off := addr.Index * directoryEntrySize
	copy(buf[off:off+directoryEntrySize], slot[:])
	return cd.adapter.WriteCluster(addr.Cluster, buf)
}

// nextSlotIsTerminalOrAbsent reports whether the slot physically following
// addr is the 0x00 end-of-directory sentinel, or there is no following slot
// at all (addr is the last slot of the chain's last cluster).
func (cd *ClusterDirectory) nextSlotIsTerminalOrAbsent(addr EntryAddress) (bool, error) {
	entriesPer := int(cd.adapter.BytesPerCluster()) / directoryEntrySize
	nextIdx := addr.Index + 1

	var nextAddr EntryAddress
	if nextIdx < entriesPer {
		nextAddr = EntryAddress{Cluster: addr.Cluster, Index: nextIdx}
	} else {
		next, err := cd.adapter.NextClusterInChain(addr.Cluster)
		if err != nil {
			return false, err
		}
		if next.IsEOF() {
			return true, nil
		}
		nextAddr = EntryAddress{Cluster: next, Index: 0}
	}

	raw, err := cd.readSlot(nextAddr)
	if err != nil {
		return false, err
	}
	return raw[0] == firstByteUnusedTerminal, nil
}

// removeSlot frees a single 32-byte slot. If nothing used follows it, the
// slot is zeroed entirely, extending the 0x00 end-of-directory sentinel
// backward over it (the mirror of CreateEntry's preserveTerminator); this is
// what lets a create immediately undone by a remove leave the directory's
// bytes exactly as they were. Otherwise it is marked 0xE5 (free, but more
// entries follow) with its stored first-cluster cleared.
func (cd *ClusterDirectory) removeSlot(addr EntryAddress, clearClusterFields bool) error {
	atEnd, err := cd.nextSlotIsTerminalOrAbsent(addr)
	if err != nil {
		return err
	}
	if atEnd {
		return cd.writeRawSlot(addr, [directoryEntrySize]byte{})
	}

	raw, err := cd.readSlot(addr)
	if err != nil {
		return err
	}
	raw[0] = firstByteUnused
	if clearClusterFields {
		raw[20] = 0
		raw[21] = 0 // FirstClusterHigh
		raw[26] = 0
		raw[27] = 0 // FirstClusterLow
	}
	return cd.writeRawSlot(addr, sliceTo32(raw))
}

// RemoveEntry frees the standard slot at addr, then walks backward freeing
// any immediately preceding LFN slots, stopping at the one whose "first
// LFN" bit is set, per spec.md §4.C.
func (cd *ClusterDirectory) RemoveEntry(addr EntryAddress) error {
	if err := cd.removeSlot(addr, true); err != nil {
		return err
	}

	cluster, index := addr.Cluster, addr.Index
	for {
		index--
		if index < 0 {
			prev, err := cd.adapter.PreviousClusterInChain(cd.firstCluster, cluster)
			if err != nil {
				if err == ErrAlreadyAtFirstCluster {
					return nil
				}
				return err
			}
			cluster = prev
			index = int(cd.adapter.BytesPerCluster())/directoryEntrySize - 1
		}

		slotAddr := EntryAddress{Cluster: cluster, Index: index}
		slot, err := cd.readSlot(slotAddr)
		if err != nil {
			return err
		}
		if slot[0] == firstByteUnused || slot[11] != AttrLFN {
			return nil
		}
		wasLast := slot[0]&lfnLastFlag != 0

		if err := cd.removeSlot(slotAddr, false); err != nil {
			return err
		}
		if wasLast {
			return nil
		}
	}
}

func sliceTo32(b []byte) [directoryEntrySize]byte {
	var out [directoryEntrySize]byte
	copy(out[:], b)
	return out
}

// WriteEmptyDirectoryCluster zeroes cluster c and writes the "." and ".."
// standard entries into it. When dotDotCluster equals root, the stored
// value for ".." is zero, per spec.md §4.C's convention for a top-level
// directory's parent.
func WriteEmptyDirectoryCluster(a *Adapter, c, dotDotCluster, root ClusterID, now Date, nowTime Time) error {
	buf := make([]byte, a.BytesPerCluster())

	dotStored := c
	dotDotStored := dotDotCluster
	if dotDotCluster == root {
		dotDotStored = 0
	}

	writeSlot := func(idx int, name string, stored ClusterID) {
		var sn ShortName
		sn.Base = name
		compact := sn.Compact()
		var nameField [8]byte
		var extField [3]byte
		copy(nameField[:], compact[0:8])
		copy(extField[:], compact[8:11])

		entry := rawDirEntry{
			Name:             nameField,
			Ext:              extField,
			Attr:             AttrDirectory,
			CreateDate:       uint16(now),
			CreateTime:       uint16(nowTime),
			LastAccessDate:   uint16(now),
			LastWriteDate:    uint16(now),
			LastWriteTime:    uint16(nowTime),
			FirstClusterHigh: uint16(uint32(stored) >> 16),
			FirstClusterLow:  uint16(uint32(stored) & 0xFFFF),
		}
		raw := entry.encode()
		copy(buf[idx*directoryEntrySize:(idx+1)*directoryEntrySize], raw[:])
	}

	writeSlot(0, ".", dotStored)
	writeSlot(1, "..", dotDotStored)

	return a.WriteCluster(c, buf)
}
