package fat32

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/baremetalpi/fat32/internal/utf16x"
)

// Attribute bits, per spec.md §3.
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrVolumeID  uint8 = 0x08
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20
	AttrLFN       uint8 = 0x0F
)

const (
	firstByteUnused         = 0xE5
	firstByteUnusedTerminal = 0x00

	lfnLastFlag = 0x40
	lfnOrdMask  = 0x1F

	directoryEntrySize = 32
)

// rawDirEntry is the on-disk layout of a standard 32-byte directory entry.
type rawDirEntry struct {
	Name                 [8]byte
	Ext                  [3]byte
	Attr                 uint8
	NTReserved           uint8
	CreateTimeHundredths uint8
	CreateTime           uint16
	CreateDate           uint16
	LastAccessDate       uint16
	FirstClusterHigh     uint16
	LastWriteTime        uint16
	LastWriteDate        uint16
	FirstClusterLow      uint16
	Size                 uint32
}

// rawLFNEntry is the on-disk layout of a long-filename continuation slot.
type rawLFNEntry struct {
	Ord             uint8
	Name1           [10]byte // 5 UCS-2 code units
	Attr            uint8    // always AttrLFN
	Type            uint8    // always 0
	Checksum        uint8
	Name2           [12]byte // 6 UCS-2 code units
	FirstClusterLow uint16   // always 0
	Name3           [4]byte  // 2 UCS-2 code units
}

func decodeRawDirEntry(raw []byte) rawDirEntry {
	var d rawDirEntry
	// Error intentionally ignored: a fixed-size, fixed-shape struct against a
	// fixed 32-byte slice cannot fail to unpack.
	_ = restruct.Unpack(raw, binary.LittleEndian, &d)
	return d
}

func (d rawDirEntry) encode() [directoryEntrySize]byte {
	var out [directoryEntrySize]byte
	buf, _ := restruct.Pack(binary.LittleEndian, &d)
	copy(out[:], buf)
	return out
}

func decodeRawLFNEntry(raw []byte) rawLFNEntry {
	var d rawLFNEntry
	_ = restruct.Unpack(raw, binary.LittleEndian, &d)
	return d
}

func (d rawLFNEntry) encode() [directoryEntrySize]byte {
	var out [directoryEntrySize]byte
	buf, _ := restruct.Pack(binary.LittleEndian, &d)
	copy(out[:], buf)
	return out
}

// EntryAddress identifies a single 32-byte directory slot.
type EntryAddress struct {
	Cluster ClusterID
	Index   int
}

// EntryKind filters directory entries by what they represent.
type EntryKind int

const (
	KindAny EntryKind = iota
	KindFile
	KindDirectory
	KindVolumeLabel
)

// DirEntry is the in-memory, decoded form of a standard directory entry: the
// tagged variant spec.md's Design Notes ask for, carrying the entry's
// address alongside the parsed fields. The root cluster is not stored; it is
// applied while decoding to resolve a ".." entry that stores zero.
type DirEntry struct {
	Address      EntryAddress
	ShortName    ShortName
	LongName     string // "" if the entry has no LFN group
	Attr         uint8
	FirstCluster ClusterID
	Size         uint32

	CreateDate     Date
	CreateTime     Time
	CreateHundreds TimeHundredths
	LastAccessDate Date
	WriteDate      Date
	WriteTime      Time
}

// IsDir reports whether the entry is a directory.
func (e *DirEntry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// IsVolumeLabel reports whether the entry is the volume-information entry.
func (e *DirEntry) IsVolumeLabel() bool { return e.Attr&AttrVolumeID != 0 }

// Kind classifies the entry for use with directory search/filter operations.
func (e *DirEntry) Kind() EntryKind {
	switch {
	case e.IsVolumeLabel():
		return KindVolumeLabel
	case e.IsDir():
		return KindDirectory
	default:
		return KindFile
	}
}

// DisplayName is the long name if one is present, otherwise the short name.
func (e *DirEntry) DisplayName() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.ShortName.String()
}

// effectiveFirstCluster resolves the FAT32 convention that a ".." entry
// storing 0 means "the root directory" (spec.md §3 invariant).
func effectiveFirstCluster(stored ClusterID, root ClusterID, isDotDot bool) ClusterID {
	if isDotDot && stored == 0 {
		return root
	}
	return stored
}

// dirEntryFromRaw decodes a rawDirEntry at the given address into a DirEntry. root
// is the filesystem's root directory cluster, needed to apply the ".."
// zero-means-root convention.
func dirEntryFromRaw(raw rawDirEntry, addr EntryAddress, root ClusterID) DirEntry {
	short := ShortName{}
	name, _, _ := ParseCompactShortName(concat11(raw.Name, raw.Ext))
	short = name

	first := ClusterID(uint32(raw.FirstClusterHigh)<<16 | uint32(raw.FirstClusterLow))
	isDotDot := short.Base == ".." && short.Ext == ""
	first = effectiveFirstCluster(first, root, isDotDot)

	return DirEntry{
		Address:        addr,
		ShortName:      short,
		Attr:           raw.Attr,
		FirstCluster:   first,
		Size:           raw.Size,
		CreateDate:     Date(raw.CreateDate),
		CreateTime:     Time(raw.CreateTime),
		CreateHundreds: TimeHundredths(raw.CreateTimeHundredths),
		LastAccessDate: Date(raw.LastAccessDate),
		WriteDate:      Date(raw.LastWriteDate),
		WriteTime:      Time(raw.LastWriteTime),
	}
}

func concat11(base [8]byte, ext [3]byte) [11]byte {
	var out [11]byte
	copy(out[0:8], base[:])
	copy(out[8:11], ext[:])
	return out
}

// toRaw encodes a DirEntry back into its on-disk rawDirEntry form. The
// caller is responsible for the ".." zero-means-root convention when
// storing (see WriteEmptyDirectoryCluster).
func (e *DirEntry) toRaw() rawDirEntry {
	compact := e.ShortName.Compact()
	var name [8]byte
	var ext [3]byte
	copy(name[:], compact[0:8])
	copy(ext[:], compact[8:11])

	return rawDirEntry{
		Name:                 name,
		Ext:                  ext,
		Attr:                 e.Attr,
		CreateTimeHundredths: uint8(e.CreateHundreds),
		CreateTime:           uint16(e.CreateTime),
		CreateDate:           uint16(e.CreateDate),
		LastAccessDate:       uint16(e.LastAccessDate),
		FirstClusterHigh:     uint16(uint32(e.FirstCluster) >> 16),
		LastWriteTime:        uint16(e.WriteTime),
		LastWriteDate:        uint16(e.WriteDate),
		FirstClusterLow:      uint16(uint32(e.FirstCluster) & 0xFFFF),
		Size:                 e.Size,
	}
}

// buildLFNSlots splits longName into ceil(len/13) LFN slots, emitted in
// reverse (highest sequence number first, marked "first LFN"), per
// spec.md §4.B.
func buildLFNSlots(longName string, shortName ShortName) [][directoryEntrySize]byte {
	scratch := make([]byte, len(longName)*4+4)
	n, _ := utf16x.FromUTF8(scratch, []byte(longName))
	units := scratch[:n]

	checksum := ShortNameChecksum(shortName.Compact())
	fragCount := lfnFragmentCount(len(units) / 2)

	slots := make([][directoryEntrySize]byte, fragCount)
	for i := 0; i < fragCount; i++ {
		seq := i + 1
		start := i * lfnFragmentSize * 2
		end := start + lfnFragmentSize*2
		var frag [26]byte // 13 UCS-2 units worth of bytes
		for j := range frag {
			frag[j] = 0xFF
		}
		if start < len(units) {
			n := copy(frag[:], units[start:min(end, len(units))])
			if n < len(frag) {
				// Terminate the short fragment, then pad the remainder 0xFFFF.
				frag[n] = 0x00
				frag[n+1] = 0x00
				for k := n + 2; k < len(frag); k++ {
					frag[k] = 0xFF
				}
			}
		}

		ord := uint8(seq)
		if i == fragCount-1 {
			ord |= lfnLastFlag
		}

		lfn := rawLFNEntry{
			Ord:      ord,
			Attr:     AttrLFN,
			Checksum: checksum,
		}
		copy(lfn.Name1[:], frag[0:10])
		copy(lfn.Name2[:], frag[10:22])
		copy(lfn.Name3[:], frag[22:26])

		// Slots are written to disk highest-sequence-first.
		slots[fragCount-1-i] = lfn.encode()
	}
	return slots
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// reassembleLFN concatenates the UCS-2 fragments from a group of LFN slots,
// which must already be ordered highest-sequence-number first (the order
// they appear on disk), into the long name they encode. Fragments are joined
// from sequence 1 upward, so the slots are walked in reverse.
func reassembleLFN(slots [][directoryEntrySize]byte) string {
	var units []byte
	for i := len(slots) - 1; i >= 0; i-- {
		lfn := decodeRawLFNEntry(slots[i][:])
		units = append(units, lfn.Name1[:]...)
		units = append(units, lfn.Name2[:]...)
		units = append(units, lfn.Name3[:]...)
	}

	// Trim at the first 0x0000/0xFFFF terminator pair.
	for i := 0; i+1 < len(units); i += 2 {
		if (units[i] == 0x00 && units[i+1] == 0x00) || (units[i] == 0xFF && units[i+1] == 0xFF) {
			units = units[:i]
			break
		}
	}

	out := make([]byte, len(units)*2+4)
	n, _ := utf16x.ToUTF8(out, units)
	return string(out[:n])
}
