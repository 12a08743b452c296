package fat32

import (
	"encoding/binary"

	log "github.com/dsoprea/go-logging"
)

var adapterLog = log.NewLogger("fat32.adapter")

// Adapter caches partition geometry and maps clusters to sectors, and owns
// the single write-path for the File Allocation Table. It is the only
// component that talks directly to a BlockDevice.
type Adapter struct {
	device BlockDevice

	bytesPerSector      uint32
	sectorsPerCluster   uint32
	firstLBA            SectorID
	fatLBA              SectorID
	dataLBA             SectorID
	sectorsPerFAT       uint32
	fatEntriesPerSector uint32
	numFATs             uint32

	rootDirectoryCluster ClusterID
	maxCluster           ClusterID

	lastEmptyFound ClusterID

	fatSectorBuf []byte
	clusterBuf   []byte
}

// NewAdapter mounts a FAT32 volume starting at firstLBA on device, reading
// and parsing the BPB from the partition's first sector.
func NewAdapter(device BlockDevice, firstLBA SectorID) (*Adapter, error) {
	sector := make([]byte, bpbSectorSize)
	if _, err := device.ReadFromBlock(sector, int64(firstLBA), 1); err != nil {
		return nil, ErrUnableToReadFirstLBASector
	}

	if binary.LittleEndian.Uint16(sector[510:512]) != bootSignature {
		return nil, ErrBadMasterBootRecordMagicNumber
	}

	bpb, err := decodeBPB(sector)
	if err != nil {
		return nil, ErrUnableToReadFirstLBASector
	}
	if !bpb.isFAT32() {
		return nil, ErrNotAFAT32Filesystem
	}

	a := &Adapter{
		device:              device,
		bytesPerSector:      uint32(bpb.BytesPerSector),
		sectorsPerCluster:   uint32(bpb.SectorsPerCluster),
		firstLBA:            firstLBA,
		sectorsPerFAT:       bpb.sectorsPerFAT(),
		numFATs:             uint32(bpb.NumFATs),
		fatEntriesPerSector: uint32(bpb.BytesPerSector) / fatEntrySize,
		rootDirectoryCluster: ClusterID(bpb.RootCluster),
	}
	a.fatLBA = firstLBA + SectorID(bpb.ReservedSectorCount)
	a.dataLBA = a.fatLBA + SectorID(a.numFATs*a.sectorsPerFAT)

	dataSectors := bpb.totalSectors() - (uint32(a.dataLBA) - uint32(firstLBA))
	a.maxCluster = ClusterID(dataSectors/a.sectorsPerCluster) + firstValidDataCluster - 1

	a.fatSectorBuf = make([]byte, a.bytesPerSector)
	a.clusterBuf = make([]byte, a.sectorsPerCluster*a.bytesPerSector)

	return a, nil
}

// BytesPerCluster returns the cluster size in bytes.
func (a *Adapter) BytesPerCluster() uint32 { return a.sectorsPerCluster * a.bytesPerSector }

// BytesPerSector returns the volume's sector size in bytes.
func (a *Adapter) BytesPerSector() uint32 { return a.bytesPerSector }

// RootDirectoryCluster returns the cluster number of the root directory.
func (a *Adapter) RootDirectoryCluster() ClusterID { return a.rootDirectoryCluster }

// firstSectorOfCluster maps a cluster number to its first sector, per
// spec.md §3: sector = (N-2) * sectors_per_cluster + data_lba.
func (a *Adapter) firstSectorOfCluster(c ClusterID) SectorID {
	return a.dataLBA + SectorID((uint32(c)-uint32(firstValidDataCluster))*a.sectorsPerCluster)
}

// IsValidClusterRange reports whether c is a usable data cluster, or one of
// the reserved markers accepted for traversal (spec.md §4.A).
func (a *Adapter) IsValidClusterRange(c ClusterID) bool {
	if c >= firstValidDataCluster && c <= a.maxCluster {
		return true
	}
	return c >= ClusterDefective
}

func (a *Adapter) checkRange(c ClusterID) error {
	if !a.IsValidClusterRange(c) {
		return ErrClusterOutOfRange
	}
	return nil
}

// ReadCluster reads the sectorsPerCluster consecutive sectors that make up
// cluster c.
func (a *Adapter) ReadCluster(c ClusterID) ([]byte, error) {
	if err := a.checkRange(c); err != nil {
		return nil, err
	}
	sector := a.firstSectorOfCluster(c)
	buf := make([]byte, a.BytesPerCluster())
	if _, err := a.device.ReadFromBlock(buf, int64(sector), int(a.sectorsPerCluster)); err != nil {
		return nil, ErrDeviceReadError
	}
	return buf, nil
}

// WriteCluster writes data (exactly BytesPerCluster bytes) back to cluster c.
func (a *Adapter) WriteCluster(c ClusterID, data []byte) error {
	if err := a.checkRange(c); err != nil {
		return err
	}
	sector := a.firstSectorOfCluster(c)
	if _, err := a.device.WriteBlock(data, int64(sector), int(a.sectorsPerCluster)); err != nil {
		return ErrDeviceWriteError
	}
	return nil
}

// fatSectorForEntry returns the FAT sector holding the entry for cluster c
// and the entry's byte offset within that sector.
func (a *Adapter) fatSectorForEntry(c ClusterID) (SectorID, uint32) {
	entryIndex := uint32(c)
	sectorOffset := entryIndex / a.fatEntriesPerSector
	byteOffset := (entryIndex % a.fatEntriesPerSector) * fatEntrySize
	return a.fatLBA + SectorID(sectorOffset), byteOffset
}

// NextClusterInChain reads the FAT sector holding entry c and returns the
// 32-bit next-cluster pointer stored there.
func (a *Adapter) NextClusterInChain(c ClusterID) (ClusterID, error) {
	if err := a.checkRange(c); err != nil {
		return 0, err
	}
	sector, offset := a.fatSectorForEntry(c)
	if _, err := a.device.ReadFromBlock(a.fatSectorBuf, int64(sector), 1); err != nil {
		adapterLog.Warningf("failed reading FAT sector %d for cluster %d: %v", sector, c, err)
		return 0, ErrUnableToReadFATTableSector
	}
	raw := binary.LittleEndian.Uint32(a.fatSectorBuf[offset:offset+4]) & clusterValueMask
	return ClusterID(raw), nil
}

// PreviousClusterInChain walks forward from first until it finds the cluster
// whose next-pointer is c, returning that predecessor.
func (a *Adapter) PreviousClusterInChain(first, c ClusterID) (ClusterID, error) {
	if first == c {
		return 0, ErrAlreadyAtFirstCluster
	}
	current := first
	for {
		next, err := a.NextClusterInChain(current)
		if err != nil {
			return 0, err
		}
		if next == c {
			return current, nil
		}
		if next.IsEOF() {
			return 0, ErrClusterNotPresentInChain
		}
		current = next
	}
}

// UpdateFATTableEntry is the single write-path for the FAT. Writing
// ClusterFree is permitted outside the ordinary cluster range (releasing a
// chain tail); any other value is range-checked along with c itself.
func (a *Adapter) UpdateFATTableEntry(c ClusterID, v ClusterID) error {
	if err := a.checkRange(c); err != nil {
		return err
	}
	if v != ClusterFree {
		if err := a.checkRange(v); err != nil {
			return err
		}
	}

	sector, offset := a.fatSectorForEntry(c)
	if _, err := a.device.ReadFromBlock(a.fatSectorBuf, int64(sector), 1); err != nil {
		return ErrUnableToReadFATTableSector
	}
	binary.LittleEndian.PutUint32(a.fatSectorBuf[offset:offset+4], uint32(v)&clusterValueMask)
	if _, err := a.device.WriteBlock(a.fatSectorBuf, int64(sector), 1); err != nil {
		return ErrUnableToWriteFATTableSector
	}
	return nil
}

// FindNextEmptyCluster scans the FAT for the first free cluster at or after
// start. If start is zero, the search begins at the greater of the cached
// hint and the root directory cluster.
func (a *Adapter) FindNextEmptyCluster(start ClusterID) (ClusterID, error) {
	if start == 0 {
		start = a.lastEmptyFound
		if a.rootDirectoryCluster > start {
			start = a.rootDirectoryCluster
		}
	}

	currentSector, _ := a.fatSectorForEntry(start)
	if _, err := a.device.ReadFromBlock(a.fatSectorBuf, int64(currentSector), 1); err != nil {
		return 0, ErrUnableToReadFATTableSector
	}

	for c := start; c <= a.maxCluster; c++ {
		sector, offset := a.fatSectorForEntry(c)
		if sector != currentSector {
			currentSector = sector
			if _, err := a.device.ReadFromBlock(a.fatSectorBuf, int64(currentSector), 1); err != nil {
				return 0, ErrUnableToReadFATTableSector
			}
		}
		if binary.LittleEndian.Uint32(a.fatSectorBuf[offset:offset+4])&clusterValueMask == uint32(ClusterFree) {
			a.lastEmptyFound = c
			return c, nil
		}
	}

	return 0, ErrDeviceFull
}

// ReleaseChain walks the cluster chain starting at first, writing
// ClusterFree to every FAT slot until the end-of-chain marker is reached.
// Traversal past the terminator (a chain already partly released) is
// tolerated.
func (a *Adapter) ReleaseChain(first ClusterID) error {
	current := first
	for !current.IsEOF() && current != ClusterFree {
		next, err := a.NextClusterInChain(current)
		if err != nil {
			return err
		}
		if err := a.UpdateFATTableEntry(current, ClusterFree); err != nil {
			return err
		}
		current = next
	}
	return nil
}
