package fat32

import (
	"encoding/binary"
	"fmt"
)

// memDevice is a []byte-backed in-memory BlockDevice, the same substitution
// soypat-fat's own fat_test.go/vfs_test.go make (BlockByteSlice) for a real
// SD card in tests.
type memDevice struct {
	sectorSize int
	buf        []byte
	offset     int64
}

func newMemDevice(sectorSize, totalSectors int) *memDevice {
	return &memDevice{sectorSize: sectorSize, buf: make([]byte, sectorSize*totalSectors)}
}

func (d *memDevice) BlockSize() int { return d.sectorSize }

func (d *memDevice) Seek(offsetInBlocks int64) (int, error) {
	d.offset = offsetInBlocks
	return int(offsetInBlocks), nil
}

func (d *memDevice) ReadFromBlock(buffer []byte, block int64, count int) (int, error) {
	start := block * int64(d.sectorSize)
	end := start + int64(count*d.sectorSize)
	if block < 0 || end > int64(len(d.buf)) {
		return 0, fmt.Errorf("memDevice: read out of range [%d:%d) len=%d", start, end, len(d.buf))
	}
	return copy(buffer, d.buf[start:end]), nil
}

func (d *memDevice) ReadFromCurrentOffset(buffer []byte, count int) (int, error) {
	n, err := d.ReadFromBlock(buffer, d.offset, count)
	d.offset += int64(count)
	return n, err
}

func (d *memDevice) WriteBlock(buffer []byte, block int64, count int) (int, error) {
	start := block * int64(d.sectorSize)
	end := start + int64(count*d.sectorSize)
	if block < 0 || end > int64(len(d.buf)) {
		return 0, fmt.Errorf("memDevice: write out of range [%d:%d) len=%d", start, end, len(d.buf))
	}
	return copy(d.buf[start:end], buffer), nil
}

// testVolumeConfig parameterizes a synthetic FAT32 image.
type testVolumeConfig struct {
	sectorSize        int
	sectorsPerCluster int
	dataClusters      int // usable clusters, excluding the reserved 0/1 entries
	label             string
}

func defaultTestVolumeConfig() testVolumeConfig {
	return testVolumeConfig{sectorSize: 512, sectorsPerCluster: 4, dataClusters: 64}
}

// testVolumeLayout records the byte ranges of a synthetic volume's FAT
// region and root-directory cluster, for tests that need to compare
// metadata bytes across an operation without the data region (whose
// content legitimately survives a delete on a real FAT32 volume).
type testVolumeLayout struct {
	fatStart, fatEnd         int
	rootDirStart, rootDirEnd int
}

func (l testVolumeLayout) metadataBytes(dev *memDevice) []byte {
	out := make([]byte, 0, (l.fatEnd-l.fatStart)+(l.rootDirEnd-l.rootDirStart))
	out = append(out, dev.buf[l.fatStart:l.fatEnd]...)
	out = append(out, dev.buf[l.rootDirStart:l.rootDirEnd]...)
	return out
}

// buildTestVolume lays out a minimal but structurally valid FAT32 volume
// directly (no partition table -- the volume starts at sector 0): BPB,
// one FAT region sized to cover cfg.dataClusters, and a single-cluster
// root directory containing only the volume label, if any. Returns the
// backing device and the volume's first LBA (always 0).
func buildTestVolume(cfg testVolumeConfig) (*memDevice, SectorID) {
	const reservedSectorCount = 32
	const numFATs = 1
	const rootCluster = 2

	fatEntriesPerSector := cfg.sectorSize / fatEntrySize
	totalEntries := cfg.dataClusters + rootCluster // reserve [0,1], data starts at 2
	sectorsPerFAT := (totalEntries + fatEntriesPerSector - 1) / fatEntriesPerSector
	if sectorsPerFAT < 1 {
		sectorsPerFAT = 1
	}

	totalSectors := reservedSectorCount + numFATs*sectorsPerFAT + cfg.dataClusters*cfg.sectorsPerCluster
	dev := newMemDevice(cfg.sectorSize, totalSectors)

	bpb := bootParameterBlock{
		BytesPerSector:      uint16(cfg.sectorSize),
		SectorsPerCluster:   uint8(cfg.sectorsPerCluster),
		ReservedSectorCount: reservedSectorCount,
		NumFATs:             numFATs,
		MediaDescriptor:     0xF8,
		TotalSectors32:      uint32(totalSectors),
		FATSize32:           uint32(sectorsPerFAT),
		RootCluster:         rootCluster,
	}
	copy(bpb.FilesystemType[:], "FAT32   ")
	_, _ = dev.WriteBlock(bpb.encode(), 0, 1)

	fatLBA := int64(reservedSectorCount)
	dataLBA := fatLBA + int64(numFATs*sectorsPerFAT)

	fatBuf := make([]byte, cfg.sectorSize*sectorsPerFAT)
	binary.LittleEndian.PutUint32(fatBuf[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatBuf[4:8], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatBuf[rootCluster*fatEntrySize:rootCluster*fatEntrySize+4], uint32(ClusterAllocatedEOF))
	_, _ = dev.WriteBlock(fatBuf, fatLBA, sectorsPerFAT)

	rootSectors := cfg.sectorsPerCluster
	rootBuf := make([]byte, cfg.sectorSize*rootSectors)
	if cfg.label != "" {
		var short ShortName
		short.Base, _ = scrubToShortNameField(cfg.label, 8)
		compact := short.Compact()
		var name [8]byte
		var ext [3]byte
		copy(name[:], compact[0:8])
		copy(ext[:], compact[8:11])
		entry := rawDirEntry{Name: name, Ext: ext, Attr: AttrVolumeID}
		raw := entry.encode()
		copy(rootBuf[0:directoryEntrySize], raw[:])
	}
	_, _ = dev.WriteBlock(rootBuf, dataLBA, rootSectors)

	return dev, 0
}

// volumeLayoutFor recomputes the same FAT/root-directory byte ranges
// buildTestVolume lays out, for tests that need to isolate metadata bytes
// from the data region.
func volumeLayoutFor(cfg testVolumeConfig) testVolumeLayout {
	const reservedSectorCount = 32
	const numFATs = 1

	fatEntriesPerSector := cfg.sectorSize / fatEntrySize
	totalEntries := cfg.dataClusters + 2
	sectorsPerFAT := (totalEntries + fatEntriesPerSector - 1) / fatEntriesPerSector
	if sectorsPerFAT < 1 {
		sectorsPerFAT = 1
	}

	fatLBA := reservedSectorCount
	dataLBA := fatLBA + numFATs*sectorsPerFAT

	return testVolumeLayout{
		fatStart:     fatLBA * cfg.sectorSize,
		fatEnd:       (fatLBA + numFATs*sectorsPerFAT) * cfg.sectorSize,
		rootDirStart: dataLBA * cfg.sectorSize,
		rootDirEnd:   (dataLBA + cfg.sectorsPerCluster) * cfg.sectorSize,
	}
}
