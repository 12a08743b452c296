package fat32

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

const (
	bpbSectorSize  = 512
	bootSignature  = 0xAA55
	fatEntrySize   = 4
)

// bootParameterBlock is the on-disk BIOS Parameter Block of a FAT32 volume,
// laid out exactly as the Microsoft FAT specification defines it. Field
// widths and ordering must not change: restruct.Unpack walks them in
// declaration order against the raw sector bytes.
type bootParameterBlock struct {
	JumpBoot             [3]byte
	OEMName              [8]byte
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorCount  uint16
	NumFATs              uint8
	RootEntryCount       uint16 // 0 for FAT32
	TotalSectors16       uint16
	MediaDescriptor      uint8
	FATSize16            uint16 // 0 for FAT32
	SectorsPerTrack      uint16
	NumHeads             uint16
	HiddenSectors        uint32
	TotalSectors32       uint32

	// FAT32-only extension.
	FATSize32          uint32
	ExtFlags           uint16
	FSVersion          uint16
	RootCluster        uint32
	FSInfoSector       uint16
	BackupBootSector   uint16
	Reserved           [12]byte
	DriveNumber        uint8
	Reserved1          uint8
	BootSignature8     uint8
	VolumeID           uint32
	VolumeLabel        [11]byte
	FilesystemType     [8]byte
}

func decodeBPB(sector []byte) (bootParameterBlock, error) {
	var bpb bootParameterBlock
	if err := restruct.Unpack(sector, binary.LittleEndian, &bpb); err != nil {
		return bootParameterBlock{}, err
	}
	return bpb, nil
}

// encode packs bpb back into a bpbSectorSize-byte sector with the boot
// signature set, the inverse of decodeBPB. Used by tests to build synthetic
// volumes; production code only ever reads a BPB, never writes one.
func (bpb *bootParameterBlock) encode() []byte {
	out := make([]byte, bpbSectorSize)
	packed, _ := restruct.Pack(binary.LittleEndian, bpb)
	copy(out, packed)
	binary.LittleEndian.PutUint16(out[510:512], bootSignature)
	return out
}

// sectorsPerFAT returns the 32-bit sectors-per-FAT value, which for FAT32
// always lives in FATSize32 (FATSize16 is reserved as zero).
func (bpb *bootParameterBlock) sectorsPerFAT() uint32 {
	return bpb.FATSize32
}

// totalSectors returns whichever of the two total-sector fields is in use.
func (bpb *bootParameterBlock) totalSectors() uint32 {
	if bpb.TotalSectors16 != 0 {
		return uint32(bpb.TotalSectors16)
	}
	return bpb.TotalSectors32
}

func (bpb *bootParameterBlock) isFAT32() bool {
	return bpb.RootEntryCount == 0 && bpb.FATSize16 == 0 && bpb.FATSize32 != 0
}
