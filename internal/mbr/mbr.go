// Package mbr decodes the classic CHS-plus-LBA Master Boot Record partition
// table used to locate FAT32 volumes on a block device.
package mbr

import (
	"encoding/binary"
	"errors"

	"github.com/go-restruct/restruct"
)

const (
	bootstrapLen     = 440
	uniqueDiskIDLen  = 4
	reservedLen      = 2
	pteOffset        = bootstrapLen + uniqueDiskIDLen + reservedLen
	pteLen           = 16
	bootSignatureOff = 510

	// BootSignature is the magic value stored at offset 510 of a valid MBR.
	BootSignature = 0xAA55

	// NumPartitionEntries is the number of partition table entries an MBR holds.
	NumPartitionEntries = 4
)

var errShortSector = errors.New("mbr: sector shorter than 512 bytes")

// PartitionType identifies the filesystem/role of a partition table entry.
type PartitionType byte

const (
	PartitionTypeUnused   PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x04
	PartitionTypeExtended PartitionType = 0x05
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeNTFS     PartitionType = 0x07
	PartitionTypeLinux    PartitionType = 0x83
)

// DriveAttributes is the first byte of a partition table entry.
type DriveAttributes byte

const DriveAttrsBootable DriveAttributes = 0x80

// IsBootable reports whether the active-partition bit is set.
func (a DriveAttributes) IsBootable() bool { return a&DriveAttrsBootable != 0 }

// PartitionTableEntry is one of the four fixed-size entries in the MBR.
//
// restruct tag fields are fixed-width and little-endian; CHS addresses are
// kept as raw 3-byte fields since they are legacy/unused by this engine.
type PartitionTableEntry struct {
	Attributes     DriveAttributes
	CHSStart       [3]byte
	Type           PartitionType
	CHSLast        [3]byte
	FirstLBA       uint32
	NumberOfBlocks uint32
}

// BootSector is a parsed Master Boot Record.
type BootSector struct {
	Partitions [NumPartitionEntries]PartitionTableEntry
	Signature  uint16
}

// Decode parses a 512-byte (or larger) first sector of a block device into a
// BootSector. It does not validate the boot signature; callers check
// Signature against BootSignature themselves.
func Decode(sector []byte) (BootSector, error) {
	if len(sector) < 512 {
		return BootSector{}, errShortSector
	}

	var bs BootSector
	bs.Signature = binary.LittleEndian.Uint16(sector[bootSignatureOff : bootSignatureOff+2])

	for i := 0; i < NumPartitionEntries; i++ {
		raw := sector[pteOffset+i*pteLen : pteOffset+(i+1)*pteLen]
		var pte PartitionTableEntry
		if err := restruct.Unpack(raw, binary.LittleEndian, &pte); err != nil {
			return BootSector{}, err
		}
		bs.Partitions[i] = pte
	}

	return bs, nil
}
