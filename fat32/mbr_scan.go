package fat32

import (
	"fmt"

	log "github.com/dsoprea/go-logging"
	"github.com/hashicorp/go-multierror"

	"github.com/baremetalpi/fat32/internal/mbr"
)

var mbrScanLog = log.NewLogger("fat32.mbrscan")

// AcceptedPartitionTypes gates which MBR partition type bytes ScanPartitions
// considers. Defaults to FAT32 LBA (0x0C) only; callers may widen this (for
// example to also accept FAT32 CHS) before scanning.
var AcceptedPartitionTypes = map[mbr.PartitionType]bool{
	mbr.PartitionTypeFAT32LBA: true,
}

// PartitionDescriptor is what the scanner yields for each accepted
// partition table entry, per spec.md §4.I.
type PartitionDescriptor struct {
	Name        string
	FirstLBA    SectorID
	SectorCount uint32
	Boot        bool
}

// ScanPartitions reads sector 0 of device, verifies the boot signature, and
// returns a descriptor for every partition table entry whose type is in
// AcceptedPartitionTypes. The first accepted partition is marked boot.
func ScanPartitions(device BlockDevice) ([]PartitionDescriptor, error) {
	sector := make([]byte, 512)
	if _, err := device.ReadFromBlock(sector, 0, 1); err != nil {
		return nil, ErrUnableToReadMasterBootRecord
	}

	bs, err := mbr.Decode(sector)
	if err != nil {
		return nil, ErrUnableToReadMasterBootRecord
	}
	if bs.Signature != mbr.BootSignature {
		return nil, ErrBadMasterBootRecordMagicNumber
	}

	var descriptors []PartitionDescriptor
	for _, pte := range bs.Partitions {
		if pte.NumberOfBlocks == 0 || !AcceptedPartitionTypes[pte.Type] {
			continue
		}

		adapter, err := NewAdapter(device, SectorID(pte.FirstLBA))
		if err != nil {
			mbrScanLog.Warningf("skipping partition at LBA %d: %v", pte.FirstLBA, err)
			continue
		}

		cd := NewClusterDirectory(adapter, adapter.RootDirectoryCluster(), adapter.RootDirectoryCluster())
		name := ""
		if label, err := cd.FindVolumeLabel(); err == nil {
			name = label.DisplayName()
		}

		descriptors = append(descriptors, PartitionDescriptor{
			Name:        name,
			FirstLBA:    SectorID(pte.FirstLBA),
			SectorCount: pte.NumberOfBlocks,
			Boot:        len(descriptors) == 0,
		})
	}

	return descriptors, nil
}

// MountSDCardFilesystems enumerates device's partitions and mounts each one
// as a FAT32 filesystem, registering it in the entity registry. A failure
// reading the MBR itself is fatal; a failure mounting a single partition is
// logged, skipped, and folded into the returned aggregate error, leaving the
// other partitions mounted, per spec.md §4.I.
func MountSDCardFilesystems(device BlockDevice, cacheSize int) ([]*Filesystem, error) {
	descriptors, err := ScanPartitions(device)
	if err != nil {
		return nil, err
	}

	var mounted []*Filesystem
	var errs *multierror.Error

	for _, d := range descriptors {
		fs, err := Mount(device, d.FirstLBA, cacheSize)
		if err != nil {
			mbrScanLog.Warningf("skipping partition %q at LBA %d: %v", d.Name, d.FirstLBA, err)
			errs = multierror.Append(errs, fmt.Errorf("partition %q at LBA %d: %w", d.Name, d.FirstLBA, err))
			continue
		}
		mounted = append(mounted, fs)
	}

	return mounted, errs.ErrorOrNil()
}
