package fat32

// Error is the engine's sum-type error code. Every fallible operation in
// this package returns one of these values (or nil) rather than a generic
// error wrapped in ad-hoc text, so callers can switch on the exact failure.
// The one exception is MountSDCardFilesystems, which folds per-partition
// failures into an aggregate error whose members wrap these values.
type Error int

// Error code families, grouped as in spec.md §7.
const (
	_ Error = iota

	// Device I/O
	ErrDeviceReadError
	ErrDeviceWriteError
	ErrUnableToReadFATTableSector
	ErrUnableToWriteFATTableSector
	ErrUnableToReadFirstLBASector
	ErrUnableToReadMasterBootRecord

	// Format / structural
	ErrBadMasterBootRecordMagicNumber
	ErrUnrecognizedFilesystemType
	ErrNotAFAT32Filesystem
	ErrClusterOutOfRange
	ErrClusterNotPresentInChain
	ErrAlreadyAtFirstCluster
	ErrCurrentDirectoryEntryIsInvalid

	// Capacity
	ErrDeviceFull
	ErrUnableToFindEmptyBlockOfDirectoryEntries
	ErrFilenameTooLong
	ErrPathTooLong

	// Name / path
	ErrEmptyFilename
	ErrEmptyPath
	ErrIllegalPath
	ErrFilenameContainsForbiddenCharacters
	ErrFilenameAlreadyInUse
	ErrNumericTailOutOfRange

	// Lifecycle
	ErrFilesystemDoesNotExist
	ErrUnableToFindBootFilesystem
	ErrDirectoryNotFound
	ErrFileNotFound
	ErrVolumeInformationNotFound
	ErrRootDirectoryCannotBeRemoved
	ErrFileAlreadyOpenedExclusively
	ErrFileNotOpen
	ErrFileIsClosed
	ErrFileNotOpenedForRead
	ErrFileNotOpenedForAppend
	ErrClusterIteratorAtEnd
	ErrDirectoryIteratorAtEnd
)

var errorText = map[Error]string{
	ErrDeviceReadError:                           "FAT32_DEVICE_READ_ERROR",
	ErrDeviceWriteError:                           "FAT32_DEVICE_WRITE_ERROR",
	ErrUnableToReadFATTableSector:                 "FAT32_UNABLE_TO_READ_FAT_TABLE_SECTOR",
	ErrUnableToWriteFATTableSector:                "FAT32_UNABLE_TO_WRITE_FAT_TABLE_SECTOR",
	ErrUnableToReadFirstLBASector:                 "FAT32_UNABLE_TO_READ_FIRST_LOGICAL_BLOCK_ADDRESSING_SECTOR",
	ErrUnableToReadMasterBootRecord:               "UNABLE_TO_READ_MASTER_BOOT_RECORD",
	ErrBadMasterBootRecordMagicNumber:             "BAD_MASTER_BOOT_RECORD_MAGIC_NUMBER",
	ErrUnrecognizedFilesystemType:                 "UNRECOGNIZED_FILESYSTEM_TYPE",
	ErrNotAFAT32Filesystem:                        "FAT32_NOT_A_FAT32_FILESYSTEM",
	ErrClusterOutOfRange:                          "FAT32_CLUSTER_OUT_OF_RANGE",
	ErrClusterNotPresentInChain:                   "FAT32_CLUSTER_NOT_PRESENT_IN_CHAIN",
	ErrAlreadyAtFirstCluster:                      "FAT32_ALREADY_AT_FIRST_CLUSTER",
	ErrCurrentDirectoryEntryIsInvalid:             "FAT32_CURRENT_DIRECTORY_ENTRY_IS_INVALID",
	ErrDeviceFull:                                 "FAT32_DEVICE_FULL",
	ErrUnableToFindEmptyBlockOfDirectoryEntries:   "FAT32_UNABLE_TO_FIND_EMPTY_BLOCK_OF_DIRECTORY_ENTRIES",
	ErrFilenameTooLong:                            "FILENAME_TOO_LONG",
	ErrPathTooLong:                                "PATH_TOO_LONG",
	ErrEmptyFilename:                              "EMPTY_FILENAME",
	ErrEmptyPath:                                  "EMPTY_PATH",
	ErrIllegalPath:                                "ILLEGAL_PATH",
	ErrFilenameContainsForbiddenCharacters:        "FILENAME_CONTAINS_FORBIDDEN_CHARACTERS",
	ErrFilenameAlreadyInUse:                       "FILENAME_ALREADY_IN_USE",
	ErrNumericTailOutOfRange:                      "FAT32_NUMERIC_TAIL_OUT_OF_RANGE",
	ErrFilesystemDoesNotExist:                     "FILESYSTEM_DOES_NOT_EXIST",
	ErrUnableToFindBootFilesystem:                 "UNABLE_TO_FIND_BOOT_FILESYSTEM",
	ErrDirectoryNotFound:                          "DIRECTORY_NOT_FOUND",
	ErrFileNotFound:                               "FILE_NOT_FOUND",
	ErrVolumeInformationNotFound:                  "VOLUME_INFORMATION_NOT_FOUND",
	ErrRootDirectoryCannotBeRemoved:               "ROOT_DIRECTORY_CANNOT_BE_REMOVED",
	ErrFileAlreadyOpenedExclusively:               "FILE_ALREADY_OPENED_EXCLUSIVELY",
	ErrFileNotOpen:                                "FILE_NOT_OPEN",
	ErrFileIsClosed:                               "FILE_IS_CLOSED",
	ErrFileNotOpenedForRead:                       "FILE_NOT_OPENED_FOR_READ",
	ErrFileNotOpenedForAppend:                     "FILE_NOT_OPENED_FOR_APPEND",
	ErrClusterIteratorAtEnd:                       "FAT32_CLUSTER_ITERATOR_AT_END",
	ErrDirectoryIteratorAtEnd:                     "FAT32_DIRECTORY_ITERATOR_AT_END",
}

// Error implements the error interface.
func (e Error) Error() string {
	if text, ok := errorText[e]; ok {
		return text
	}
	return "FAT32_UNKNOWN_ERROR"
}
