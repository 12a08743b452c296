package fat32

// Configurable size bounds, per spec.md §6. Exact values are deployment
// choices.
const (
	// MaxFilenameLength is the longest long filename accepted, in runes.
	MaxFilenameLength = 255

	// MaxFileExtensionLength is the longest short-name extension (3 chars, the
	// 8.3 convention), kept as a named constant for clarity at call sites.
	MaxFileExtensionLength = 3

	// MaxFilesystemPathLength bounds any absolute path accepted by the façade.
	MaxFilesystemPathLength = 1024

	// MaxPartitionsOnMassStorageDevice is the number of MBR partition table
	// entries scanned.
	MaxPartitionsOnMassStorageDevice = 4

	// DefaultDirectoryCacheSize is the number of entries the directory LRU
	// cache holds before evicting.
	DefaultDirectoryCacheSize = 64

	// MaxFAT32ShortFilenameSearchTableSize is the window size used when
	// scanning existing numeric tails for an unused value during short-name
	// conflict resolution (see resolveNumericTailConflict).
	MaxFAT32ShortFilenameSearchTableSize = 100

	// MaxNumericTail is the largest numeric tail value the engine will assign.
	MaxNumericTail = 999999

	// MaxLFNSlotsPerName is ceil(255/13) LFN slots; MaxLFNSlotBuffer adds one
	// for the pending-slot accumulator used while reassembling a name during
	// iteration.
	MaxLFNSlotsPerName = 20
	MaxLFNSlotBuffer    = 21
)
