package fat32

import (
	"strings"

	"github.com/google/uuid"

	"github.com/baremetalpi/fat32/registry"
)

// filesystems is the process-wide registry mounted filesystems are
// registered into. Directory and File handles hold only a filesystem UUID;
// every operation re-resolves through this registry and fails
// FILESYSTEM_DOES_NOT_EXIST once the mount is gone, per spec.md §4.E/§4.F.
var filesystems = registry.New[*Filesystem]()

// Filesystem is the façade spec.md §4.H describes: the single object a
// caller mounts and asks for directories.
type Filesystem struct {
	id uuid.UUID

	adapter *Adapter
	cache   *DirectoryCache
	files   *FileMap

	volumeLabel string
}

// Mount reads the BPB at firstLBA, opens the root directory far enough to
// discover the volume label, and registers the filesystem. cacheSize <= 0
// uses DefaultDirectoryCacheSize.
func Mount(device BlockDevice, firstLBA SectorID, cacheSize int) (*Filesystem, error) {
	adapter, err := NewAdapter(device, firstLBA)
	if err != nil {
		return nil, err
	}

	fs := &Filesystem{
		adapter: adapter,
		cache:   NewDirectoryCache(cacheSize),
	}
	fs.files = newFileMap(fs)

	root := NewClusterDirectory(adapter, adapter.RootDirectoryCluster(), adapter.RootDirectoryCluster())
	if label, err := root.FindVolumeLabel(); err == nil {
		fs.volumeLabel = label.DisplayName()
	} else if err != ErrVolumeInformationNotFound {
		return nil, err
	}

	fs.id = filesystems.Register(fs)
	return fs, nil
}

// ID returns the filesystem's registry UUID.
func (fs *Filesystem) ID() uuid.UUID { return fs.id }

// VolumeLabel returns the root directory's volume-label entry text, or "" if
// the volume has none.
func (fs *Filesystem) VolumeLabel() string { return fs.volumeLabel }

// Unmount removes the filesystem from the registry. Existing Directory/File
// handles fail FILESYSTEM_DOES_NOT_EXIST on their next operation.
func (fs *Filesystem) Unmount() { filesystems.Remove(fs.id) }

// GetRootDirectory returns a handle to "/".
func (fs *Filesystem) GetRootDirectory() *Directory {
	return &Directory{
		filesystemID: fs.id,
		path:         "/",
		firstCluster: fs.adapter.RootDirectoryCluster(),
	}
}

// CacheStatistics reports the façade's directory cache counters.
func (fs *Filesystem) CacheStatistics() CacheStatistics { return fs.cache.Statistics() }

// splitAbsolutePath validates path and returns its non-empty segments.
func splitAbsolutePath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if len(path) > MaxFilesystemPathLength {
		return nil, ErrPathTooLong
	}
	if !strings.HasPrefix(path, "/") {
		return nil, ErrIllegalPath
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "/"), nil
}

func joinAbsolutePath(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// GetDirectory resolves an absolute path via longest-cached-prefix search:
// walk prefixes from the full path toward root until one is found in the
// cache (or root itself), then resolve the remaining segments one cluster
// search at a time, caching each newly resolved prefix, per spec.md §4.H.
func (fs *Filesystem) GetDirectory(path string) (*Directory, error) {
	if path == "/" {
		return fs.GetRootDirectory(), nil
	}

	segments, err := splitAbsolutePath(path)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return fs.GetRootDirectory(), nil
	}

	startDepth := len(segments)
	cluster := fs.adapter.RootDirectoryCluster()
	var address EntryAddress
	var shortName ShortName

	for depth := len(segments); depth > 0; depth-- {
		prefix := joinAbsolutePath(segments[:depth])
		if entry, ok := fs.cache.FindEntry(prefix); ok {
			startDepth = depth
			cluster = entry.FirstCluster
			address = entry.Address
			shortName = entry.CompactName
			break
		}
		startDepth = depth - 1
	}

	for depth := startDepth; depth < len(segments); depth++ {
		name := segments[depth]
		cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), cluster)
		entry, err := cd.FindDirectoryEntry(KindDirectory, name)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, ErrDirectoryNotFound
		}

		cluster = entry.FirstCluster
		address = entry.Address
		shortName = entry.ShortName

		prefix := joinAbsolutePath(segments[:depth+1])
		fs.cache.Insert(prefix, CacheEntry{
			Kind:         KindDirectory,
			FirstCluster: cluster,
			Address:      address,
			CompactName:  shortName,
		})
	}

	return &Directory{
		filesystemID: fs.id,
		path:         joinAbsolutePath(segments),
		entryAddress: address,
		firstCluster: cluster,
		shortName:    shortName,
	}, nil
}

func (fs *Filesystem) readRawSlot(addr EntryAddress) (rawDirEntry, error) {
	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), addr.Cluster)
	raw, err := cd.readSlot(addr)
	if err != nil {
		return rawDirEntry{}, err
	}
	return decodeRawDirEntry(raw), nil
}

func (fs *Filesystem) writeRawSlot(addr EntryAddress, d rawDirEntry) error {
	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), addr.Cluster)
	return cd.writeRawSlot(addr, d.encode())
}

// updateFileFirstCluster persists a newly allocated first cluster to the
// on-disk directory entry backing rec, the §4.E helper spec.md §4.F's first
// Write call relies on.
func (fs *Filesystem) updateFileFirstCluster(rec *fileRecord, cluster ClusterID) error {
	d, err := fs.readRawSlot(rec.entryAddress)
	if err != nil {
		return err
	}
	d.FirstClusterHigh = uint16(uint32(cluster) >> 16)
	d.FirstClusterLow = uint16(uint32(cluster) & 0xFFFF)
	return fs.writeRawSlot(rec.entryAddress, d)
}

// updateFileSize persists a grown file size to the on-disk directory entry.
func (fs *Filesystem) updateFileSize(rec *fileRecord, size uint32) error {
	d, err := fs.readRawSlot(rec.entryAddress)
	if err != nil {
		return err
	}
	d.Size = size
	return fs.writeRawSlot(rec.entryAddress, d)
}
