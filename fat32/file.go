package fat32

import "github.com/google/uuid"

// fileRecord is the open-file-table row the file map owns: everything
// needed to service read/write/seek without re-resolving the directory
// entry, per spec.md §3's "Open-file record".
type fileRecord struct {
	filesystemID uuid.UUID
	path         string
	mode         Mode

	entryAddress EntryAddress
	firstCluster ClusterID

	currentCluster ClusterID
	byteInCluster  uint32
	byteInFile     int64

	size uint32
}

// File is the thin wrapper callers hold: only the open file's UUID. Every
// operation re-resolves the owning fileRecord through the file map, so a
// wrapper never outlives its record silently. Destroying (Close-ing) the
// wrapper closes the file exactly once.
type File struct {
	id uuid.UUID
}

// ID returns the file's open-file-table UUID.
func (f *File) ID() uuid.UUID { return f.id }

// Read fills buf starting at the file's current position, stopping at
// end-of-file (the in-memory copy of the directory entry's size). Crosses
// cluster boundaries via NextClusterInChain. The returned count is the
// number of bytes actually copied.
func (f *File) Read(buf []byte) (int, error) {
	fs, rec, err := resolveOpenFile(f.id)
	if err != nil {
		return 0, err
	}
	if !rec.mode.Has(ModeRead) {
		return 0, ErrFileNotOpenedForRead
	}

	bytesPerCluster := int64(fs.adapter.BytesPerCluster())
	total := 0

	for total < len(buf) {
		remaining := int64(rec.size) - rec.byteInFile
		if remaining <= 0 {
			break
		}
		if rec.firstCluster == 0 {
			break
		}

		clusterData, err := fs.adapter.ReadCluster(rec.currentCluster)
		if err != nil {
			return total, err
		}

		avail := int64(len(clusterData)) - int64(rec.byteInCluster)
		if avail > remaining {
			avail = remaining
		}
		want := int64(len(buf) - total)
		if avail > want {
			avail = want
		}
		if avail <= 0 {
			break
		}

		copy(buf[total:], clusterData[rec.byteInCluster:int64(rec.byteInCluster)+avail])
		total += int(avail)
		rec.byteInCluster += uint32(avail)
		rec.byteInFile += avail

		if rec.byteInFile >= int64(rec.size) {
			break
		}
		if int64(rec.byteInCluster) >= bytesPerCluster {
			next, err := fs.adapter.NextClusterInChain(rec.currentCluster)
			if err != nil {
				return total, err
			}
			if next.IsEOF() {
				break
			}
			rec.currentCluster = next
			rec.byteInCluster = 0
		}
	}

	return total, nil
}

// Write writes len(buf) bytes at the file's current position, allocating
// clusters on demand. If the file had no storage yet, the first write
// allocates a cluster and persists it as the directory entry's first
// cluster. When the write extends past the previously recorded size, the
// new size is persisted to the directory entry, per spec.md §4.F.
func (f *File) Write(buf []byte) (int, error) {
	fs, rec, err := resolveOpenFile(f.id)
	if err != nil {
		return 0, err
	}
	if !rec.mode.Has(ModeWrite) {
		return 0, ErrFileNotOpen
	}

	bytesPerCluster := uint32(fs.adapter.BytesPerCluster())

	if rec.firstCluster == 0 {
		c, err := fs.adapter.FindNextEmptyCluster(0)
		if err != nil {
			return 0, err
		}
		if err := fs.adapter.UpdateFATTableEntry(c, ClusterAllocatedEOF); err != nil {
			return 0, err
		}
		rec.firstCluster = c
		rec.currentCluster = c
		rec.byteInCluster = 0
		if err := fs.updateFileFirstCluster(rec, c); err != nil {
			return 0, err
		}
	}

	total := 0
	for total < len(buf) {
		clusterData, err := fs.adapter.ReadCluster(rec.currentCluster)
		if err != nil {
			return total, err
		}

		space := bytesPerCluster - rec.byteInCluster
		n := len(buf) - total
		if uint32(n) > space {
			n = int(space)
		}

		copy(clusterData[rec.byteInCluster:], buf[total:total+n])
		if err := fs.adapter.WriteCluster(rec.currentCluster, clusterData); err != nil {
			return total, err
		}

		total += n
		rec.byteInCluster += uint32(n)
		rec.byteInFile += int64(n)

		if total >= len(buf) {
			break
		}

		// Cluster full: either follow the existing chain (we're still
		// inside the previously recorded size) or allocate a new cluster.
		if rec.byteInFile < int64(rec.size) {
			next, err := fs.adapter.NextClusterInChain(rec.currentCluster)
			if err != nil {
				return total, err
			}
			rec.currentCluster = next
		} else {
			next, err := fs.adapter.FindNextEmptyCluster(0)
			if err != nil {
				return total, err
			}
			if err := fs.adapter.UpdateFATTableEntry(next, ClusterAllocatedEOF); err != nil {
				return total, err
			}
			if err := fs.adapter.UpdateFATTableEntry(rec.currentCluster, next); err != nil {
				return total, err
			}
			rec.currentCluster = next
		}
		rec.byteInCluster = 0
	}

	if rec.byteInFile > int64(rec.size) {
		rec.size = uint32(rec.byteInFile)
		if err := fs.updateFileSize(rec, rec.size); err != nil {
			return total, err
		}
	}

	return total, nil
}

// Append seeks to end-of-file, then writes.
func (f *File) Append(buf []byte) (int, error) {
	if err := f.Seek(-1); err != nil {
		return 0, err
	}
	return f.Write(buf)
}

// Seek repositions the file. A position of -1 seeks to end-of-file; any
// other value is clamped to [0, size]. Position 0 resets to the first
// cluster; any other position walks the chain forward from the first
// cluster.
func (f *File) Seek(position int64) error {
	fs, rec, err := resolveOpenFile(f.id)
	if err != nil {
		return err
	}

	if position < 0 || position > int64(rec.size) {
		position = int64(rec.size)
	}

	if position == 0 {
		rec.currentCluster = rec.firstCluster
		rec.byteInCluster = 0
		rec.byteInFile = 0
		return nil
	}

	bytesPerCluster := int64(fs.adapter.BytesPerCluster())
	rec.currentCluster = rec.firstCluster
	rec.byteInFile = 0
	remaining := position

	for remaining > 0 {
		hop := bytesPerCluster
		if remaining < hop {
			rec.byteInCluster = uint32(remaining)
			rec.byteInFile = position
			return nil
		}
		next, err := fs.adapter.NextClusterInChain(rec.currentCluster)
		if err != nil {
			return err
		}
		rec.currentCluster = next
		remaining -= hop
		rec.byteInFile += hop
	}
	rec.byteInCluster = 0
	return nil
}

// Close removes the file from the open-file map.
func (f *File) Close() error {
	fs, rec, err := resolveOpenFile(f.id)
	if err != nil {
		return err
	}
	return fs.files.RemoveFile(rec.path, f.id)
}

func resolveOpenFile(id uuid.UUID) (*Filesystem, *fileRecord, error) {
	fs, rec, ok := lookupOpenFile(id)
	if !ok {
		return nil, nil, ErrFileIsClosed
	}
	if _, live := filesystems.Lookup(fs.id); !live {
		return nil, nil, ErrFilesystemDoesNotExist
	}
	return fs, rec, nil
}
