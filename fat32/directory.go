package fat32

import (
	"time"

	"github.com/google/uuid"
)

// VisitResult is returned by a VisitDirectory callback to control iteration.
type VisitResult int

const (
	VisitContinue VisitResult = iota
	VisitFinished
)

// Directory is a handle to one directory within a mounted filesystem: the
// filesystem UUID, its absolute path, its own entry address and first
// cluster, and its compact 8.3 name, per spec.md §4.E. Every public method
// re-resolves the filesystem through the registry first.
type Directory struct {
	filesystemID uuid.UUID
	path         string
	entryAddress EntryAddress
	firstCluster ClusterID
	shortName    ShortName
}

func (d *Directory) resolve() (*Filesystem, error) {
	fs, ok := filesystems.Lookup(d.filesystemID)
	if !ok {
		return nil, ErrFilesystemDoesNotExist
	}
	return fs, nil
}

// Path returns the directory's absolute path.
func (d *Directory) Path() string { return d.path }

// IsRoot reports whether this handle is the volume's root directory.
func (d *Directory) IsRoot() bool { return d.path == "/" }

func joinChild(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func parentPathOf(path string) string {
	segments, _ := splitAbsolutePath(path)
	if len(segments) <= 1 {
		return "/"
	}
	return joinAbsolutePath(segments[:len(segments)-1])
}

// VisitDirectory iterates this directory's entries, invoking callback for
// each; iteration stops early if callback returns VisitFinished.
func (d *Directory) VisitDirectory(callback func(*DirEntry) VisitResult) error {
	fs, err := d.resolve()
	if err != nil {
		return err
	}

	it, err := NewEntryIterator(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	if err != nil {
		return err
	}
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if callback(entry) == VisitFinished {
			return nil
		}
	}
}

// ownParentCluster finds the cluster chain containing this directory's own
// entry slot, by reading its ".." entry. Used by RemoveDirectory, which
// needs a ClusterDirectory bound to the parent's chain (not this
// directory's own data chain) to clear the entry and any preceding LFN
// slots correctly.
func (d *Directory) ownParentCluster(fs *Filesystem) (ClusterID, error) {
	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	entry, err := cd.FindDirectoryEntry(KindDirectory, "..")
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, ErrDirectoryNotFound
	}
	return entry.FirstCluster, nil
}

// findEntryByCluster scans containingCluster's directory listing for a
// directory entry whose first cluster is target. FAT32 directory entries
// carry no pointer back to their own name, so resolving ".." to a full
// handle (entry address, short name) means searching the grandparent for
// the child that points at the parent.
func findEntryByCluster(fs *Filesystem, containingCluster, target ClusterID) (*DirEntry, error) {
	it, err := NewEntryIterator(fs.adapter, fs.adapter.RootDirectoryCluster(), containingCluster)
	if err != nil {
		return nil, err
	}
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if entry.Kind() == KindDirectory && entry.FirstCluster == target {
			return entry, nil
		}
	}
}

// GetDirectory resolves a single path component against this directory: "."
// returns self, ".." returns the parent (root returns itself), any other
// name is looked up in the filesystem's directory cache, falling back to a
// cluster search on a miss, per spec.md §4.E.
func (d *Directory) GetDirectory(name string) (*Directory, error) {
	fs, err := d.resolve()
	if err != nil {
		return nil, err
	}

	switch name {
	case ".":
		self := *d
		return &self, nil

	case "..":
		if d.IsRoot() {
			self := *d
			return &self, nil
		}

		parentCluster, err := d.ownParentCluster(fs)
		if err != nil {
			return nil, err
		}
		parentPath := parentPathOf(d.path)

		if parentCluster == fs.adapter.RootDirectoryCluster() {
			result := fs.GetRootDirectory()
			return result, nil
		}

		grandparentCluster, err := (&Directory{firstCluster: parentCluster}).ownParentCluster(fs)
		if err != nil {
			return nil, err
		}
		selfEntry, err := findEntryByCluster(fs, grandparentCluster, parentCluster)
		if err != nil {
			return nil, err
		}
		if selfEntry == nil {
			return nil, ErrDirectoryNotFound
		}

		fs.cache.Insert(parentPath, CacheEntry{
			Kind:         KindDirectory,
			FirstCluster: parentCluster,
			Address:      selfEntry.Address,
			CompactName:  selfEntry.ShortName,
		})
		return &Directory{
			filesystemID: d.filesystemID,
			path:         parentPath,
			entryAddress: selfEntry.Address,
			firstCluster: parentCluster,
			shortName:    selfEntry.ShortName,
		}, nil

	default:
		absPath := joinChild(d.path, name)
		if cached, ok := fs.cache.FindEntry(absPath); ok {
			return &Directory{
				filesystemID: d.filesystemID,
				path:         absPath,
				entryAddress: cached.Address,
				firstCluster: cached.FirstCluster,
				shortName:    cached.CompactName,
			}, nil
		}

		cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
		entry, err := cd.FindDirectoryEntry(KindDirectory, name)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, ErrDirectoryNotFound
		}

		fs.cache.Insert(absPath, CacheEntry{
			Kind:         KindDirectory,
			FirstCluster: entry.FirstCluster,
			Address:      entry.Address,
			CompactName:  entry.ShortName,
		})
		return &Directory{
			filesystemID: d.filesystemID,
			path:         absPath,
			entryAddress: entry.Address,
			firstCluster: entry.FirstCluster,
			shortName:    entry.ShortName,
		}, nil
	}
}

// CreateDirectory allocates a standalone cluster, writes "." and ".."
// entries into it, then creates the child entry in self. If CreateEntry
// fails after the cluster was allocated, the cluster is freed, per
// spec.md §4.E.
func (d *Directory) CreateDirectory(name string) (*Directory, error) {
	fs, err := d.resolve()
	if err != nil {
		return nil, err
	}

	newCluster, err := fs.adapter.FindNextEmptyCluster(0)
	if err != nil {
		return nil, err
	}
	if err := fs.adapter.UpdateFATTableEntry(newCluster, ClusterAllocatedEOF); err != nil {
		return nil, err
	}

	now, nowTime, nowHundredths := FromTime(time.Now())
	if err := WriteEmptyDirectoryCluster(fs.adapter, newCluster, d.firstCluster, fs.adapter.RootDirectoryCluster(), now, nowTime); err != nil {
		_ = fs.adapter.UpdateFATTableEntry(newCluster, ClusterFree)
		return nil, err
	}

	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	entry, err := cd.CreateEntry(name, CreateEntryOptions{
		Attr:           AttrDirectory,
		FirstCluster:   newCluster,
		CreateDate:     now,
		CreateTime:     nowTime,
		CreateHundreds: nowHundredths,
		WriteDate:      now,
		WriteTime:      nowTime,
	})
	if err != nil {
		_ = fs.adapter.ReleaseChain(newCluster)
		return nil, err
	}

	absPath := joinChild(d.path, name)
	fs.cache.Insert(absPath, CacheEntry{
		Kind:         KindDirectory,
		FirstCluster: newCluster,
		Address:      entry.Address,
		CompactName:  entry.ShortName,
	})
	return &Directory{
		filesystemID: d.filesystemID,
		path:         absPath,
		entryAddress: entry.Address,
		firstCluster: newCluster,
		shortName:    entry.ShortName,
	}, nil
}

// RemoveDirectory removes this directory itself: forbidden for root,
// invalidates the cache, re-confirms the on-disk entry is still a
// directory, removes its slot from the parent chain, and releases its data
// chain, per spec.md §4.E.
func (d *Directory) RemoveDirectory() error {
	if d.IsRoot() {
		return ErrRootDirectoryCannotBeRemoved
	}
	fs, err := d.resolve()
	if err != nil {
		return err
	}

	fs.cache.InvalidateByFirstCluster(d.firstCluster)

	raw, err := fs.readRawSlot(d.entryAddress)
	if err != nil {
		return err
	}
	if !(func() *DirEntry { e := dirEntryFromRaw(raw, d.entryAddress, fs.adapter.RootDirectoryCluster()); return &e }()).IsDir() {
		return ErrDirectoryNotFound
	}

	parentCluster, err := d.ownParentCluster(fs)
	if err != nil {
		return err
	}

	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), parentCluster)
	if err := cd.RemoveEntry(d.entryAddress); err != nil {
		return err
	}
	return fs.adapter.ReleaseChain(d.firstCluster)
}

// RenameDirectory renames the child directory entry oldName to newName,
// create-then-remove so a crash mid-rename leaves the entry discoverable
// under one of the two names, per spec.md §4.E.
func (d *Directory) RenameDirectory(oldName, newName string) error {
	return d.renameEntry(KindDirectory, oldName, newName, ErrDirectoryNotFound)
}

// RenameFile renames the child file entry oldName to newName.
func (d *Directory) RenameFile(oldName, newName string) error {
	return d.renameEntry(KindFile, oldName, newName, ErrFileNotFound)
}

func (d *Directory) renameEntry(kind EntryKind, oldName, newName string, notFound Error) error {
	fs, err := d.resolve()
	if err != nil {
		return err
	}

	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	entry, err := cd.FindDirectoryEntry(kind, oldName)
	if err != nil {
		return err
	}
	if entry == nil {
		return notFound
	}

	if _, err := cd.CreateEntry(newName, CreateEntryOptions{
		Attr:           entry.Attr,
		FirstCluster:   entry.FirstCluster,
		Size:           entry.Size,
		CreateDate:     entry.CreateDate,
		CreateTime:     entry.CreateTime,
		CreateHundreds: entry.CreateHundreds,
		WriteDate:      entry.WriteDate,
		WriteTime:      entry.WriteTime,
	}); err != nil {
		return err
	}

	fs.cache.InvalidateByFirstCluster(entry.FirstCluster)
	return cd.RemoveEntry(entry.Address)
}

// OpenFile admits name into the open-file map. If name does not exist and
// mode includes ModeCreate, a zero-size, no-storage entry is created first;
// otherwise a missing name fails FILE_NOT_FOUND, per spec.md §4.E.
func (d *Directory) OpenFile(name string, mode Mode) (*File, error) {
	fs, err := d.resolve()
	if err != nil {
		return nil, err
	}

	absPath := joinChild(d.path, name)
	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	entry, err := cd.FindDirectoryEntry(KindFile, name)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		if !mode.Has(ModeCreate) {
			return nil, ErrFileNotFound
		}

		now, nowTime, nowHundredths := FromTime(time.Now())
		created, err := cd.CreateEntry(name, CreateEntryOptions{
			Attr:           AttrArchive,
			CreateDate:     now,
			CreateTime:     nowTime,
			CreateHundreds: nowHundredths,
			WriteDate:      now,
			WriteTime:      nowTime,
		})
		if err != nil {
			return nil, err
		}

		rec := &fileRecord{
			filesystemID: fs.id,
			path:         absPath,
			mode:         mode,
			entryAddress: created.Address,
		}
		return fs.files.AddFile(absPath, rec)
	}

	rec := &fileRecord{
		filesystemID:   fs.id,
		path:           absPath,
		mode:           mode,
		entryAddress:   entry.Address,
		firstCluster:   entry.FirstCluster,
		currentCluster: entry.FirstCluster,
		size:           entry.Size,
	}
	return fs.files.AddFile(absPath, rec)
}

// DeleteFile removes the child file entry name: forbidden while open,
// invalidates the cache, re-verifies the on-disk entry, removes its slot,
// and releases its data chain, per spec.md §4.E.
func (d *Directory) DeleteFile(name string) error {
	fs, err := d.resolve()
	if err != nil {
		return err
	}

	absPath := joinChild(d.path, name)
	if fs.files.IsFileOpen(absPath) {
		return ErrFileAlreadyOpenedExclusively
	}

	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), d.firstCluster)
	entry, err := cd.FindDirectoryEntry(KindFile, name)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrFileNotFound
	}

	fs.cache.InvalidateByFirstCluster(entry.FirstCluster)

	reread, err := cd.FindDirectoryEntry(KindFile, name)
	if err != nil {
		return err
	}
	if reread == nil {
		return ErrFileNotFound
	}

	if err := cd.RemoveEntry(reread.Address); err != nil {
		return err
	}
	if reread.FirstCluster == 0 {
		return nil
	}
	return fs.adapter.ReleaseChain(reread.FirstCluster)
}
