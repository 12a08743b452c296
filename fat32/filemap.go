package fat32

import (
	"sync"

	"github.com/google/uuid"
)

// openFileEntry pairs an open file's record with the filesystem that owns
// it, so a bare UUID is enough to resolve both, per spec.md §4.F.
type openFileEntry struct {
	fs  *Filesystem
	rec *fileRecord
}

// openFileTable is the process-wide UUID index every File wrapper resolves
// through. Per-filesystem FileMaps additionally index by absolute path to
// enforce at-most-one-open-handle-per-path.
var openFileTable = struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*openFileEntry
}{byID: make(map[uuid.UUID]*openFileEntry)}

// lookupOpenFile resolves a File wrapper's UUID to its owning filesystem and
// record.
func lookupOpenFile(id uuid.UUID) (*Filesystem, *fileRecord, bool) {
	openFileTable.mu.RLock()
	defer openFileTable.mu.RUnlock()
	e, ok := openFileTable.byID[id]
	if !ok {
		return nil, nil, false
	}
	return e.fs, e.rec, true
}

// FileMap is a filesystem's open-file table: two indices, keyed by absolute
// path and by file UUID, per spec.md §4.G.
type FileMap struct {
	fs *Filesystem

	mu     sync.Mutex
	byPath map[string]uuid.UUID
}

func newFileMap(fs *Filesystem) *FileMap {
	return &FileMap{fs: fs, byPath: make(map[string]uuid.UUID)}
}

// AddFile opens path under a freshly generated UUID and returns the wrapper.
// A path already open fails FILE_ALREADY_OPENED_EXCLUSIVELY.
func (m *FileMap) AddFile(path string, rec *fileRecord) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byPath[path]; exists {
		return nil, ErrFileAlreadyOpenedExclusively
	}

	id := uuid.New()
	m.byPath[path] = id

	openFileTable.mu.Lock()
	openFileTable.byID[id] = &openFileEntry{fs: m.fs, rec: rec}
	openFileTable.mu.Unlock()

	return &File{id: id}, nil
}

// RemoveFile closes id, which must be the handle currently open at path.
func (m *FileMap) RemoveFile(path string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byPath[path]
	if !ok || cur != id {
		return ErrFileNotOpen
	}
	delete(m.byPath, path)

	openFileTable.mu.Lock()
	delete(openFileTable.byID, id)
	openFileTable.mu.Unlock()

	return nil
}

// IsFileOpen reports whether path currently has an open handle.
func (m *FileMap) IsFileOpen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPath[path]
	return ok
}

// GetFileByUUID returns the record behind an open handle, or FILE_IS_CLOSED.
func (m *FileMap) GetFileByUUID(id uuid.UUID) (*fileRecord, error) {
	_, rec, ok := lookupOpenFile(id)
	if !ok {
		return nil, ErrFileIsClosed
	}
	return rec, nil
}
