package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	dev, lba := buildTestVolume(defaultTestVolumeConfig())
	fs, err := Mount(dev, lba, 0)
	require.NoError(t, err)
	t.Cleanup(fs.Unmount)
	return fs
}

func TestDirectoryDotAndDotDotAtRoot(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	self, err := root.GetDirectory(".")
	require.NoError(t, err)
	assert.Equal(t, "/", self.Path())

	parent, err := root.GetDirectory("..")
	require.NoError(t, err)
	assert.Equal(t, "/", parent.Path(), "root's parent is itself")
}

func TestDirectoryCreateAndGet(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	child, err := root.CreateDirectory("sub")
	require.NoError(t, err)
	assert.Equal(t, "/sub", child.Path())

	got, err := root.GetDirectory("sub")
	require.NoError(t, err)
	assert.Equal(t, child.firstCluster, got.firstCluster)
}

func TestDirectoryDotDotFromChild(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	child, err := root.CreateDirectory("sub")
	require.NoError(t, err)

	grandchild, err := child.CreateDirectory("deeper")
	require.NoError(t, err)

	parent, err := grandchild.GetDirectory("..")
	require.NoError(t, err)
	assert.Equal(t, child.firstCluster, parent.firstCluster)
	assert.Equal(t, "/sub", parent.Path())

	grandparent, err := parent.GetDirectory("..")
	require.NoError(t, err)
	assert.Equal(t, "/", grandparent.Path())
}

func TestDirectoryRemove(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	child, err := root.CreateDirectory("gone")
	require.NoError(t, err)

	require.NoError(t, child.RemoveDirectory())

	_, err = root.GetDirectory("gone")
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestDirectoryRemoveRootForbidden(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()
	assert.ErrorIs(t, root.RemoveDirectory(), ErrRootDirectoryCannotBeRemoved)
}

func TestDirectoryRenameDirectory(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	_, err := root.CreateDirectory("oldname")
	require.NoError(t, err)

	require.NoError(t, root.RenameDirectory("oldname", "newname"))

	_, err = root.GetDirectory("oldname")
	assert.ErrorIs(t, err, ErrDirectoryNotFound)

	got, err := root.GetDirectory("newname")
	require.NoError(t, err)
	assert.Equal(t, "/newname", got.Path())
}

func TestDirectoryVisitDirectoryLists(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	_, err := root.CreateDirectory("a")
	require.NoError(t, err)
	_, err = root.CreateDirectory("b")
	require.NoError(t, err)

	var names []string
	err = root.VisitDirectory(func(e *DirEntry) VisitResult {
		if !e.IsVolumeLabel() {
			names = append(names, e.DisplayName())
		}
		return VisitContinue
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestDirectoryOpenFileCreatesWhenMissing(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	f, err := root.OpenFile("new.txt", ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entry, err := func() (*DirEntry, error) {
		var found *DirEntry
		err := root.VisitDirectory(func(e *DirEntry) VisitResult {
			if e.DisplayName() == "new.txt" {
				found = e
				return VisitFinished
			}
			return VisitContinue
		})
		return found, err
	}()
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestDirectoryOpenFileMissingWithoutCreateFails(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	_, err := root.OpenFile("absent.txt", ModeRead)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDirectoryDeleteFile(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	f, err := root.OpenFile("todelete.txt", ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, root.DeleteFile("todelete.txt"))

	_, err = root.OpenFile("todelete.txt", ModeRead)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDirectoryDeleteFileRefusedWhileOpen(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	f, err := root.OpenFile("busy.txt", ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)

	err = root.DeleteFile("busy.txt")
	assert.ErrorIs(t, err, ErrFileAlreadyOpenedExclusively)

	require.NoError(t, f.Close())
}
