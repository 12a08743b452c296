package fat32

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dev, lba := buildTestVolume(defaultTestVolumeConfig())
	a, err := NewAdapter(dev, lba)
	require.NoError(t, err)
	return a
}

func TestClusterDirectoryCreateAndFind(t *testing.T) {
	a := newTestAdapter(t)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	entry, err := cd.CreateEntry("hello.txt", CreateEntryOptions{Attr: AttrArchive, Size: 0})
	require.NoError(t, err)
	require.Equal(t, "HELLO", entry.ShortName.Base)
	require.Equal(t, "TXT", entry.ShortName.Ext)

	found, err := cd.FindDirectoryEntry(KindFile, "hello.txt")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, entry.Address, found.Address)
}

func TestClusterDirectoryLongNameRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	longName := "a rather long display name.txt"
	entry, err := cd.CreateEntry(longName, CreateEntryOptions{Attr: AttrArchive})
	require.NoError(t, err)
	require.Equal(t, longName, entry.LongName)

	found, err := cd.FindDirectoryEntry(KindFile, longName)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, longName, found.DisplayName())
}

func TestClusterDirectoryNumericTailConflicts(t *testing.T) {
	cfg := defaultTestVolumeConfig()
	cfg.dataClusters = 256
	dev, lba := buildTestVolume(cfg)
	a, err := NewAdapter(dev, lba)
	require.NoError(t, err)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	const n = MaxFAT32ShortFilenameSearchTableSize + 5
	for i := 0; i < n; i++ {
		longName := fmt.Sprintf("My Document %d.txt", i)
		_, err := cd.CreateEntry(longName, CreateEntryOptions{Attr: AttrArchive})
		require.NoErrorf(t, err, "creating entry %d", i)
	}

	used, err := cd.findShortNameConflicts(ShortName{Base: "MYDOCUMENT", Ext: "TXT"})
	require.NoError(t, err)
	require.Len(t, used, n)
}

func TestClusterDirectoryRemoveEntry(t *testing.T) {
	a := newTestAdapter(t)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	longName := "a rather long display name.txt"
	entry, err := cd.CreateEntry(longName, CreateEntryOptions{Attr: AttrArchive})
	require.NoError(t, err)

	require.NoError(t, cd.RemoveEntry(entry.Address))

	found, err := cd.FindDirectoryEntry(KindFile, longName)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestClusterDirectoryDuplicateNameRejected(t *testing.T) {
	a := newTestAdapter(t)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	_, err := cd.CreateEntry("dup.txt", CreateEntryOptions{Attr: AttrArchive})
	require.NoError(t, err)

	_, err = cd.CreateEntry("dup.txt", CreateEntryOptions{Attr: AttrArchive})
	require.ErrorIs(t, err, ErrFilenameAlreadyInUse)
}

func TestAddNewClusterExtendsChain(t *testing.T) {
	a := newTestAdapter(t)
	root := a.RootDirectoryCluster()
	cd := NewClusterDirectory(a, root, root)

	next, err := cd.AddNewCluster()
	require.NoError(t, err)

	chained, err := a.NextClusterInChain(root)
	require.NoError(t, err)
	require.Equal(t, next, chained)

	end, err := a.NextClusterInChain(next)
	require.NoError(t, err)
	require.True(t, end.IsEOF())
}
