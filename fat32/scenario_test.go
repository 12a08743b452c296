package fat32

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioCreateThenDeleteRoundTrip mirrors spec.md §8 scenario 3: a
// create, a multi-cluster write, a close, and a delete must leave the FAT
// and directory bytes exactly as they started. The data region is excluded
// from the comparison -- like any FAT32 volume, a delete releases a file's
// clusters without wiping their content.
func TestScenarioCreateThenDeleteRoundTrip(t *testing.T) {
	cfg := defaultTestVolumeConfig()
	cfg.dataClusters = 128
	dev, lba := buildTestVolume(cfg)
	layout := volumeLayoutFor(cfg)

	before := sha256.Sum256(layout.metadataBytes(dev))

	fs, err := Mount(dev, lba, 0)
	require.NoError(t, err)

	root := fs.GetRootDirectory()
	f, err := root.OpenFile("new.txt", ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte("This is content for the new File\n"), 1022)
	_, err = f.Write(chunk)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, root.DeleteFile("new.txt"))
	fs.Unmount()

	after := sha256.Sum256(layout.metadataBytes(dev))
	assert.Equal(t, before, after, "FAT and root directory bytes must return to their pre-create state")
}

// TestScenarioSeekPatch mirrors spec.md §8 scenario 4.
func TestScenarioSeekPatch(t *testing.T) {
	cfg := defaultTestVolumeConfig()
	cfg.dataClusters = 128
	cfg.sectorsPerCluster = 2 // 1024-byte clusters
	dev, lba := buildTestVolume(cfg)
	fs, err := Mount(dev, lba, 0)
	require.NoError(t, err)
	defer fs.Unmount()

	root := fs.GetRootDirectory()
	f, err := root.OpenFile("stars.bin", ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)

	const size = 50000
	_, err = f.Write(bytes.Repeat([]byte{'*'}, size))
	require.NoError(t, err)

	patches := []struct {
		offset int64
		value  string
	}{
		{0, "0"},
		{67, "1"},
		{1023, "23"},
		{20000, "4"},
		{49999, "5"},
	}
	for _, p := range patches {
		require.NoError(t, f.Seek(p.offset))
		_, err := f.Write([]byte(p.value))
		require.NoError(t, err)
	}
	// The two-byte patch at 1023 spans the boundary between the first and
	// second 1024-byte clusters, so 1024 holds its second byte.

	require.NoError(t, f.Seek(0))
	buf := make([]byte, size)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, size, n)

	assert.Equal(t, byte('0'), buf[0])
	assert.Equal(t, byte('1'), buf[67])
	assert.Equal(t, byte('2'), buf[1023])
	assert.Equal(t, byte('3'), buf[1024])
	assert.Equal(t, byte('4'), buf[20000])
	assert.Equal(t, byte('5'), buf[49999])

	require.NoError(t, f.Close())
}

// TestScenarioShortNameConflictResolutionAssignsNextTail mirrors
// spec.md §8 scenario 5: with TEST~1 .. TEST~K already present, a new
// entry whose basis is TEST is assigned tail K+1.
func TestScenarioShortNameConflictResolutionAssignsNextTail(t *testing.T) {
	cfg := defaultTestVolumeConfig()
	cfg.dataClusters = 512
	dev, lba := buildTestVolume(cfg)
	fs, err := Mount(dev, lba, 0)
	require.NoError(t, err)
	defer fs.Unmount()

	root := fs.GetRootDirectory()
	cd := NewClusterDirectory(fs.adapter, fs.adapter.RootDirectoryCluster(), fs.adapter.RootDirectoryCluster())

	const k = 2 * MaxFAT32ShortFilenameSearchTableSize
	for i := 1; i <= k; i++ {
		tagged, err := AddNumericTail("TEST", i)
		require.NoError(t, err)
		short := ShortName{Base: tagged}
		_, err = cd.CreateEntry(short.String(), CreateEntryOptions{Attr: AttrArchive})
		require.NoErrorf(t, err, "seeding TEST~%d", i)
	}

	entry, err := root.CreateDirectory("TEST this collides")
	require.NoError(t, err)

	_, tail, hasTail := ParseCompactShortName(entry.shortName.Compact())
	require.True(t, hasTail)
	assert.Equal(t, k+1, tail)
}

// TestScenarioRenamePreservesContents mirrors spec.md §8 scenario 6.
func TestScenarioRenamePreservesContents(t *testing.T) {
	cfg := defaultTestVolumeConfig()
	cfg.dataClusters = 128
	dev, lba := buildTestVolume(cfg)
	fs, err := Mount(dev, lba, 0)
	require.NoError(t, err)
	defer fs.Unmount()

	root := fs.GetRootDirectory()
	const oldName = "file to rename.txt"
	const newName = "file after rename.txt"

	f, err := root.OpenFile(oldName, ModeRead|ModeWrite|ModeCreate)
	require.NoError(t, err)

	reference := bytes.Repeat([]byte("reference content "), 64)
	want := append(append([]byte{}, reference...), reference...)
	_, err = f.Append(reference)
	require.NoError(t, err)
	_, err = f.Append(reference)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, root.RenameFile(oldName, newName))

	f, err = root.OpenFile(newName, ModeRead)
	require.NoError(t, err)

	got := make([]byte, len(want))
	n, err := f.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	assert.Equal(t, want, got)
	require.NoError(t, f.Close())

	_, err = root.OpenFile(oldName, ModeRead)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestScenarioDerivedShortNamesAreDistinct(t *testing.T) {
	fs := newTestFilesystem(t)
	root := fs.GetRootDirectory()

	var created []ShortName
	for i := 0; i < 5; i++ {
		d, err := root.CreateDirectory(fmt.Sprintf("My Document %d", i))
		require.NoError(t, err)
		created = append(created, d.shortName)
	}

	seen := map[string]bool{}
	for _, s := range created {
		key := s.String()
		require.Falsef(t, seen[key], "duplicate short name %s", key)
		seen[key] = true
	}
}
