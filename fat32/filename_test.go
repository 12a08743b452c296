package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrubToShortNameField(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		max       int
		wantField string
		wantLossy bool
	}{
		{"plain upper", "README", 8, "README", false},
		{"lowercase promoted", "readme", 8, "README", false},
		{"spaces and dots dropped", "my file.v1", 8, "MYFILEV1", false},
		{"forbidden char replaced", "a+b", 8, "A_B", true},
		{"truncated", "averylongname", 8, "AVERYLON", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, lossy := scrubToShortNameField(c.in, c.max)
			assert.Equal(t, c.wantField, got)
			assert.Equal(t, c.wantLossy, lossy)
		})
	}
}

func TestIs8Dot3Filename(t *testing.T) {
	name, ok := Is8Dot3Filename("README.TXT")
	require.True(t, ok)
	assert.Equal(t, "README", name.Base)
	assert.Equal(t, "TXT", name.Ext)

	_, ok = Is8Dot3Filename("readme.txt")
	assert.False(t, ok, "lowercase is not a legal short name")

	_, ok = Is8Dot3Filename("verylongname.txt")
	assert.False(t, ok, "base exceeds 8 characters")

	name, ok = Is8Dot3Filename("NOEXT")
	require.True(t, ok)
	assert.Equal(t, "NOEXT", name.Base)
	assert.Equal(t, "", name.Ext)
}

func TestBasisShortNameNeedsTail(t *testing.T) {
	basis, needsTail := BasisShortName("My Document.txt")
	assert.True(t, needsTail)
	assert.Equal(t, "TXT", basis.Ext)

	basis, needsTail = BasisShortName("README.TXT")
	assert.False(t, needsTail)
	assert.Equal(t, "README", basis.Base)
}

func TestAddNumericTail(t *testing.T) {
	got, err := AddNumericTail("MYDOCUMENT", 1)
	require.NoError(t, err)
	assert.Equal(t, "MYDOCU~1", got)
	assert.LessOrEqual(t, len(got), 8)

	got, err = AddNumericTail("AB", 42)
	require.NoError(t, err)
	assert.Equal(t, "AB~42", got)

	_, err = AddNumericTail("AB", 0)
	assert.Error(t, err)

	_, err = AddNumericTail("AB", MaxNumericTail+1)
	assert.Error(t, err)
}

func TestParseCompactShortNameRoundTrip(t *testing.T) {
	name := ShortName{Base: "MYDOCU~1", Ext: "TXT"}
	parsed, tail, hasTail := ParseCompactShortName(name.Compact())
	require.True(t, hasTail)
	assert.Equal(t, 1, tail)
	assert.Equal(t, "MYDOCU", parsed.Base)
	assert.Equal(t, "TXT", parsed.Ext)

	plain := ShortName{Base: "README", Ext: "TXT"}
	parsed, _, hasTail = ParseCompactShortName(plain.Compact())
	assert.False(t, hasTail)
	assert.Equal(t, "README", parsed.Base)
}

func TestIsDerivativeOf(t *testing.T) {
	basis := ShortName{Base: "MYDOCUMENT", Ext: "TXT"}
	derivative := ShortName{Base: "MYDOCU", Ext: "TXT"}
	assert.True(t, IsDerivativeOf(derivative, basis, true))

	wrongExt := ShortName{Base: "MYDOCU", Ext: "DOC"}
	assert.False(t, IsDerivativeOf(wrongExt, basis, true))

	exact := ShortName{Base: "README", Ext: "TXT"}
	assert.True(t, IsDerivativeOf(exact, ShortName{Base: "README", Ext: "TXT"}, false))
}

func TestValidateLongFilename(t *testing.T) {
	_, err := ValidateLongFilename("")
	assert.ErrorIs(t, err, ErrEmptyFilename)

	_, err = ValidateLongFilename("bad/name.txt")
	assert.ErrorIs(t, err, ErrFilenameContainsForbiddenCharacters)

	got, err := ValidateLongFilename("  trimmed.txt.. ")
	require.NoError(t, err)
	assert.Equal(t, "trimmed.txt", got)

	long := make([]byte, MaxFilenameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ValidateLongFilename(string(long))
	assert.ErrorIs(t, err, ErrFilenameTooLong)
}

func TestLFNFragmentCount(t *testing.T) {
	assert.Equal(t, 1, lfnFragmentCount(1))
	assert.Equal(t, 1, lfnFragmentCount(13))
	assert.Equal(t, 2, lfnFragmentCount(14))
	assert.Equal(t, 0, lfnFragmentCount(0))
}

func TestBuildAndReassembleLFN(t *testing.T) {
	longName := "a rather long display name.txt"
	short := ShortName{Base: "ARATHE~1", Ext: "TXT"}
	slots := buildLFNSlots(longName, short)
	assert.Equal(t, lfnFragmentCount(len(longName)), len(slots))

	got := reassembleLFN(slots)
	assert.Equal(t, longName, got)
}
