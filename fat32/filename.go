package fat32

import (
	"strings"
	"unicode"
)

// forbiddenShortNameChars are the characters spec.md §3 forbids in an 8.3
// short name.
const forbiddenShortNameChars = `"*/:<>?\|+,;=[]`

// forbiddenLongNameChars are the characters spec.md §4.B forbids in a long
// filename.
const forbiddenLongNameChars = `<>:"/\|?*`

// ShortName is a parsed 8.3 short filename: up to 8 base characters and up
// to 3 extension characters, unpadded.
type ShortName struct {
	Base string
	Ext  string
}

// Compact returns the 11-byte, space-padded, uppercase on-disk form.
func (s ShortName) Compact() [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], s.Base)
	copy(out[8:11], s.Ext)
	return out
}

// String renders the short name in "BASE.EXT" display form.
func (s ShortName) String() string {
	if s.Ext == "" {
		return s.Base
	}
	return s.Base + "." + s.Ext
}

func isForbiddenShortNameChar(r rune) bool {
	if r <= 0x1F || r == 0x7F {
		return true
	}
	return strings.ContainsRune(forbiddenShortNameChars, r)
}

// scrubToShortNameField uppercases letters, drops spaces and periods, and
// replaces any other forbidden/unprintable character with '_', marking the
// result lossy. At most max runes are kept.
func scrubToShortNameField(s string, max int) (result string, lossy bool) {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= max {
			lossy = true
			break
		}
		switch {
		case r == ' ' || r == '.':
			continue
		case unicode.IsLower(r):
			b.WriteRune(unicode.ToUpper(r))
		case isForbiddenShortNameChar(r):
			b.WriteRune('_')
			lossy = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), lossy
}

// NewShortNameFromComponents builds a short name from an already-split base
// and extension (e.g. the portions of a long name before/after the last
// period), per spec.md §4.B.
func NewShortNameFromComponents(base, ext string) (name ShortName, lossy bool) {
	b, lossyB := scrubToShortNameField(base, 8)
	e, lossyE := scrubToShortNameField(ext, 3)
	return ShortName{Base: b, Ext: e}, lossyB || lossyE
}

// ParseCompactShortName trusts and decodes an on-disk 11-byte short name,
// splitting off any trailing numeric tail found by scanning right to left.
func ParseCompactShortName(compact [11]byte) (name ShortName, tail int, hasTail bool) {
	base := strings.TrimRight(string(compact[0:8]), " ")
	ext := strings.TrimRight(string(compact[8:11]), " ")

	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	if i > 0 && i < len(base) && base[i-1] == '~' {
		digits := base[i:]
		n := 0
		for _, d := range digits {
			n = n*10 + int(d-'0')
		}
		return ShortName{Base: base[:i-1], Ext: ext}, n, true
	}

	return ShortName{Base: base, Ext: ext}, 0, false
}

// IsDerivativeOf reports whether candidate is a derivative of basis: the
// extensions match, and either candidate has no numeric tail and its base
// equals basis's base exactly, or candidate has a tail and its (possibly
// truncated) base is a prefix of basis's base -- the truncation
// AddNumericTail performs to make room for "~N" always cuts from the end,
// so a true derivative's stored base is always a prefix of the untruncated
// basis.
func IsDerivativeOf(candidate, basis ShortName, candidateHasTail bool) bool {
	if candidate.Ext != basis.Ext {
		return false
	}
	if !candidateHasTail {
		return candidate.Base == basis.Base
	}
	return strings.HasPrefix(basis.Base, candidate.Base)
}

// AddNumericTail appends "~N" to base, truncating base as needed so the
// result fits in 8 characters. N must be in [1, 999999].
func AddNumericTail(base string, n int) (string, error) {
	if n < 1 || n > MaxNumericTail {
		return "", ErrNumericTailOutOfRange
	}
	suffix := "~" + itoa(n)
	maxBase := 8 - len(suffix)
	if maxBase < 0 {
		maxBase = 0
	}
	if len(base) > maxBase {
		base = base[:maxBase]
	}
	return base + suffix, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [6]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// ShortNameChecksum computes the MSDOS checksum over the 11-byte padded 8.3
// name, used to tie LFN slots to their owning standard entry.
func ShortNameChecksum(compact [11]byte) byte {
	var sum byte
	for _, b := range compact {
		if sum&1 != 0 {
			sum = 0x80 + (sum >> 1) + b
		} else {
			sum = (sum >> 1) + b
		}
	}
	return sum
}

// ValidateLongFilename trims leading spaces and trailing spaces/periods,
// then checks the result is non-empty, within MaxFilenameLength, and
// contains no forbidden or unprintable characters.
func ValidateLongFilename(name string) (string, error) {
	name = strings.TrimLeft(name, " ")
	name = strings.TrimRight(name, " .")
	if name == "" {
		return "", ErrEmptyFilename
	}
	if len([]rune(name)) > MaxFilenameLength {
		return "", ErrFilenameTooLong
	}
	for _, r := range name {
		if r < ' ' || r == 0x7F || strings.ContainsRune(forbiddenLongNameChars, r) {
			return "", ErrFilenameContainsForbiddenCharacters
		}
	}
	return name, nil
}

// Is8Dot3Filename reports whether name is already a legal 8.3 short name
// (uppercase letters only, legal short-name characters, at most one period
// splitting it into <=8/<=3 halves), returning the short name if so.
func Is8Dot3Filename(name string) (ShortName, bool) {
	if name == "" || len(name) > 12 {
		return ShortName{}, false
	}

	base := name
	ext := ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base = name[:idx]
		ext = name[idx+1:]
		if strings.IndexByte(ext, '.') >= 0 {
			return ShortName{}, false
		}
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return ShortName{}, false
	}

	check := func(s string) bool {
		for _, r := range s {
			if unicode.IsLower(r) {
				return false
			}
			if r == ' ' || r == '.' || isForbiddenShortNameChar(r) {
				return false
			}
		}
		return true
	}
	if !check(base) || !check(ext) {
		return ShortName{}, false
	}

	return ShortName{Base: base, Ext: ext}, true
}

// BasisShortName generates the seed short name used when a long filename is
// not 8.3-compliant. It applies the short-name permissibility map to the
// portions before/after the last period, then adds numeric tail "~1" if the
// conversion was lossy or either half overflowed its field.
func BasisShortName(longName string) (basis ShortName, needsTail bool) {
	base := longName
	ext := ""
	if idx := strings.LastIndexByte(longName, '.'); idx >= 0 {
		base = longName[:idx]
		ext = longName[idx+1:]
	}

	overflowedBase := len(scrubAll(base)) > 8
	overflowedExt := len(scrubAll(ext)) > 3

	name, lossy := NewShortNameFromComponents(base, ext)
	needsTail = lossy || overflowedBase || overflowedExt
	return name, needsTail
}

// scrubAll is BasisShortName's overflow probe: it applies the same
// filtering as scrubToShortNameField but without truncation, so the caller
// can detect "the untruncated result would have overflowed".
func scrubAll(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '.':
			continue
		case unicode.IsLower(r):
			b.WriteRune(unicode.ToUpper(r))
		case isForbiddenShortNameChar(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lfnFragmentSize is the number of UCS-2 code units stored in one LFN slot
// (5 + 6 + 2, per spec.md §3).
const lfnFragmentSize = 13

// lfnFragmentCount returns ceil(len/13) for a long name's UCS-2 code unit
// count.
func lfnFragmentCount(codeUnits int) int {
	return (codeUnits + lfnFragmentSize - 1) / lfnFragmentSize
}
