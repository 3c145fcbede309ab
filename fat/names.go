package fat

import (
	"fmt"
	"strings"
)

// NormalizedShortName is the fixed 11-byte 8.3 buffer stored on disk: an 8-byte
// stem followed by a 3-byte extension, uppercase ASCII, space-padded, no dot.
type NormalizedShortName [11]byte

// String renders the normalized name with its stored padding, e.g. "HELLO   TXT".
func (n NormalizedShortName) String() string { return string(n[:]) }

// isAllowedShortNameByte reports whether b may appear in an 8.3 name.
// Lowercase letters are allowed on input -- they are forced to uppercase on write
// -- but are excluded here from the "already valid" check via the mixed-case rule
// in IsShortName.
func isAllowedShortNameByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '(', ')', '-', '@', '^', '_', '`', '{', '}', '~':
		return true
	}
	return false
}

// isNotMixedCase reports whether s has no occurrence of both an uppercase and a
// lowercase ASCII letter -- all-uppercase, all-lowercase, and no-letters-at-all
// all pass; only genuine mixed case fails.
func isNotMixedCase(s string) bool {
	var hasUpper, hasLower bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		} else if c >= 'a' && c <= 'z' {
			hasLower = true
		}
	}
	return !(hasUpper && hasLower)
}

func isValidShortComponent(s string, maxLen int) bool {
	if len(s) < 1 || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAllowedShortNameByte(s[i]) {
			return false
		}
	}
	return isNotMixedCase(s)
}

// IsShortName reports whether name is already a valid 8.3 short name: either no
// dot with 1-8 allowed, non-mixed-case characters, or exactly one dot splitting a
// 1-8 character stem from a 1-3 character extension, both satisfying the same
// rule.
func IsShortName(name string) bool {
	dotCount := strings.Count(name, ".")
	if dotCount == 0 {
		return isValidShortComponent(name, 8)
	}
	if dotCount != 1 {
		return false
	}
	idx := strings.IndexByte(name, '.')
	stem, ext := name[:idx], name[idx+1:]
	return isValidShortComponent(stem, 8) && isValidShortComponent(ext, 3)
}

// NormalizeShortName converts a name already satisfying IsShortName into its
// fixed 11-byte on-disk form: uppercased, space-padded, dot removed. An
// 11-byte name with no dot is taken as already normalized (8-byte stem, then
// 3-byte extension), so normalizing a NormalizedShortName's String() again
// yields the same bytes.
func NormalizeShortName(name string) NormalizedShortName {
	var out NormalizedShortName
	for i := range out {
		out[i] = ' '
	}

	stem, ext := name, ""
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		stem, ext = name[:idx], name[idx+1:]
	} else if len(name) == len(out) {
		stem, ext = name[:8], name[8:]
	}

	copy(out[0:8], strings.ToUpper(stem))
	copy(out[8:11], strings.ToUpper(ext))
	return out
}

// mapShortNameByte maps one byte of a long name into the allowed short-name
// alphabet, substituting '_' for anything disallowed and uppercasing lowercase
// ASCII. Space is handled separately by the caller: it is dropped from the
// basis name entirely rather than mapped to '_'.
func mapShortNameByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	if isAllowedShortNameByte(b) || (b >= 'A' && b <= 'Z') {
		return b
	}
	return '_'
}

// maxShortNameAttempts bounds the ~i suffix search.
const maxShortNameAttempts = 9999999

// MakeShortAlias builds a unique 8.3 alias for longName. taken tracks the set of
// normalized short names already used in the directory and is updated with the
// returned alias.
func MakeShortAlias(longName string, taken map[NormalizedShortName]bool) (NormalizedShortName, error) {
	var stem, ext []byte
	inExt := false

	for i := 0; i < len(longName); i++ {
		if longName[i] == ' ' {
			continue
		}
		if !inExt && longName[i] == '.' {
			inExt = true
			ext = append(ext, '.')
			continue
		}

		b := mapShortNameByte(longName[i])
		if inExt {
			if len(ext) < 4 {
				ext = append(ext, b)
			}
		} else {
			if len(stem) < 8 {
				stem = append(stem, b)
			}
		}
	}

	extSuffix := ""
	if len(ext) > 0 {
		extSuffix = string(ext[1:]) // drop the leading dot marker
	}

	for i := 1; i <= maxShortNameAttempts; i++ {
		suffix := fmt.Sprintf("~%d", i)
		baseStem := string(stem)
		if len(baseStem)+len(suffix) > 8 {
			baseStem = baseStem[:8-len(suffix)]
		}
		candidateName := baseStem + suffix
		if extSuffix != "" {
			candidateName += "." + extSuffix
		}

		candidate := NormalizeShortName(candidateName)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate, nil
		}
	}

	return NormalizedShortName{}, fmt.Errorf("cannot generate unique short name for %q", longName)
}

// ShortNameChecksum computes the LFN checksum byte over an already-normalized
// 11-byte short name.
func ShortNameChecksum(name NormalizedShortName) byte {
	var sum byte
	for _, b := range name {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}
