// Package dnpath implements the reversible encoding between a normalized
// distinguished name and its on-disk path: the entry file for a DN, and the
// companion subtree directory that holds its children.
package dnpath

import (
	"path/filepath"
	"strings"
)

// EntrySuffix is the filename suffix that marks an entry file, always
// escaped when it occurs literally inside an RDN so it can never collide
// with the suffix itself.
const EntrySuffix = ".ldif"

const escapeChar = '\\'

// fsLeftBrace/fsRightBrace are the on-disk stand-ins for the DN's ordinal-RDN
// braces. On every platform this backend targets they are identical to the
// DN-side braces, so no substitution is actually needed; the constants and
// the substitution step are kept so a platform that does need distinct
// filesystem brackets (mirroring IX_FSL/IX_FSR in the original) only has to
// change these two lines.
const (
	dnLeftBrace  = '{'
	dnRightBrace = '}'
	fsLeftBrace  = '{'
	fsRightBrace = '}'
)

func unsafeChar(c byte) bool {
	return c == '/' || c == ':'
}

// needsEscape reports whether c must be hex-escaped when it appears inside
// an RDN component being written to a filename. Mirrors LDIF_NEED_ESCAPE:
// any unsafe character, the escape character itself (if distinct from '\'),
// '.' (so ".ldif" can't be spoofed by an RDN literally ending in it), and
// the filesystem brace substitutes (if distinct from the DN braces).
func needsEscape(c byte) bool {
	if unsafeChar(c) {
		return true
	}
	if c == '.' {
		return true
	}
	if maybeUnsafe(c, escapeChar) {
		return true
	}
	if maybeUnsafe(c, fsLeftBrace) {
		return true
	}
	if fsRightBrace != fsLeftBrace && maybeUnsafe(c, fsRightBrace) {
		return true
	}
	return false
}

// maybeUnsafe treats x as unsafe for c==x unless x is already handled
// specially (an unsafe char, the backslash, or a DN brace).
func maybeUnsafe(c, x byte) bool {
	if unsafeChar(x) || x == '\\' || x == dnLeftBrace || x == dnRightBrace {
		return false
	}
	return c == x
}

func init() {
	// Mirrors assert_safe_filenames: the substitutes this encoding relies
	// on to keep filenames unambiguous must not themselves be unsafe. The
	// check runs at program start and panics; it does not fail the build.
	if unsafeChar('-') || unsafeChar(escapeChar) || unsafeChar(fsLeftBrace) || unsafeChar(fsRightBrace) {
		panic("dnpath: escape/brace substitute characters are not safe filename characters")
	}
}

const hexDigits = "0123456789ABCDEF"

// encodeRDN renders one normalized RDN component as a path-safe filename
// fragment (no directory separators, no leading/trailing path meaning).
func encodeRDN(rdn string) string {
	var b strings.Builder
	b.Grow(len(rdn) + 4)
	for i := 0; i < len(rdn); i++ {
		ch := rdn[i]
		switch {
		case escapeChar != '\\' && ch == '\\':
			b.WriteByte(escapeChar)
		case fsLeftBrace != dnLeftBrace && ch == dnLeftBrace:
			b.WriteByte(fsLeftBrace)
		case fsRightBrace != dnRightBrace && ch == dnRightBrace:
			b.WriteByte(fsRightBrace)
		case needsEscape(ch):
			b.WriteByte(escapeChar)
			b.WriteByte(hexDigits[(ch>>4)&0xF])
			b.WriteByte(hexDigits[ch&0xF])
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// decodeRDN reverses encodeRDN, for tools that need to recover the
// normalized RDN from a filename fragment. The tree enumerator does not use
// it: it takes each entry's DN from the entry file's contents.
func decodeRDN(name string) (string, error) {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch == escapeChar && i+2 < len(name) && isHex(name[i+1]) && isHex(name[i+2]):
			b.WriteByte(unhex(name[i+1])<<4 | unhex(name[i+2]))
			i += 2
		case ch == escapeChar && escapeChar != '\\':
			// A bare escapeChar not followed by two hex digits stands for
			// a literal '\\' (see encodeRDN's pass-through case).
			b.WriteByte('\\')
		case ch == fsLeftBrace && fsLeftBrace != dnLeftBrace:
			b.WriteByte(dnLeftBrace)
		case ch == fsRightBrace && fsRightBrace != dnRightBrace:
			b.WriteByte(dnRightBrace)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return c - 'a' + 10
	}
}

// EntryPath returns the absolute filesystem path of the entry file for a
// DN's normalized RDN components (leaf-to-root, e.g. dn.DN.NRDNs), rooted
// at base. nrdns must include the database suffix RDNs themselves: the
// suffix entry's file is produced by passing the suffix's own NRDNs, and
// the empty slice yields base itself plus the entry suffix.
func EntryPath(base string, nrdns []string) string {
	return buildPath(base, nrdns) + EntrySuffix
}

// SubtreeDir returns the directory that holds the children of the entry
// identified by nrdns — the same stem as EntryPath without the .ldif
// suffix.
func SubtreeDir(base string, nrdns []string) string {
	return buildPath(base, nrdns)
}

func buildPath(base string, nrdns []string) string {
	elems := make([]string, 0, len(nrdns)+1)
	elems = append(elems, base)
	for i := len(nrdns) - 1; i >= 0; i-- {
		elems = append(elems, encodeRDN(nrdns[i]))
	}
	return filepath.Join(elems...)
}

// DecodeFilename recovers the normalized RDN encoded in a directory-entry
// filename, stripping the entry suffix first if present.
func DecodeFilename(name string) (rdn string, isEntry bool, err error) {
	if strings.HasSuffix(name, EntrySuffix) {
		rdn, err = decodeRDN(strings.TrimSuffix(name, EntrySuffix))
		return rdn, true, err
	}
	rdn, err = decodeRDN(name)
	return rdn, false, err
}

// ParentDir returns the directory that a subtree directory/entry file pair
// live in — the parent's own subtree directory. Mirrors get_parent_path's
// "find the rightmost path separator" approach, but using filepath so it
// stays correct across a path's worth of already-Join'd separators.
func ParentDir(path string) string {
	return filepath.Dir(path)
}

// ParentEntryPath returns the entry file for the parent of the entry (or
// subtree directory) at path, i.e. ParentDir(path) + the entry suffix. This
// is get_parent_path's exact trick: the same string, suffix swapped.
func ParentEntryPath(path string) string {
	return ParentDir(path) + EntrySuffix
}
