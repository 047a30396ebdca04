// Package dn implements the distinguished-name model: parsing a DN into
// ordered RDN components, normalizing it for use as a path-derivation key,
// and recognizing the "{N}" ordered-sibling convention.
package dn

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// ErrMalformed is returned by Parse for a DN with an unterminated escape or
// an empty RDN component.
var ErrMalformed = errors.New("dn: malformed distinguished name")

var folder = cases.Fold()

// DN is a distinguished name: an ordered list of RDNs, leaf first, in both
// presentation (original case/whitespace) and normalized form. The two
// slices always have the same length and describe the same components.
type DN struct {
	RDNs  []string // presentation form, leaf-to-root
	NRDNs []string // normalized form, leaf-to-root
}

// Parse splits a presentation-form DN string into its RDN components and
// normalizes each one. Commas separate RDNs except when escaped with a
// backslash; this is sufficient for the suffix/RDN shapes this backend
// cares about (it does not attempt full RFC 4514 multi-valued-RDN support).
func Parse(raw string) (DN, error) {
	rdns, err := splitRDNs(raw)
	if err != nil {
		return DN{}, err
	}
	nrdns := make([]string, len(rdns))
	for i, r := range rdns {
		nrdns[i] = Normalize(r)
	}
	return DN{RDNs: rdns, NRDNs: nrdns}, nil
}

// New builds a DN directly from already-split, already-ordered RDNs,
// normalizing each. Used when the caller already has RDN components (e.g.
// reconstructing a full DN from a stored leaf RDN plus a parent DN).
func New(rdns ...string) DN {
	nrdns := make([]string, len(rdns))
	for i, r := range rdns {
		nrdns[i] = Normalize(r)
	}
	return DN{RDNs: append([]string(nil), rdns...), NRDNs: nrdns}
}

// splitRDNs scans raw for unescaped ',' or ';' separators.
func splitRDNs(raw string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			cur.WriteByte(c)
			escaped = true
		case c == ',' || c == ';':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		return nil, ErrMalformed
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	for _, p := range parts {
		if p == "" {
			return nil, ErrMalformed
		}
	}
	return parts, nil
}

// Normalize case-folds an RDN's attribute value and collapses internal
// whitespace, per spec.md §3's "case-folded, whitespace-canonicalized" DN
// normalization. The "{N}" ordinal prefix, if present, is preserved as-is
// since it participates in sibling ordering, not identity comparison.
func Normalize(rdn string) string {
	prefix, rest := splitOrdinalPrefix(rdn)
	rest = collapseSpace(rest)
	rest = folder.String(rest)
	return prefix + rest
}

func collapseSpace(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Ordinal reports the "{N}" ordering prefix of an RDN, if present. N may be
// negative (e.g. "{-1}frontend", a real OpenLDAP convention for a
// database-config entry that sorts before everything else).
func Ordinal(rdn string) (n int, ok bool) {
	prefix, _ := splitOrdinalPrefix(rdn)
	if prefix == "" {
		return 0, false
	}
	body := prefix[1 : len(prefix)-1]
	neg := false
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}
	if body == "" {
		return 0, false
	}
	val := 0
	for _, c := range body {
		if c < '0' || c > '9' {
			return 0, false
		}
		val = val*10 + int(c-'0')
	}
	if neg {
		val = -val
	}
	return val, true
}

// splitOrdinalPrefix returns ("{N}", rest) if rdn begins with a brace-
// enclosed optionally-signed decimal integer, else ("", rdn).
func splitOrdinalPrefix(rdn string) (prefix, rest string) {
	if len(rdn) == 0 || rdn[0] != '{' {
		return "", rdn
	}
	i := 1
	if i < len(rdn) && rdn[i] == '-' {
		i++
	}
	start := i
	for i < len(rdn) && rdn[i] >= '0' && rdn[i] <= '9' {
		i++
	}
	if i == start || i >= len(rdn) || rdn[i] != '}' {
		return "", rdn
	}
	return rdn[:i+1], rdn[i+1:]
}

// String renders the presentation form.
func (d DN) String() string {
	return strings.Join(d.RDNs, ",")
}

// NormalizedString renders the normalized form, the unique key used for
// path derivation and equality.
func (d DN) NormalizedString() string {
	return strings.Join(d.NRDNs, ",")
}

// Empty reports whether d has no RDN components (the root/empty DN).
func (d DN) Empty() bool {
	return len(d.NRDNs) == 0
}

// Equal compares normalized forms.
func (d DN) Equal(o DN) bool {
	return d.NormalizedString() == o.NormalizedString()
}

// HasSuffix reports whether suffix's normalized RDNs are a trailing
// (root-ward) subsequence of d's.
func (d DN) HasSuffix(suffix DN) bool {
	if len(suffix.NRDNs) > len(d.NRDNs) {
		return false
	}
	off := len(d.NRDNs) - len(suffix.NRDNs)
	for i, r := range suffix.NRDNs {
		if d.NRDNs[off+i] != r {
			return false
		}
	}
	return true
}

// Parent returns d with its leaf RDN removed, and false if d has no parent
// (d is the empty DN).
func (d DN) Parent() (DN, bool) {
	if d.Empty() {
		return DN{}, false
	}
	return DN{RDNs: d.RDNs[1:], NRDNs: d.NRDNs[1:]}, true
}

// Leaf returns d's leaf RDN in presentation and normalized form.
func (d DN) Leaf() (presentation, normalized string) {
	if d.Empty() {
		return "", ""
	}
	return d.RDNs[0], d.NRDNs[0]
}

// WithNewLeaf returns a copy of d with its leaf RDN replaced.
func (d DN) WithNewLeaf(presentation, normalized string) DN {
	if d.Empty() {
		return New(presentation)
	}
	rdns := append([]string{presentation}, d.RDNs[1:]...)
	nrdns := append([]string{normalized}, d.NRDNs[1:]...)
	return DN{RDNs: rdns, NRDNs: nrdns}
}

// BuildChild constructs the full DN for an entry given only its leaf RDN
// (as read back out of an entry file, per invariant 4) and its parent's
// DN, in both forms. This is the sole place a full DN is reconstructed
// from a stored leaf RDN; see pkg/entryfile.Read.
func BuildChild(leafRDN, leafNRDN string, parent DN) DN {
	rdns := append([]string{leafRDN}, parent.RDNs...)
	nrdns := append([]string{leafNRDN}, parent.NRDNs...)
	return DN{RDNs: rdns, NRDNs: nrdns}
}

// StripSuffix returns the RDNs of d that lie strictly above suffix
// (leaf-to-root, excluding the suffix's own components), or nil if d
// equals suffix.
func (d DN) StripSuffix(suffix DN) []string {
	if len(d.NRDNs) <= len(suffix.NRDNs) {
		return nil
	}
	return d.NRDNs[:len(d.NRDNs)-len(suffix.NRDNs)]
}
