// Package tree implements the recursive, ordered, scoped enumeration of
// the on-disk entry tree that backs search: given a base DN and a scope,
// walk entry files and their companion subtree directories in sibling
// order, delivering each candidate entry to a result sink.
package tree

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/dnpath"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entryfile"
	"github.com/example/ldifbackend/pkg/ldaperr"
)

// Scope is a search scope, rewritten as enumeration descends: ONELEVEL
// becomes BASE at the first level down, SUBORDINATE becomes SUBTREE.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
	ScopeSubordinate
)

// Hooks are the caller-supplied collaborators enumeration needs but does
// not implement itself (schema/ACL/referral-rewrite live with the caller,
// per this backend's external-hooks boundary).
type Hooks struct {
	Parser entry.Parser

	// MatchesFilter reports whether a candidate entry should be sent to
	// the sink. A nil MatchesFilter matches every entry (used by tool
	// mode, which has no filter to apply).
	MatchesFilter func(e *entry.Entry) bool

	// IsReferral and RewriteReferral implement referral shadowing. A nil
	// IsReferral disables referral handling entirely (every candidate is
	// treated as an ordinary entry).
	IsReferral      func(e *entry.Entry) bool
	RewriteReferral func(e *entry.Entry, scope Scope) []string

	// ManageDSAit, when true, disables referral shadowing for this
	// enumeration (the caller wants the referral entry itself returned).
	ManageDSAit bool
}

// Sink receives enumeration results. Search uses a streaming sink that
// sends each entry as it's found; tool mode uses Buffer, which collects
// them instead.
type Sink interface {
	SendEntry(e *entry.Entry) error
	SendReference(e *entry.Entry, refs []string) error
}

// Enumerate walks the tree rooted at baseDN (already known to exist, or
// empty for the synthetic root) under root, honoring scope, and delivers
// results to sink. parent is baseDN's own parent DN, used to reconstruct
// baseDN's full DN, and its children's full DNs if baseDN is synthetic
// (the empty DN, which has no entry file).
func Enumerate(root string, baseDN dn.DN, scope Scope, parent dn.DN, hooks Hooks, sink Sink) error {
	isSyntheticBase := baseDN.Empty()
	path := dnpath.EntryPath(root, baseDN.NRDNs)
	return enumerate(path, isSyntheticBase, scope, parent, hooks, sink)
}

func enumerate(path string, isSyntheticBase bool, scope Scope, parent dn.DN, hooks Hooks, sink Sink) error {
	var self *entry.Entry

	if !isSyntheticBase {
		e, err := entryfile.Read(path, parent, hooks.Parser)
		if err != nil {
			return ldaperr.New("tree.Enumerate", path, ldaperr.ErrNoSuchObject)
		}
		self = e

		if scope == ScopeBase || scope == ScopeSubtree {
			if err := deliver(self, scope, hooks, sink); err != nil {
				return err
			}
		}
	}

	if scope == ScopeBase {
		return nil
	}

	dirPath := strings.TrimSuffix(path, dnpath.EntrySuffix)
	children, err := readSortedChildren(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ldaperr.New("tree.Enumerate", dirPath, ldaperr.ErrBusy)
	}

	childScope := scope
	switch childScope {
	case ScopeOneLevel:
		childScope = ScopeBase
	case ScopeSubordinate:
		childScope = ScopeSubtree
	}

	childParent := parent
	if self != nil {
		childParent = self.DN
	}

	for _, name := range children {
		childPath := filepath.Join(dirPath, name)
		if err := enumerate(childPath, false, childScope, childParent, hooks, sink); err != nil {
			return err
		}
	}
	return nil
}

// deliver applies referral shadowing then the filter, sending at most one
// result to sink.
func deliver(e *entry.Entry, scope Scope, hooks Hooks, sink Sink) error {
	if !hooks.ManageDSAit && scope != ScopeBase && hooks.IsReferral != nil && hooks.IsReferral(e) {
		var refs []string
		if hooks.RewriteReferral != nil {
			refs = hooks.RewriteReferral(e, scope)
		}
		return sink.SendReference(e, refs)
	}
	if hooks.MatchesFilter == nil || hooks.MatchesFilter(e) {
		return sink.SendEntry(e)
	}
	return nil
}

type childEntry struct {
	name   string
	key    string
	num    int
	hasNum bool
}

// readSortedChildren lists dirPath for entry files and returns their
// filenames in sibling order: entries whose filename contains a "{N}"
// group (the first '{' anywhere in the name) sort by N among those sharing
// the same text up to and including that brace; all others sort
// lexicographically by their full encoded filename.
func readSortedChildren(dirPath string) ([]string, error) {
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	items := make([]childEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if len(name) <= len(dnpath.EntrySuffix) || !strings.HasSuffix(name, dnpath.EntrySuffix) {
			continue
		}
		items = append(items, sortKeyOf(name))
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.key != b.key {
			return a.key < b.key
		}
		if a.hasNum && b.hasNum {
			return a.num < b.num
		}
		return false
	})
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.name
	}
	return names, nil
}

func sortKeyOf(name string) childEntry {
	lb := strings.IndexByte(name, '{')
	if lb < 0 {
		return childEntry{name: name, key: name}
	}
	rest := name[lb+1:]
	rb := strings.IndexByte(rest, '}')
	if rb < 0 {
		return childEntry{name: name, key: name}
	}
	numStr := rest[:rb]
	num, ok := parseSignedInt(numStr)
	if !ok {
		return childEntry{name: name, key: name}
	}
	return childEntry{name: name, key: name[:lb+1], num: num, hasNum: true}
}

func parseSignedInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// Buffer is a Sink that collects results instead of streaming them, used
// by tool mode (which has no live connection to send results over). It
// starts with an initial capacity of 500 entries and grows by Go's own
// append growth beyond that.
type Buffer struct {
	Entries []*entry.Entry
}

// NewBuffer returns a Buffer pre-sized the way tool mode starts its
// entry buffer.
func NewBuffer() *Buffer {
	return &Buffer{Entries: make([]*entry.Entry, 0, initialBufferSize)}
}

const initialBufferSize = 500

func (b *Buffer) SendEntry(e *entry.Entry) error {
	b.Entries = append(b.Entries, e)
	return nil
}

func (b *Buffer) SendReference(e *entry.Entry, refs []string) error {
	// Tool mode has no referral concept; surface the referral entry like
	// any other so batch import/export tools see it.
	b.Entries = append(b.Entries, e)
	return nil
}
