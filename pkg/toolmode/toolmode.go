// Package toolmode implements the batch open/put/first/next/get path used
// by offline import and export, bypassing the backend's reader-writer lock
// and result-sink abstraction entirely: a single process, not a pool of
// request handlers, drives these calls, so there is nothing to serialize
// against.
package toolmode

import (
	"path/filepath"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/dnpath"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entryfile"
	"github.com/example/ldifbackend/pkg/ldaperr"
	"github.com/example/ldifbackend/pkg/tree"
)

// Config describes the storage root and suffix a Session walks, the same
// two fields backend.Config carries for online operation.
type Config struct {
	Directory string
	Suffix    dn.DN
}

// Session is one open tool-mode run: a sequence of Put calls, or a
// first/next/get walk, but never both in the same session (the original
// ldif backend never mixes import and export within one bi_tool_entry_open
// either).
type Session struct {
	cfg        Config
	serializer entry.Serializer
	parser     entry.Parser

	buf     *tree.Buffer
	current int // 1-based index of the last entry returned by Next, 0 before First
}

// Open validates cfg the way ldif_back_db_open does (a non-empty base
// path) and returns a ready-to-use Session. serializer is required for Put;
// parser is required for First/Next/Get. A session only doing one of the
// two may pass nil for the other.
func Open(cfg Config, serializer entry.Serializer, parser entry.Parser) (*Session, error) {
	if cfg.Directory == "" {
		return nil, ldaperr.New("toolmode.Open", "", ldaperr.ErrUnwillingToPerform)
	}
	return &Session{cfg: cfg, serializer: serializer, parser: parser}, nil
}

// Close releases the session's buffer. Present for lifecycle symmetry with
// ldif_tool_entry_close freeing li_tool_cookie.entries; there is nothing
// else to release.
func (s *Session) Close() error {
	s.buf = nil
	s.current = 0
	return nil
}

// Put writes e directly to its path, using the same path-and-file logic as
// backend.Add but skipping schema and ACL checks entirely — those are the
// importer's job, not tool mode's, per ldif_tool_entry_put running with a
// zero-value Operation.
func (s *Session) Put(e *entry.Entry) error {
	leafPath := s.entryPath(e.DN)
	parentDN, _ := e.DN.Parent()

	parentExists, err := entryfile.Exists(s.entryPath(parentDN))
	if err != nil {
		return err
	}
	if !parentExists && !e.DN.Equal(s.cfg.Suffix) {
		return ldaperr.New("toolmode.Put", e.DN.String(), ldaperr.ErrNoSuchObject)
	}

	leafExists, err := entryfile.Exists(leafPath)
	if err != nil {
		return err
	}
	if leafExists {
		return ldaperr.New("toolmode.Put", e.DN.String(), ldaperr.ErrAlreadyExists)
	}

	if err := entryfile.MkdirAll(filepath.Dir(leafPath)); err != nil {
		return ldaperr.Newf("toolmode.Put", e.DN.String(), ldaperr.ErrUnwillingToPerform, "create parent folder: %v", err)
	}
	return entryfile.Write(leafPath, e, s.serializer)
}

func (s *Session) entryPath(d dn.DN) string {
	return dnpath.EntryPath(s.cfg.Directory, d.NRDNs)
}

// First loads the session's buffer, if it hasn't been loaded yet, with a
// single subtree enumeration rooted at the configured suffix, then returns
// the first entry the same way Next does. A second First call on the same
// session does not re-walk the tree, matching ldif_tool_entry_first's
// "entries == NULL" guard.
func (s *Session) First() (id int, e *entry.Entry, err error) {
	if s.buf == nil {
		buf := tree.NewBuffer()
		suffixParent, _ := s.cfg.Suffix.Parent()
		err := tree.Enumerate(s.cfg.Directory, s.cfg.Suffix, tree.ScopeSubtree, suffixParent, tree.Hooks{Parser: s.parser}, buf)
		if err != nil {
			return 0, nil, err
		}
		s.buf = buf
		s.current = 0
	}
	return s.Next()
}

// Next advances the walk by one entry, returning id == 0 once the buffer
// is exhausted (the NOID case of ldif_tool_entry_next).
func (s *Session) Next() (id int, e *entry.Entry, err error) {
	if s.buf == nil || s.current >= len(s.buf.Entries) {
		return 0, nil, nil
	}
	s.current++
	return s.current, s.buf.Entries[s.current-1], nil
}

// Get returns the entry at id (1-based, as handed out by First/Next) and
// removes it from the buffer, transferring ownership to the caller: a
// second Get of the same id returns nil, matching the original nulling the
// slot after handing the pointer out.
func (s *Session) Get(id int) *entry.Entry {
	if s.buf == nil || id < 1 || id > len(s.buf.Entries) {
		return nil
	}
	e := s.buf.Entries[id-1]
	s.buf.Entries[id-1] = nil
	return e
}
