// Package backend implements the operation handlers, concurrency gate,
// and lifecycle of a single directory-service storage backend instance:
// bind, search, add, modify, modrdn, delete, referral checking, and the
// shared "read an entry under lock" helper they're built on.
//
// The backend never implements schema validation, access control,
// password verification, referral rewriting, or entry serialization
// itself — those are supplied by the caller through Hooks, the same
// boundary the teacher's FileSystem interface and this core's ancestor
// draw between storage mechanics and policy.
package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/dnpath"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entryfile"
	"github.com/example/ldifbackend/pkg/ldaperr"
	"github.com/example/ldifbackend/pkg/tree"
)

// Config describes one backend instance: its storage root and the
// suffix DN it serves.
type Config struct {
	Directory string
	Suffix    dn.DN

	// MaxConcurrentOps bounds how many operations may be past the
	// admission gate (holding or waiting for the read/write lock) at once,
	// independent of the lock's own exclusion. Add's schema and access
	// hooks run before the gate. Zero means DefaultConfig's value.
	MaxConcurrentOps int
}

// DefaultConfig returns the configuration new backends should start from,
// matching the teacher's DefaultConfig pattern of a conservative
// concurrency ceiling.
func DefaultConfig() Config {
	return Config{MaxConcurrentOps: 16}
}

// Hooks are the external collaborators a backend instance needs: entry
// (de)serialization, schema and access checks, password verification,
// referral handling, and CSN allocation. Every field is optional except
// Serializer and Parser; a nil check hook means "always allow".
type Hooks struct {
	Serializer entry.Serializer
	Parser     entry.Parser

	// CheckSchema validates a candidate entry before it is written.
	// adding distinguishes add (new entry) from modify (existing entry
	// post-modification), matching entry_schema_check's two call sites.
	// ocChanged reports whether this write touched objectClass, so a host
	// that caches per-entry objectClass flags knows to invalidate them
	// before re-checking, matching apply_modify_to_entry's is_oc handling.
	// Add always passes true: there is no prior cached entry to invalidate.
	CheckSchema func(e *entry.Entry, adding bool, ocChanged bool) error

	// CheckAccess authorizes op ("add", "modify", "modrdn", "delete")
	// against target. Search and Bind do not call it.
	CheckAccess func(ctx context.Context, op string, target *entry.Entry) error

	// CheckPassword verifies credentials against the userPassword-like
	// values of entry, returning nil on success.
	CheckPassword func(e *entry.Entry, credentials []byte) error

	// MatchesFilter is consulted per candidate during search; nil means
	// every entry matches (useful for tools that only need the tree
	// walk, not filtering).
	MatchesFilter func(e *entry.Entry) bool

	IsReferral      func(e *entry.Entry) bool
	RewriteReferral func(e *entry.Entry, scope tree.Scope) []string

	// AllocateCSN, if non-nil, is called once by Add, Modify, and ModRDN
	// just before the entry is written. Its return value is discarded:
	// nothing is stamped onto the entry. Delete does not call it.
	AllocateCSN func() string

	Logger *log.Logger
}

func (h *Hooks) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// Backend is one open storage backend instance. The zero value is not
// usable; construct with Open.
type Backend struct {
	cfg   Config
	hooks Hooks

	rwlock       sync.RWMutex
	sem          chan struct{}
	suffixParent dn.DN
}

// Open validates cfg, ensures the storage root exists, and returns a
// ready-to-use Backend. This is the directory-service analogue of the
// teacher's NewLocalFileSystem/NewNFSServer pair.
func Open(cfg Config, hooks Hooks) (*Backend, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("backend: Config.Directory is required")
	}
	if cfg.Suffix.Empty() {
		return nil, fmt.Errorf("backend: Config.Suffix is required")
	}
	if hooks.Serializer == nil || hooks.Parser == nil {
		return nil, fmt.Errorf("backend: Hooks.Serializer and Hooks.Parser are required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o750); err != nil {
		return nil, fmt.Errorf("backend: create storage root: %w", err)
	}
	if hooks.Logger == nil {
		hooks.Logger = log.Default()
	}
	maxOps := cfg.MaxConcurrentOps
	if maxOps <= 0 {
		maxOps = DefaultConfig().MaxConcurrentOps
	}
	suffixParent, _ := cfg.Suffix.Parent()

	b := &Backend{
		cfg:          cfg,
		hooks:        hooks,
		sem:          make(chan struct{}, maxOps),
		suffixParent: suffixParent,
	}
	return b, nil
}

// Close releases any resources Open acquired. Present for lifecycle
// symmetry and so callers can defer it unconditionally; this backend
// holds nothing that needs releasing beyond the in-memory lock.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ldaperr.New("backend", "", ldaperr.ErrBusy)
	}
}

func (b *Backend) release() {
	<-b.sem
}

// parentOf returns d's parent DN, or this backend's suffix parent if d is
// the suffix itself (which has no on-disk parent entry).
func (b *Backend) parentOf(d dn.DN) dn.DN {
	if d.Equal(b.cfg.Suffix) {
		return b.suffixParent
	}
	parent, ok := d.Parent()
	if !ok {
		return b.suffixParent
	}
	return parent
}

func (b *Backend) entryPath(d dn.DN) string {
	return dnpath.EntryPath(b.cfg.Directory, d.NRDNs)
}

// readEntry loads the entry at targetDN. Callers must already hold at
// least a read lock on the backend.
func (b *Backend) readEntry(targetDN dn.DN) (*entry.Entry, string, error) {
	path := b.entryPath(targetDN)
	e, err := entryfile.Read(path, b.parentOf(targetDN), b.hooks.Parser)
	if err != nil {
		return nil, "", err
	}
	return e, path, nil
}

// GetEntryRW reads the entry at targetDN under the backend's shared lock,
// the handler-level equivalent of get_entry for standalone callers. The
// handlers themselves do not call it; they read under their own lock.
func (b *Backend) GetEntryRW(ctx context.Context, targetDN dn.DN) (*entry.Entry, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()

	e, _, err := b.readEntry(targetDN)
	return e, err
}
