package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entryfile"
	"github.com/example/ldifbackend/pkg/ldaperr"
	"github.com/example/ldifbackend/pkg/tree"
)

// Bind authenticates targetDN against credentials. A missing entry, a
// missing password attribute, and a failed password check are
// distinguished by their error sentinel the way ldif_back_bind
// distinguishes LDAP_INVALID_CREDENTIALS from LDAP_INAPPROPRIATE_AUTH.
func (b *Backend) Bind(ctx context.Context, targetDN dn.DN, credentials []byte) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()

	e, _, err := b.readEntry(targetDN)
	if err != nil {
		return ldaperr.New("bind", targetDN.String(), ldaperr.ErrInvalidCredentials)
	}
	if len(e.Get("userPassword")) == 0 {
		return ldaperr.New("bind", targetDN.String(), ldaperr.ErrInappropriateAuth)
	}
	if b.hooks.CheckPassword != nil {
		if err := b.hooks.CheckPassword(e, credentials); err != nil {
			return ldaperr.New("bind", targetDN.String(), ldaperr.ErrInvalidCredentials)
		}
	}
	return nil
}

// Search walks baseDN under scope and delivers matching entries to sink,
// honoring manageDSAit per tree.Hooks.ManageDSAit.
func (b *Backend) Search(ctx context.Context, baseDN dn.DN, scope tree.Scope, manageDSAit bool, sink tree.Sink) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()

	hooks := tree.Hooks{
		Parser:          b.hooks.Parser,
		MatchesFilter:   b.hooks.MatchesFilter,
		IsReferral:      b.hooks.IsReferral,
		RewriteReferral: b.hooks.RewriteReferral,
		ManageDSAit:     manageDSAit,
	}
	parent := b.parentOf(baseDN)
	err := tree.Enumerate(b.cfg.Directory, baseDN, scope, parent, hooks, sink)
	if err != nil && errors.Is(err, ldaperr.ErrNoSuchObject) {
		if refEntry, refs, found, rerr := b.referralAncestor(baseDN, manageDSAit); rerr == nil && found {
			return sink.SendReference(refEntry, refs)
		}
	}
	return err
}

// Add creates a new leaf entry. The parent's subtree directory is created
// if the parent entry already exists; a missing parent is NoSuchObject,
// matching dn2path/get_parent_path's container-then-leaf stat sequence in
// ldif_back_add.
func (b *Backend) Add(ctx context.Context, e *entry.Entry) error {
	if b.hooks.CheckSchema != nil {
		if err := b.hooks.CheckSchema(e, true, true); err != nil {
			return ldaperr.Newf("add", e.DN.String(), ldaperr.ErrOther, "schema: %v", err)
		}
	}
	if b.hooks.CheckAccess != nil {
		if err := b.hooks.CheckAccess(ctx, "add", e); err != nil {
			return ldaperr.New("add", e.DN.String(), ldaperr.ErrInsufficientAccess)
		}
	}

	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.Lock()
	defer b.rwlock.Unlock()

	if refEntry, refs, found, rerr := b.referralAncestor(e.DN, false); rerr != nil {
		return rerr
	} else if found {
		return b.referralError("add", e.DN, refEntry.DN, refs)
	}

	leafPath := b.entryPath(e.DN)
	parentDN := b.parentOf(e.DN)

	parentEntryExists, err := entryfile.Exists(b.entryPath(parentDN))
	if err != nil {
		return err
	}
	if !parentEntryExists && !parentDN.Equal(b.suffixParent) {
		return ldaperr.New("add", e.DN.String(), ldaperr.ErrNoSuchObject)
	}

	leafExists, err := entryfile.Exists(leafPath)
	if err != nil {
		return err
	}
	if leafExists {
		return ldaperr.New("add", e.DN.String(), ldaperr.ErrAlreadyExists)
	}

	if err := entryfile.MkdirAll(filepath.Dir(leafPath)); err != nil {
		return ldaperr.Newf("add", e.DN.String(), ldaperr.ErrUnwillingToPerform, "create parent folder: %v", err)
	}
	if b.hooks.AllocateCSN != nil {
		b.hooks.AllocateCSN()
	}
	if err := entryfile.Write(leafPath, e, b.hooks.Serializer); err != nil {
		return err
	}
	b.hooks.logf("backend: add %s", e.DN.String())
	return nil
}

// ModKind is a modification operation kind, per spec.md's Add/Delete/
// Replace/Increment/SoftAdd taxonomy (LDAP_MOD_ADD and friends).
type ModKind int

const (
	ModAdd ModKind = iota
	ModDelete
	ModReplace
	ModIncrement
	ModSoftAdd
)

// Mod is one attribute modification within a Modify call.
type Mod struct {
	Kind   ModKind
	Name   string
	Values [][]byte
}

// Modify reads targetDN, applies mods in order, schema-checks the result,
// and writes it back — apply_modify_to_entry's sequencing, generalized
// over whatever value-merge semantics the caller's schema hook wants to
// enforce (this core only orders the mods and dispatches by kind; it does
// not itself know attribute syntax or uniqueness rules).
func (b *Backend) Modify(ctx context.Context, targetDN dn.DN, mods []Mod) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.Lock()
	defer b.rwlock.Unlock()

	e, path, err := b.readEntry(targetDN)
	if err != nil {
		return b.referralOrNoSuchObject("modify", targetDN, err)
	}

	if b.hooks.CheckAccess != nil {
		if err := b.hooks.CheckAccess(ctx, "modify", e); err != nil {
			return ldaperr.New("modify", targetDN.String(), ldaperr.ErrInsufficientAccess)
		}
	}

	ocChanged, err := applyMods(e, mods)
	if err != nil {
		return ldaperr.New("modify", targetDN.String(), err)
	}

	if b.hooks.CheckSchema != nil {
		if err := b.hooks.CheckSchema(e, false, ocChanged); err != nil {
			return ldaperr.Newf("modify", targetDN.String(), ldaperr.ErrOther, "schema: %v", err)
		}
	}
	if b.hooks.AllocateCSN != nil {
		b.hooks.AllocateCSN()
	}
	if err := entryfile.Write(path, e, b.hooks.Serializer); err != nil {
		return err
	}
	b.hooks.logf("backend: modify %s", targetDN.String())
	return nil
}

// applyMods applies mods to e in order and reports whether any of them
// touched objectClass, mirroring apply_modify_to_entry's is_oc tracking.
func applyMods(e *entry.Entry, mods []Mod) (ocChanged bool, err error) {
	for _, m := range mods {
		if strings.EqualFold(m.Name, "objectClass") {
			ocChanged = true
		}
		switch m.Kind {
		case ModAdd, ModSoftAdd:
			existing := e.Get(m.Name)
			if m.Kind == ModSoftAdd && len(existing) > 0 {
				continue
			}
			e.Set(m.Name, append(append([][]byte(nil), existing...), m.Values...))
		case ModDelete:
			if len(m.Values) == 0 {
				e.Delete(m.Name)
				continue
			}
			e.Set(m.Name, subtractValues(e.Get(m.Name), m.Values))
		case ModReplace:
			if len(m.Values) == 0 {
				e.Delete(m.Name)
				continue
			}
			e.Set(m.Name, m.Values)
		case ModIncrement:
			incremented, err := incrementValues(e.Get(m.Name), m.Values)
			if err != nil {
				return ocChanged, err
			}
			e.Set(m.Name, incremented)
		default:
			return ocChanged, errors.New("backend: unknown mod kind")
		}
	}
	return ocChanged, nil
}

func subtractValues(existing, remove [][]byte) [][]byte {
	var out [][]byte
	for _, v := range existing {
		drop := false
		for _, r := range remove {
			if string(v) == string(r) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}

func incrementValues(existing, deltas [][]byte) ([][]byte, error) {
	if len(existing) != 1 || len(deltas) != 1 {
		return nil, errors.New("backend: increment requires exactly one existing and one delta value")
	}
	cur, err := parseInt(existing[0])
	if err != nil {
		return nil, err
	}
	delta, err := parseInt(deltas[0])
	if err != nil {
		return nil, err
	}
	return [][]byte{[]byte(formatInt(cur + delta))}, nil
}

func parseInt(b []byte) (int64, error) {
	neg := false
	i := 0
	if len(b) > 0 && (b[0] == '-' || b[0] == '+') {
		neg = b[0] == '-'
		i = 1
	}
	if i == len(b) {
		return 0, errors.New("backend: not an integer")
	}
	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, errors.New("backend: not an integer")
		}
		n = n*10 + int64(b[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func formatInt(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

// ModRDN renames the leaf RDN of targetDN (optionally moving it under
// newSuperior) and relocates its entry file and subtree directory.
//
// This follows the Open Question decision in DESIGN.md: unlike
// ldif_move_entry, which overwrites its result code to success once the
// new entry file is written regardless of whether unlinking the old file
// or renaming its subtree directory succeeded, ModRDN reports the first
// error from either step instead of swallowing it. The new entry file is
// left in place either way (the rename already committed the identity
// change); callers that need full rollback on a failed rename must detect
// the error and retry or compensate themselves.
func (b *Backend) ModRDN(ctx context.Context, targetDN dn.DN, newRDNPresentation, newRDNNormalized string, deleteOldRDN bool, newSuperior *dn.DN) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.Lock()
	defer b.rwlock.Unlock()

	e, oldPath, err := b.readEntry(targetDN)
	if err != nil {
		return b.referralOrNoSuchObject("modrdn", targetDN, err)
	}

	newParent := b.parentOf(targetDN)
	if newSuperior != nil {
		exists, err := entryfile.Exists(b.entryPath(*newSuperior))
		if err != nil {
			return err
		}
		if !exists {
			return ldaperr.New("modrdn", targetDN.String(), ldaperr.ErrNoSuchObject)
		}
		newParent = *newSuperior
	}

	if b.hooks.CheckAccess != nil {
		if err := b.hooks.CheckAccess(ctx, "modrdn", e); err != nil {
			return ldaperr.New("modrdn", targetDN.String(), ldaperr.ErrInsufficientAccess)
		}
	}

	newDN := dn.BuildChild(newRDNPresentation, newRDNNormalized, newParent)
	newPath := b.entryPath(newDN)

	newExists, err := entryfile.Exists(newPath)
	if err != nil {
		return err
	}
	if newExists {
		return ldaperr.New("modrdn", targetDN.String(), ldaperr.ErrAlreadyExists)
	}

	e.DN = newDN
	if b.hooks.AllocateCSN != nil {
		b.hooks.AllocateCSN()
	}
	if err := entryfile.MkdirAll(filepath.Dir(newPath)); err != nil {
		return ldaperr.Newf("modrdn", targetDN.String(), ldaperr.ErrUnwillingToPerform, "create parent folder: %v", err)
	}
	if err := entryfile.Write(newPath, e, b.hooks.Serializer); err != nil {
		return err
	}

	if deleteOldRDN {
		if err := entryfile.Remove(oldPath); err != nil {
			return ldaperr.Newf("modrdn", targetDN.String(), ldaperr.ErrOther, "remove old entry file: %v", err)
		}
	}
	oldDir := subtreeDirFor(oldPath)
	newDir := subtreeDirFor(newPath)
	if err := renameDir(oldDir, newDir); err != nil {
		return ldaperr.Newf("modrdn", targetDN.String(), ldaperr.ErrOther, "relocate subtree directory: %v", err)
	}

	b.hooks.logf("backend: modrdn %s -> %s", targetDN.String(), newDN.String())
	return nil
}

func subtreeDirFor(entryPath string) string {
	const suffix = ".ldif"
	if len(entryPath) >= len(suffix) && entryPath[len(entryPath)-len(suffix):] == suffix {
		return entryPath[:len(entryPath)-len(suffix)]
	}
	return entryPath
}

// renameDir moves a subtree directory to its new location. A leaf entry
// has no subtree directory yet, so a missing source is not an error.
func renameDir(oldDir, newDir string) error {
	if err := os.Rename(oldDir, newDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// Delete removes a leaf entry. The subtree directory is removed first
// (rmdir fails loudly if it's non-empty) before the entry file itself is
// unlinked, the same ordering ldif_back_delete uses so a failed delete on
// a non-leaf never leaves a half-deleted entry.
func (b *Backend) Delete(ctx context.Context, targetDN dn.DN) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.rwlock.Lock()
	defer b.rwlock.Unlock()

	if b.hooks.CheckAccess != nil {
		e, _, err := b.readEntry(targetDN)
		if err != nil {
			return b.referralOrNoSuchObject("delete", targetDN, err)
		}
		if err := b.hooks.CheckAccess(ctx, "delete", e); err != nil {
			return ldaperr.New("delete", targetDN.String(), ldaperr.ErrInsufficientAccess)
		}
	}

	path := b.entryPath(targetDN)
	dir := subtreeDirFor(path)
	if err := entryfile.RemoveEmptyDir(dir); err != nil {
		return err
	}
	if err := entryfile.Remove(path); err != nil {
		return b.referralOrNoSuchObject("delete", targetDN, err)
	}
	b.hooks.logf("backend: delete %s", targetDN.String())
	return nil
}

// CheckReferrals walks up from targetDN's parent to the first ancestor
// that actually has an entry on disk, and reports whether that ancestor
// is a referral. Returns found=false both when no ancestor exists at all
// and when the first one found is an ordinary entry. Exported for
// standalone use (e.g. a front end probing ahead of an operation); the
// handlers below call referralAncestor directly since they already hold
// the backend's lock.
func (b *Backend) CheckReferrals(ctx context.Context, targetDN dn.DN, manageDSAit bool) (refDN dn.DN, refs []string, found bool, err error) {
	if err := b.acquire(ctx); err != nil {
		return dn.DN{}, nil, false, err
	}
	defer b.release()
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()

	refEntry, refs, found, err := b.referralAncestor(targetDN, manageDSAit)
	if err != nil || !found {
		return dn.DN{}, nil, false, err
	}
	return refEntry.DN, refs, true, nil
}

// referralAncestor is CheckReferrals' implementation, callable by handlers
// that already hold the backend's lock. It is the generic pre-operation
// check ldif_back_referrals runs against every operation's target DN:
// walk up from targetDN's parent and stop at the first ancestor that
// actually exists (not the first referral — ldif_back_referrals' own
// get_entry loop exits as soon as an entry is found, referral or not).
// found is true only if that first existing ancestor is itself a referral.
func (b *Backend) referralAncestor(targetDN dn.DN, manageDSAit bool) (refEntry *entry.Entry, refs []string, found bool, err error) {
	if manageDSAit || b.hooks.IsReferral == nil || targetDN.Empty() {
		return nil, nil, false, nil
	}
	cur := targetDN
	for {
		parent, ok := cur.Parent()
		if !ok || len(parent.NRDNs) < len(b.cfg.Suffix.NRDNs) {
			break
		}
		cur = parent
		e, _, rerr := b.readEntry(cur)
		if rerr != nil {
			if errors.Is(rerr, ldaperr.ErrNoSuchObject) {
				continue
			}
			return nil, nil, false, rerr
		}
		if !b.hooks.IsReferral(e) {
			return nil, nil, false, nil
		}
		var r []string
		if b.hooks.RewriteReferral != nil {
			r = b.hooks.RewriteReferral(e, tree.ScopeBase)
		}
		return e, r, true, nil
	}
	return nil, nil, false, nil
}

// referralError builds the result a handler returns once referralAncestor
// has found a shadowing referral above targetDN.
func (b *Backend) referralError(op string, targetDN, refDN dn.DN, refs []string) error {
	return ldaperr.Newf(op, targetDN.String(), ldaperr.ErrReferral, "matched %s, refs=%v", refDN.String(), refs)
}

// referralOrNoSuchObject turns a NoSuchObject error from reading targetDN
// into a referral result if an ancestor shadows it, and passes any other
// error (including a NoSuchObject with no shadowing ancestor) through
// unchanged.
func (b *Backend) referralOrNoSuchObject(op string, targetDN dn.DN, err error) error {
	if !errors.Is(err, ldaperr.ErrNoSuchObject) {
		return err
	}
	if refEntry, refs, found, rerr := b.referralAncestor(targetDN, false); rerr == nil && found {
		return b.referralError(op, targetDN, refEntry.DN, refs)
	}
	return err
}
