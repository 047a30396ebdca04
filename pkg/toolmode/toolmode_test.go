package toolmode

import (
	"testing"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entry/ldif"
	"github.com/example/ldifbackend/pkg/ldaperr"
)

func TestOpenRequiresDirectory(t *testing.T) {
	if _, err := Open(Config{}, ldif.Codec{}, ldif.Codec{}); err == nil {
		t.Fatal("expected error for empty Directory")
	}
}

func TestPutThenFirstNextGet(t *testing.T) {
	dir := t.TempDir()
	suffix := dn.New("dc=example")
	sess, err := Open(Config{Directory: dir, Suffix: suffix}, ldif.Codec{}, ldif.Codec{})
	if err != nil {
		t.Fatal(err)
	}

	root := &entry.Entry{DN: suffix}
	if err := sess.Put(root); err != nil {
		t.Fatalf("put suffix: %v", err)
	}
	people := &entry.Entry{DN: dn.BuildChild("ou=People", "ou=people", suffix)}
	if err := sess.Put(people); err != nil {
		t.Fatalf("put ou=People: %v", err)
	}

	id, e, err := sess.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if id != 1 || e == nil {
		t.Fatalf("first: id=%d e=%v", id, e)
	}

	id2, e2, err := sess.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id2 != 2 || e2 == nil {
		t.Fatalf("next: id=%d e=%v", id2, e2)
	}

	id3, e3, err := sess.Next()
	if err != nil {
		t.Fatalf("next (exhausted): %v", err)
	}
	if id3 != 0 || e3 != nil {
		t.Fatalf("expected exhausted walk, got id=%d e=%v", id3, e3)
	}

	got := sess.Get(1)
	if got == nil {
		t.Fatal("Get(1) returned nil")
	}
	if again := sess.Get(1); again != nil {
		t.Fatal("second Get(1) should return nil (slot already transferred)")
	}
}

func TestPutDuplicateIsAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	suffix := dn.New("dc=example")
	sess, err := Open(Config{Directory: dir, Suffix: suffix}, ldif.Codec{}, ldif.Codec{})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Put(&entry.Entry{DN: suffix}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Put(&entry.Entry{DN: suffix}); !ldaperr.Is(err, ldaperr.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPutMissingParentIsNoSuchObject(t *testing.T) {
	dir := t.TempDir()
	suffix := dn.New("dc=example")
	sess, err := Open(Config{Directory: dir, Suffix: suffix}, ldif.Codec{}, ldif.Codec{})
	if err != nil {
		t.Fatal(err)
	}
	orphan := &entry.Entry{DN: dn.BuildChild("cn=Orphan", "cn=orphan", dn.BuildChild("ou=People", "ou=people", suffix))}
	if err := sess.Put(orphan); !ldaperr.Is(err, ldaperr.ErrNoSuchObject) {
		t.Errorf("expected ErrNoSuchObject, got %v", err)
	}
}
