package entryfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entry/ldif"
	"github.com/example/ldifbackend/pkg/ldaperr"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cn=Alice.ldif")
	parent := dn.New("dc=example", "dc=com")

	e := &entry.Entry{DN: dn.BuildChild("cn=Alice", "cn=alice", parent)}
	e.Set("cn", [][]byte{[]byte("Alice")})

	var codec ldif.Codec
	if err := Write(path, e, codec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if full := e.DN.String(); full != "cn=Alice,dc=example,dc=com" {
		t.Fatalf("Write should restore full DN, got %q", full)
	}

	got, err := Read(path, parent, codec)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.DN.String() != "cn=Alice,dc=example,dc=com" {
		t.Errorf("Read DN = %q", got.DN.String())
	}
	if vals := got.Get("cn"); len(vals) != 1 || string(vals[0]) != "Alice" {
		t.Errorf("cn = %v", vals)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cn=Bob.ldif")
	e := &entry.Entry{DN: dn.New("cn=Bob")}
	var codec ldif.Codec
	if err := Write(path, e, codec); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "cn=Bob.ldif" {
		t.Errorf("directory contents = %v, want exactly the final file", entries)
	}
}

func TestReadMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.ldif")
	var codec ldif.Codec
	_, err := Read(path, dn.New(), codec)
	if !errors.Is(err, ldaperr.ErrNoSuchObject) {
		t.Errorf("expected ErrNoSuchObject, got %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cn=Carl.ldif")
	if ok, err := Exists(path); err != nil || ok {
		t.Fatalf("Exists before write: ok=%v err=%v", ok, err)
	}
	e := &entry.Entry{DN: dn.New("cn=Carl")}
	var codec ldif.Codec
	if err := Write(path, e, codec); err != nil {
		t.Fatal(err)
	}
	if ok, err := Exists(path); err != nil || !ok {
		t.Fatalf("Exists after write: ok=%v err=%v", ok, err)
	}
}

func TestReadAtMostSizeDetectsGrowingFileAsOther(t *testing.T) {
	// size+1 bytes available with no EOF: the file grew after stat.
	r := bytes.NewReader([]byte("0123456789"))
	_, err := readAtMostSize(r, 9, "grown.ldif")
	if !errors.Is(err, ldaperr.ErrOther) {
		t.Fatalf("expected ErrOther, got %v", err)
	}
}

func TestReadAtMostSizeNormalShortRead(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))
	got, err := readAtMostSize(r, 10, "stable.ldif")
	if err != nil {
		t.Fatalf("readAtMostSize: %v", err)
	}
	if string(got) != "0123456789" {
		t.Errorf("got %q", got)
	}
}

func TestRemoveMissingIsNoSuchObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cn=Ghost.ldif")
	if err := Remove(path); !errors.Is(err, ldaperr.ErrNoSuchObject) {
		t.Errorf("expected ErrNoSuchObject, got %v", err)
	}
}

func TestRemoveEmptyDirRejectsNonEmpty(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "ou=people")
	if err := MkdirAll(sub); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "child.ldif"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := RemoveEmptyDir(sub)
	if !errors.Is(err, ldaperr.ErrNotAllowedOnNonLeaf) {
		t.Errorf("expected ErrNotAllowedOnNonLeaf, got %v", err)
	}
}

func TestRemoveEmptyDirSucceeds(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "ou=people")
	if err := MkdirAll(sub); err != nil {
		t.Fatal(err)
	}
	if err := RemoveEmptyDir(sub); err != nil {
		t.Fatalf("RemoveEmptyDir: %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Errorf("expected directory to be gone, stat err = %v", err)
	}
}
