package dnpath

import (
	"path/filepath"
	"testing"
)

func TestEntryPathBasic(t *testing.T) {
	got := EntryPath("/var/lib/ldif", []string{"dc=example", "dc=com"})
	want := filepath.Join("/var/lib/ldif", "dc=com", "dc=example") + ".ldif"
	if got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
}

func TestEntryPathEscapesUnsafeChars(t *testing.T) {
	got := EntryPath("/base", []string{"cn=a/b:c"})
	want := filepath.Join("/base", `cn=a\2Fb\3Ac`) + ".ldif"
	if got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
}

func TestEntryPathEscapesDotKeepsBackslash(t *testing.T) {
	got := EntryPath("/base", []string{`cn=a.b\c`})
	want := filepath.Join("/base", `cn=a\2Eb\c`) + ".ldif"
	if got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
}

func TestSubtreeDirMatchesEntryStem(t *testing.T) {
	nrdns := []string{"ou=people", "dc=example", "dc=com"}
	entry := EntryPath("/base", nrdns)
	dir := SubtreeDir("/base", nrdns)
	if entry != dir+EntrySuffix {
		t.Errorf("entry=%q dir=%q: entry should be dir+suffix", entry, dir)
	}
}

func TestDecodeFilenameRoundTrip(t *testing.T) {
	rdn := `cn=a/b:c.d\e`
	encoded := encodeRDN(rdn)
	decoded, isEntry, err := DecodeFilename(encoded + EntrySuffix)
	if err != nil {
		t.Fatal(err)
	}
	if !isEntry {
		t.Errorf("expected isEntry=true")
	}
	if decoded != rdn {
		t.Errorf("decoded = %q, want %q", decoded, rdn)
	}
}

func TestDecodeFilenameNonEntry(t *testing.T) {
	rdn := "ou=people"
	_, isEntry, err := DecodeFilename(encodeRDN(rdn))
	if err != nil {
		t.Fatal(err)
	}
	if isEntry {
		t.Errorf("expected isEntry=false for a bare subtree directory name")
	}
}

func TestParentEntryPath(t *testing.T) {
	nrdns := []string{"ou=people", "dc=example", "dc=com"}
	child := EntryPath("/base", nrdns)
	gotParent := ParentEntryPath(child)
	wantParent := EntryPath("/base", nrdns[1:])
	if gotParent != wantParent {
		t.Errorf("ParentEntryPath = %q, want %q", gotParent, wantParent)
	}
}
