// Package entry defines the in-memory entry representation this backend
// operates on, and the Serializer/Parser contract a caller must supply to
// turn an Entry into bytes on disk and back. The core never implements
// that contract itself — schema, ACL, and wire-format concerns live with
// the caller (see pkg/backend's hook tables); pkg/entry/ldif is provided
// only as a minimal reference codec so this module is runnable standalone.
package entry

import "github.com/example/ldifbackend/pkg/dn"

// Attribute is one named, multi-valued attribute. Values are kept as raw
// bytes; the core never interprets them.
type Attribute struct {
	Name   string
	Values [][]byte
}

// Entry is a directory entry: a DN plus its attributes, in the order a
// Serializer chooses to hand them back.
type Entry struct {
	DN         dn.DN
	Attributes []Attribute
}

// Get returns the values of the named attribute (case-sensitive; callers
// that need case-insensitive attribute lookup should normalize before
// calling, as this core does not carry a schema).
func (e *Entry) Get(name string) [][]byte {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Values
		}
	}
	return nil
}

// Set replaces (or adds) the named attribute's values.
func (e *Entry) Set(name string, values [][]byte) {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			e.Attributes[i].Values = values
			return
		}
	}
	e.Attributes = append(e.Attributes, Attribute{Name: name, Values: values})
}

// Delete removes the named attribute entirely. Reports whether it was
// present.
func (e *Entry) Delete(name string) bool {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of e, for callers (like modify handlers) that
// must mutate a working copy before committing it.
func (e *Entry) Clone() *Entry {
	out := &Entry{DN: e.DN, Attributes: make([]Attribute, len(e.Attributes))}
	for i, a := range e.Attributes {
		vals := make([][]byte, len(a.Values))
		for j, v := range a.Values {
			vals[j] = append([]byte(nil), v...)
		}
		out.Attributes[i] = Attribute{Name: a.Name, Values: vals}
	}
	return out
}

// Serializer renders an entry to bytes for storage. The DN passed to
// Serialize has already been shortened to the entry's bare leaf RDN by the
// caller (pkg/entryfile), matching how the original backend stores only
// the leaf RDN on disk and reconstructs the full DN from the entry's
// position in the tree on read.
type Serializer interface {
	Serialize(e *Entry) ([]byte, error)
}

// Parser reconstructs an entry from stored bytes. The returned Entry's DN
// holds only the leaf RDN; the caller attaches the parent DN via
// dn.BuildChild.
type Parser interface {
	Parse(data []byte) (*Entry, error)
}
