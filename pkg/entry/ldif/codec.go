// Package ldif is a minimal reference implementation of entry.Serializer
// and entry.Parser, in the traditional "attr: value" LDIF line format.
// It exists so pkg/backend is exercisable standalone; a production caller
// is expected to supply its own codec (see entry.Serializer/Parser) backed
// by whatever schema and attribute-syntax checking it needs, matching how
// the original backend leaves entry2str/str2entry to its caller.
package ldif

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
)

// Codec implements entry.Serializer and entry.Parser.
type Codec struct{}

var _ entry.Serializer = Codec{}
var _ entry.Parser = Codec{}

// Serialize renders e as LDIF lines: "dn: <leaf rdn>" followed by one
// "attr: value" (or "attr:: <base64>" for values that aren't safe as
// plain text) per attribute value, in attribute order.
func (Codec) Serialize(e *entry.Entry) ([]byte, error) {
	var buf bytes.Buffer
	leaf, _ := e.DN.Leaf()
	writeLine(&buf, "dn", []byte(leaf))
	for _, attr := range e.Attributes {
		for _, v := range attr.Values {
			writeLine(&buf, attr.Name, v)
		}
	}
	return buf.Bytes(), nil
}

func writeLine(buf *bytes.Buffer, name string, value []byte) {
	if safeAsText(value) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(value)
		buf.WriteByte('\n')
		return
	}
	buf.WriteString(name)
	buf.WriteString(":: ")
	buf.WriteString(base64.StdEncoding.EncodeToString(value))
	buf.WriteByte('\n')
}

// safeAsText reports whether value can be written as plain LDIF text: no
// NUL, CR or LF bytes, no leading space, colon or '<', valid UTF-8.
func safeAsText(value []byte) bool {
	if len(value) == 0 {
		return true
	}
	if value[0] == ' ' || value[0] == ':' || value[0] == '<' {
		return false
	}
	if !utf8.Valid(value) {
		return false
	}
	for _, b := range value {
		if b == 0 || b == '\n' || b == '\r' {
			return false
		}
	}
	return true
}

// Parse reads LDIF lines back into an Entry. The returned Entry's DN holds
// only the leaf RDN parsed from the "dn:" line; the caller (pkg/entryfile)
// attaches the parent DN.
func (Codec) Parse(data []byte) (*entry.Entry, error) {
	e := &entry.Entry{}
	sawDN := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		if name == "dn" {
			if sawDN {
				return nil, fmt.Errorf("ldif: duplicate dn: line")
			}
			sawDN = true
			e.DN = dn.New(string(value))
			continue
		}
		e.Attributes = append(e.Attributes, entry.Attribute{Name: name, Values: [][]byte{value}})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawDN {
		return nil, fmt.Errorf("ldif: missing dn: line")
	}
	return mergeDuplicateAttrs(e), nil
}

func parseLine(line string) (name string, value []byte, err error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", nil, fmt.Errorf("ldif: malformed line %q", line)
	}
	name = line[:colon]
	rest := line[colon+1:]
	if strings.HasPrefix(rest, ":") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return "", nil, fmt.Errorf("ldif: bad base64 for %q: %w", name, err)
		}
		return name, decoded, nil
	}
	return name, []byte(strings.TrimPrefix(rest, " ")), nil
}

// mergeDuplicateAttrs folds repeated "attr: value" lines parsed as
// separate single-value Attributes into one multi-valued Attribute each,
// preserving first-seen order.
func mergeDuplicateAttrs(e *entry.Entry) *entry.Entry {
	merged := &entry.Entry{DN: e.DN}
	index := make(map[string]int)
	for _, a := range e.Attributes {
		if i, ok := index[a.Name]; ok {
			merged.Attributes[i].Values = append(merged.Attributes[i].Values, a.Values...)
			continue
		}
		index[a.Name] = len(merged.Attributes)
		merged.Attributes = append(merged.Attributes, entry.Attribute{Name: a.Name, Values: append([][]byte(nil), a.Values...)})
	}
	return merged
}
