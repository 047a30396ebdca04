package ldif

import (
	"testing"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
)

func TestRoundTrip(t *testing.T) {
	e := &entry.Entry{DN: dn.New("cn=Alice")}
	e.Set("cn", [][]byte{[]byte("Alice")})
	e.Set("mail", [][]byte{[]byte("alice@example.com"), []byte("a@example.com")})

	var c Codec
	data, err := c.Serialize(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v\ndata:\n%s", err, data)
	}
	if leaf, _ := got.DN.Leaf(); leaf != "cn=Alice" {
		t.Errorf("leaf DN = %q", leaf)
	}
	if vals := got.Get("mail"); len(vals) != 2 {
		t.Errorf("mail values = %v", vals)
	}
}

func TestSerializeBinaryValue(t *testing.T) {
	e := &entry.Entry{DN: dn.New("cn=Bob")}
	e.Set("jpegPhoto", [][]byte{{0x00, 0x01, 0xFF, '\n'}})

	var c Codec
	data, err := c.Serialize(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vals := got.Get("jpegPhoto")
	if len(vals) != 1 || len(vals[0]) != 4 {
		t.Fatalf("jpegPhoto = %v", vals)
	}
}

func TestParseMissingDN(t *testing.T) {
	var c Codec
	if _, err := c.Parse([]byte("cn: Alice\n")); err == nil {
		t.Errorf("expected error for missing dn: line")
	}
}
