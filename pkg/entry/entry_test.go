package entry

import (
	"testing"

	"github.com/example/ldifbackend/pkg/dn"
)

func TestGetSetDelete(t *testing.T) {
	e := &Entry{DN: dn.New("cn=Alice")}
	e.Set("cn", [][]byte{[]byte("Alice")})
	if got := e.Get("cn"); len(got) != 1 || string(got[0]) != "Alice" {
		t.Fatalf("Get(cn) = %v", got)
	}
	e.Set("cn", [][]byte{[]byte("Alicia")})
	if len(e.Attributes) != 1 {
		t.Fatalf("Set should replace, not append: %v", e.Attributes)
	}
	if !e.Delete("cn") {
		t.Fatalf("expected Delete to report found")
	}
	if e.Delete("cn") {
		t.Fatalf("expected second Delete to report not found")
	}
}

func TestClone(t *testing.T) {
	e := &Entry{DN: dn.New("cn=Alice")}
	e.Set("cn", [][]byte{[]byte("Alice")})
	clone := e.Clone()
	clone.Attributes[0].Values[0][0] = 'X'
	if string(e.Attributes[0].Values[0]) == "Xlice" {
		t.Fatalf("Clone should deep-copy values, mutation leaked back")
	}
}
