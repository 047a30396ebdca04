// Command ldifbackend wires a storage backend and drives it from a
// line-oriented command script on stdin: a stand-in for the host front end
// (wire protocol, connection handling) that this project leaves out of
// scope, just enough to exercise every operation handler and hook.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/example/ldifbackend/pkg/backend"
	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entry/ldif"
	"github.com/example/ldifbackend/pkg/ldaperr"
	"github.com/example/ldifbackend/pkg/tree"
)

func main() {
	directory := flag.String("directory", "", "base directory for the entry tree (required)")
	suffix := flag.String("suffix", "", "suffix DN served by this backend (required)")
	scriptPath := flag.String("script", "", "command script to read instead of stdin")
	flag.Parse()

	if *directory == "" {
		log.Fatalf("ldifbackend: -directory is required")
	}
	if *suffix == "" {
		log.Fatalf("ldifbackend: -suffix is required")
	}

	suffixDN, err := dn.Parse(*suffix)
	if err != nil {
		log.Fatalf("ldifbackend: bad -suffix: %v", err)
	}

	cfg := backend.DefaultConfig()
	cfg.Directory = *directory
	cfg.Suffix = suffixDN

	hooks := backend.Hooks{
		Serializer: ldif.Codec{},
		Parser:     ldif.Codec{},
		CheckPassword: func(e *entry.Entry, credentials []byte) error {
			for _, v := range e.Get("userPassword") {
				if bytes.Equal(v, credentials) {
					return nil
				}
			}
			return fmt.Errorf("bad credentials")
		},
		IsReferral: func(e *entry.Entry) bool {
			for _, oc := range e.Get("objectClass") {
				if strings.EqualFold(string(oc), "referral") {
					return true
				}
			}
			return false
		},
		RewriteReferral: func(e *entry.Entry, scope tree.Scope) []string {
			vals := e.Get("ref")
			refs := make([]string, len(vals))
			for i, v := range vals {
				refs[i] = string(v)
			}
			return refs
		},
	}

	b, err := backend.Open(cfg, hooks)
	if err != nil {
		log.Fatalf("ldifbackend: open: %v", err)
	}
	defer b.Close()

	in := os.Stdin
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			log.Fatalf("ldifbackend: open script: %v", err)
		}
		defer f.Close()
		in = f
	}

	runScript(b, in, os.Stdout)
}

// runScript reads blank-line-separated command records from in and
// executes each against b, logging its result to out. Unknown commands and
// handler errors are reported but do not stop the script.
func runScript(b *backend.Backend, in *os.File, out *os.File) {
	ctx := context.Background()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var record []string
	flush := func() {
		if len(record) == 0 {
			return
		}
		runRecord(ctx, b, record, out)
		record = nil
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		record = append(record, line)
	}
	flush()
	if err := scanner.Err(); err != nil {
		log.Fatalf("ldifbackend: reading script: %v", err)
	}
}

func runRecord(ctx context.Context, b *backend.Backend, lines []string, out *os.File) {
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToUpper(fields[0])
	switch cmd {
	case "ADD":
		runAdd(ctx, b, lines, out)
	case "DELETE":
		runDelete(ctx, b, fields, out)
	case "MODRDN":
		runModRDN(ctx, b, fields, out)
	case "BIND":
		runBind(ctx, b, fields, out)
	case "SEARCH":
		runSearch(ctx, b, fields, out)
	default:
		fmt.Fprintf(out, "? unknown command %q\n", cmd)
	}
}

// runAdd expects "ADD <dn>" as the header line, followed by LDIF attribute
// lines; it reassembles a dn: line up front so ldif.Codec.Parse sees a
// normal entry record.
func runAdd(ctx context.Context, b *backend.Backend, lines []string, out *os.File) {
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		fmt.Fprintln(out, "? ADD requires a DN")
		return
	}
	targetDNText := strings.Join(fields[1:], " ")
	targetDN, ok := parseDN(out, targetDNText)
	if !ok {
		return
	}

	// codec.Parse wants its own "dn:" line, but only to recover the leaf
	// RDN (entry files never store a full DN); give it a placeholder and
	// overwrite the result with the full DN parsed above.
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "dn: placeholder")
	for _, l := range lines[1:] {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	var codec ldif.Codec
	e, err := codec.Parse(buf.Bytes())
	if err != nil {
		fmt.Fprintf(out, "? add %s: parse: %v\n", targetDNText, err)
		return
	}
	e.DN = targetDN
	report(out, "add", targetDNText, b.Add(ctx, e))
}

func runDelete(ctx context.Context, b *backend.Backend, fields []string, out *os.File) {
	if len(fields) < 2 {
		fmt.Fprintln(out, "? DELETE requires a DN")
		return
	}
	targetDN, ok := parseDN(out, strings.Join(fields[1:], " "))
	if !ok {
		return
	}
	report(out, "delete", targetDN.String(), b.Delete(ctx, targetDN))
}

func runModRDN(ctx context.Context, b *backend.Backend, fields []string, out *os.File) {
	if len(fields) < 4 {
		fmt.Fprintln(out, "? MODRDN requires <dn> <newrdn> <deleteoldrdn>")
		return
	}
	targetDN, ok := parseDN(out, fields[1])
	if !ok {
		return
	}
	newRDN := fields[2]
	deleteOld, err := strconv.ParseBool(fields[3])
	if err != nil {
		fmt.Fprintf(out, "? MODRDN: bad deleteoldrdn %q\n", fields[3])
		return
	}
	err = b.ModRDN(ctx, targetDN, newRDN, dn.Normalize(newRDN), deleteOld, nil)
	report(out, "modrdn", targetDN.String(), err)
}

func runBind(ctx context.Context, b *backend.Backend, fields []string, out *os.File) {
	if len(fields) < 3 {
		fmt.Fprintln(out, "? BIND requires <dn> <password>")
		return
	}
	targetDN, ok := parseDN(out, fields[1])
	if !ok {
		return
	}
	err := b.Bind(ctx, targetDN, []byte(fields[2]))
	report(out, "bind", targetDN.String(), err)
}

func runSearch(ctx context.Context, b *backend.Backend, fields []string, out *os.File) {
	if len(fields) < 3 {
		fmt.Fprintln(out, "? SEARCH requires <dn> <scope>")
		return
	}
	targetDN, ok := parseDN(out, fields[1])
	if !ok {
		return
	}
	scope, ok := parseScope(fields[2])
	if !ok {
		fmt.Fprintf(out, "? SEARCH: bad scope %q\n", fields[2])
		return
	}
	sink := &printSink{out: out}
	err := b.Search(ctx, targetDN, scope, false, sink)
	report(out, "search", targetDN.String(), err)
}

func parseDN(out *os.File, s string) (dn.DN, bool) {
	d, err := dn.Parse(s)
	if err != nil {
		fmt.Fprintf(out, "? bad DN %q: %v\n", s, err)
		return dn.DN{}, false
	}
	return d, true
}

func parseScope(s string) (tree.Scope, bool) {
	switch strings.ToUpper(s) {
	case "BASE":
		return tree.ScopeBase, true
	case "ONE", "ONELEVEL":
		return tree.ScopeOneLevel, true
	case "SUB", "SUBTREE":
		return tree.ScopeSubtree, true
	case "SUBORDINATE":
		return tree.ScopeSubordinate, true
	default:
		return 0, false
	}
}

type printSink struct {
	out *os.File
}

func (s *printSink) SendEntry(e *entry.Entry) error {
	fmt.Fprintf(s.out, "  %s\n", e.DN.String())
	return nil
}

func (s *printSink) SendReference(e *entry.Entry, refs []string) error {
	fmt.Fprintf(s.out, "  %s (referral: %v)\n", e.DN.String(), refs)
	return nil
}

func report(out *os.File, op, targetDN string, err error) {
	if err == nil {
		fmt.Fprintf(out, "%s %s: ok\n", op, targetDN)
		return
	}
	if ldaperr.Is(err, ldaperr.ErrNoSuchObject) {
		fmt.Fprintf(out, "%s %s: no such object\n", op, targetDN)
		return
	}
	if ldaperr.Is(err, ldaperr.ErrReferral) {
		fmt.Fprintf(out, "%s %s: referral: %v\n", op, targetDN, err)
		return
	}
	fmt.Fprintf(out, "%s %s: %v\n", op, targetDN, err)
}
