// Command ldifimport bulk-loads an LDIF file into a backend's storage tree
// via tool mode, bypassing schema and ACL checks the way a database's own
// import tool is expected to.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry/ldif"
	"github.com/example/ldifbackend/pkg/toolmode"
)

func main() {
	directory := flag.String("directory", "", "base directory for the entry tree (required)")
	suffix := flag.String("suffix", "", "suffix DN served by this backend (required)")
	input := flag.String("in", "", "LDIF file to import (default: stdin)")
	flag.Parse()

	if *directory == "" {
		log.Fatalf("ldifimport: -directory is required")
	}
	if *suffix == "" {
		log.Fatalf("ldifimport: -suffix is required")
	}
	suffixDN, err := dn.Parse(*suffix)
	if err != nil {
		log.Fatalf("ldifimport: bad -suffix: %v", err)
	}

	data, err := readInput(*input)
	if err != nil {
		log.Fatalf("ldifimport: %v", err)
	}

	sess, err := toolmode.Open(toolmode.Config{Directory: *directory, Suffix: suffixDN}, ldif.Codec{}, nil)
	if err != nil {
		log.Fatalf("ldifimport: open: %v", err)
	}
	defer sess.Close()

	var codec ldif.Codec
	n := 0
	for _, record := range splitRecords(data) {
		e, err := codec.Parse(record)
		if err != nil {
			log.Fatalf("ldifimport: parse entry %d: %v", n+1, err)
		}
		// codec.Parse recovers only the leaf RDN from its dn: line
		// (entry files never carry a full DN); a bulk-load file uses
		// full DNs, so reparse the dn: line as the full, comma-joined
		// DN before handing the entry to Put.
		fullDN, ok := leafLineDN(record)
		if !ok {
			log.Fatalf("ldifimport: entry %d: missing dn: line", n+1)
		}
		parsed, err := dn.Parse(fullDN)
		if err != nil {
			log.Fatalf("ldifimport: entry %d: bad dn: %v", n+1, err)
		}
		e.DN = parsed
		if err := sess.Put(e); err != nil {
			log.Fatalf("ldifimport: put %s: %v", fullDN, err)
		}
		n++
	}
	fmt.Printf("ldifimport: loaded %d entries\n", n)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return readAll(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAll(f)
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// splitRecords breaks an LDIF stream into its blank-line-separated entry
// records, the way an LDIF file lists more than one entry.
func splitRecords(data []byte) [][]byte {
	var records [][]byte
	for _, chunk := range bytes.Split(data, []byte("\n\n")) {
		trimmed := bytes.TrimSpace(chunk)
		if len(trimmed) == 0 {
			continue
		}
		records = append(records, trimmed)
	}
	return records
}

// leafLineDN finds the "dn:" line in a raw record and returns its value,
// unparsed, so the caller can reparse it as a full, comma-separated DN.
func leafLineDN(record []byte) (string, bool) {
	for _, line := range bytes.Split(record, []byte("\n")) {
		s := string(line)
		if len(s) >= 3 && s[:3] == "dn:" {
			value := s[3:]
			for len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			return value, true
		}
	}
	return "", false
}
