// Command ldifexport walks a backend's storage tree via tool mode and
// dumps every entry as LDIF, the offline counterpart to ldifimport.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"log"
	"os"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/entry/ldif"
	"github.com/example/ldifbackend/pkg/toolmode"
)

func main() {
	directory := flag.String("directory", "", "base directory for the entry tree (required)")
	suffix := flag.String("suffix", "", "suffix DN served by this backend (required)")
	output := flag.String("out", "", "LDIF file to write (default: stdout)")
	flag.Parse()

	if *directory == "" {
		log.Fatalf("ldifexport: -directory is required")
	}
	if *suffix == "" {
		log.Fatalf("ldifexport: -suffix is required")
	}
	suffixDN, err := dn.Parse(*suffix)
	if err != nil {
		log.Fatalf("ldifexport: bad -suffix: %v", err)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("ldifexport: create %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	sess, err := toolmode.Open(toolmode.Config{Directory: *directory, Suffix: suffixDN}, nil, ldif.Codec{})
	if err != nil {
		log.Fatalf("ldifexport: open: %v", err)
	}
	defer sess.Close()

	var codec ldif.Codec
	n := 0
	id, e, err := sess.First()
	for {
		if err != nil {
			log.Fatalf("ldifexport: walk: %v", err)
		}
		if id == 0 {
			break
		}
		if err := writeEntry(w, codec, e); err != nil {
			log.Fatalf("ldifexport: write %s: %v", e.DN.String(), err)
		}
		n++
		id, e, err = sess.Next()
	}
	log.Printf("ldifexport: wrote %d entries", n)
}

// writeEntry emits e's full DN followed by its attribute lines. It
// discards codec.Serialize's own "dn:" line (which holds only e's leaf RDN,
// per the on-disk storage convention) in favor of e's full, reconstructed
// DN.
func writeEntry(w *bufio.Writer, codec ldif.Codec, e *entry.Entry) error {
	if _, err := w.WriteString("dn: " + e.DN.String() + "\n"); err != nil {
		return err
	}
	data, err := codec.Serialize(e)
	if err != nil {
		return err
	}
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.WriteString("\n")
	return err
}
