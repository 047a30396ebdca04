// Package entryfile implements atomic, single-entry file I/O: reading an
// entry file from disk, testing for its existence, and writing it via a
// same-directory temp file plus rename so a reader never observes a
// partially-written entry.
package entryfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/example/ldifbackend/pkg/dn"
	"github.com/example/ldifbackend/pkg/entry"
	"github.com/example/ldifbackend/pkg/ldaperr"
)

// serializeMu serializes calls into the caller-supplied Serializer/Parser,
// mirroring the original backend's entry2str_mutex: a caller's codec may
// keep internal scratch buffers that aren't safe for concurrent use, and
// this core has no way to know, so it plays it safe process-wide.
var serializeMu sync.Mutex

// Exists reports whether an entry file is present at path, translating a
// "not found" stat error into (false, nil) rather than an error.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ldaperr.FromOSError(err)
}

// Read loads and parses the entry file at path. The parser recovers only
// the entry's leaf RDN; Read attaches parent to build the full DN via
// dn.BuildChild before returning.
func Read(path string, parent dn.DN, parser entry.Parser) (*entry.Entry, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	serializeMu.Lock()
	e, err := parser.Parse(data)
	serializeMu.Unlock()
	if err != nil {
		return nil, ldaperr.Newf("entryfile.Read", path, ldaperr.ErrOther, "parse: %v", err)
	}
	leafRDN, leafNRDN := e.DN.Leaf()
	e.DN = dn.BuildChild(leafRDN, leafNRDN, parent)
	return e, nil
}

// readFile loops past short reads and EINTR the way ldif_read_file does,
// growing the buffer by one extra byte to detect a file that grew between
// stat and read.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ldaperr.New("entryfile.Read", path, ldaperr.ErrNoSuchObject)
		}
		return nil, ldaperr.New("entryfile.Read", path, ldaperr.FromOSError(err))
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, ldaperr.New("entryfile.Read", path, ldaperr.FromOSError(err))
	}
	return readAtMostSize(f, st.Size(), path)
}

// readAtMostSize reads at most size+1 bytes from r, where size was the
// file's length at stat time. Filling the +1 buffer exactly means the file
// grew between stat and read; this case is split out from readFile so it
// can be exercised directly without racing a real file.
func readAtMostSize(r io.Reader, size int64, path string) ([]byte, error) {
	buf := make([]byte, size+1)
	n, err := io.ReadFull(r, buf)
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		// Read fewer bytes than the +1 buffer: the common, expected case.
		return buf[:n], nil
	case err != nil:
		return nil, ldaperr.Newf("entryfile.Read", path, ldaperr.ErrOther, "read: %v", err)
	default:
		// Filled the +1 buffer exactly: the file grew between stat and
		// read. back-ldif treats this as a hard error rather than
		// retrying, since the stat it read size from is now stale.
		return nil, ldaperr.New("entryfile.Read", path, ldaperr.ErrOther)
	}
}

// Write atomically replaces the entry file at path with the serialized
// form of e. It creates a same-directory temp file, writes, fsyncs, closes,
// and renames over path, removing the temp file if anything fails before
// the rename. The entry's DN is temporarily shortened to its leaf RDN
// before serializing (mirroring the original's dnRdn-then-restore dance,
// since only the leaf RDN is ever stored on disk) and restored before
// Write returns, even on error.
func Write(path string, e *entry.Entry, serializer entry.Serializer) error {
	leafPresentation, _ := e.DN.Leaf()
	fullDN := e.DN
	e.DN = dn.New(leafPresentation)
	defer func() { e.DN = fullDN }()

	serializeMu.Lock()
	data, err := serializer.Serialize(e)
	serializeMu.Unlock()
	if err != nil {
		return ldaperr.Newf("entryfile.Write", path, ldaperr.ErrOther, "serialize: %v", err)
	}

	tmpPath, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ldaperr.New("entryfile.Write", path, ldaperr.FromOSError(err))
	}
	if err := verifyWrittenSize(path, int64(len(data))); err != nil {
		return err
	}
	return nil
}

// verifyWrittenSize stats path after the rename and confirms it matches
// wantSize, the perkeep localdisk receive.go check that a write actually
// landed rather than trusting the rename's success alone.
func verifyWrittenSize(path string, wantSize int64) error {
	st, err := os.Stat(path)
	if err != nil {
		return ldaperr.New("entryfile.Write", path, ldaperr.FromOSError(err))
	}
	if st.Size() != wantSize {
		return ldaperr.Newf("entryfile.Write", path, ldaperr.ErrOther, "wrote %d bytes but stat reports %d", wantSize, st.Size())
	}
	return nil
}

// writeTemp creates a unique temp file in the same directory as path (so
// the final rename is same-filesystem and therefore atomic), writes data
// to it, fsyncs, and closes it, returning its name. On any failure the
// temp file is removed before returning.
func writeTemp(path string, data []byte) (tmpPath string, err error) {
	dir := filepath.Dir(path)
	tmpPath = filepath.Join(dir, filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", ldaperr.New("entryfile.Write", path, ldaperr.FromOSError(err))
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if werr := writeAll(f, data); werr != nil {
		err = ldaperr.Newf("entryfile.Write", path, ldaperr.ErrOther, "write: %v", werr)
		return "", err
	}
	if serr := unix.Fsync(int(f.Fd())); serr != nil {
		err = ldaperr.Newf("entryfile.Write", path, ldaperr.ErrOther, "fsync: %v", serr)
		return "", err
	}
	if cerr := f.Close(); cerr != nil {
		err = ldaperr.New("entryfile.Write", path, ldaperr.FromOSError(cerr))
		return "", err
	}
	return tmpPath, nil
}

// writeAll loops past short writes, the write-side analogue of
// ldif_read_file's read loop.
func writeAll(f *os.File, data []byte) error {
	for len(data) > 0 {
		n, err := f.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Remove unlinks the entry file at path. A missing file is reported as
// ldaperr.ErrNoSuchObject, matching ldif_back_delete's unlink-result
// mapping (any unlink failure defaults to NoSuchObject, and is only
// promoted to Other for errors other than ENOENT).
func Remove(path string) error {
	if err := unix.Unlink(path); err != nil {
		if err == unix.ENOENT {
			return ldaperr.New("entryfile.Remove", path, ldaperr.ErrNoSuchObject)
		}
		return ldaperr.New("entryfile.Remove", path, ldaperr.FromOSError(err))
	}
	return nil
}

// RemoveEmptyDir removes the subtree directory at dirPath if it is empty.
// Returns ldaperr.ErrNotAllowedOnNonLeaf if it still has children, matching
// the original's rmdir-before-unlink ordering in ldif_back_delete.
func RemoveEmptyDir(dirPath string) error {
	if err := unix.Rmdir(dirPath); err != nil {
		switch err {
		case unix.ENOENT:
			return nil
		case unix.ENOTEMPTY, unix.EEXIST:
			return ldaperr.New("entryfile.RemoveEmptyDir", dirPath, ldaperr.ErrNotAllowedOnNonLeaf)
		default:
			return ldaperr.New("entryfile.RemoveEmptyDir", dirPath, ldaperr.FromOSError(err))
		}
	}
	return nil
}

// MkdirAll creates the subtree directory at dirPath and any missing
// ancestors, matching the filesystem mirror invariant that a subtree
// directory for an entry with children must exist alongside it.
func MkdirAll(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o700); err != nil {
		return fmt.Errorf("entryfile: mkdir %s: %w", dirPath, err)
	}
	return nil
}
