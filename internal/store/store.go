// Package store provides markdown documents that can be read and then
// replaced in one step, so that a failed rewrite never leaves a document
// half written.
package store

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/google/renameio"
)

var errBufferClosed = errors.New("write to closed buffer")

// Store is a single document.
type Store interface {
	Open() (io.ReadCloser, error)

	// Update returns a writer for the document's new content, which only
	// replaces the old content once Close succeeds. Cleanup discards the
	// write if Close has not been called, and must always be called.
	Update() (PendingWriter, error)
}

// PendingWriter is a write that can be committed by Close or abandoned by
// Cleanup.
type PendingWriter interface {
	io.WriteCloser
	Cleanup() error
}

// Rewrite reads the document, passes it through transform, and writes back
// the result if it differs. It returns true if the document was changed.
func Rewrite(st Store, transform func(src []byte) ([]byte, error)) (changed bool, rerr error) {
	r, err := st.Open()
	if err != nil {
		return false, err
	}
	src, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, err
	}

	out, err := transform(src)
	if err != nil {
		return false, err
	}
	if bytes.Equal(src, out) {
		return false, nil
	}

	w, err := st.Update()
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := w.Cleanup(); rerr == nil {
			rerr = cerr
		}
	}()
	if _, err := w.Write(out); err != nil {
		return false, err
	}
	if err := w.Close(); err != nil {
		return false, err
	}
	return true, nil
}

// Mem is an in-memory document, such as a chapter handed over by mdBook.
type Mem struct {
	content string
}

// NewMem returns an in-memory document with the given content.
func NewMem(content string) *Mem { return &Mem{content} }

// String returns the current content.
func (m *Mem) String() string { return m.content }

// Open returns a reader over the current content.
func (m *Mem) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.content)), nil
}

// Update returns a buffer that replaces the content when closed.
func (m *Mem) Update() (PendingWriter, error) {
	pb := &pendingBuffer{doc: m}
	pb.buf.Grow(len(m.content))
	return pb, nil
}

type pendingBuffer struct {
	doc  *Mem
	buf  strings.Builder
	done bool
}

func (pb *pendingBuffer) Write(p []byte) (int, error) {
	if pb.done {
		return 0, errBufferClosed
	}
	return pb.buf.Write(p)
}

func (pb *pendingBuffer) Close() error {
	if !pb.done {
		pb.done = true
		pb.doc.content = pb.buf.String()
	}
	return nil
}

func (pb *pendingBuffer) Cleanup() error {
	pb.done = true
	return nil
}

// File is a document on disk.
type File struct {
	Name string
}

// Open opens the file for reading.
func (fst File) Open() (io.ReadCloser, error) {
	return os.Open(fst.Name)
}

// Update starts an atomic replacement of the file, keeping its permissions.
// The file must already exist.
func (fst File) Update() (PendingWriter, error) {
	info, err := os.Stat(fst.Name)
	if err != nil {
		return nil, err
	}
	pf, err := renameio.TempFile("", fst.Name)
	if err != nil {
		return nil, err
	}
	if err := pf.Chmod(info.Mode().Perm()); err != nil {
		pf.Cleanup()
		return nil, err
	}
	return &pendingFile{PendingFile: pf}, nil
}

type pendingFile struct {
	*renameio.PendingFile
	closed bool
}

func (pf *pendingFile) Close() error {
	if pf.closed {
		return nil
	}
	err := pf.CloseAtomicallyReplace()
	pf.closed = err == nil
	return err
}

func (pf *pendingFile) Cleanup() error {
	if pf.closed {
		return nil
	}
	pf.closed = true
	return pf.PendingFile.Cleanup()
}
