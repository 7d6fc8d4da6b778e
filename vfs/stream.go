package vfs

import (
	"context"
	"io"
	"sync"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/vpath"
)

// inputStream wraps a channel-provided reader, holding the borrowed
// channel reference until Close (spec §4.5: "the returned input/output
// stream holds a reference on the channel ... only returned to the
// pool after the stream closes").
type inputStream struct {
	fsys *Filesystem
	b    borrowed
	path vpath.Path
	rc   io.ReadCloser
	opts fs.OpenOptions

	mu     sync.Mutex
	closed bool
}

func newInputStream(fsys *Filesystem, b borrowed, path vpath.Path, rc io.ReadCloser, opts fs.OpenOptions) *inputStream {
	return &inputStream{fsys: fsys, b: b, path: path, rc: rc, opts: opts}
}

func (s *inputStream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if err != nil && err != io.EOF {
		return n, s.fsys.qualify(s.path, err)
	}
	return n, err
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeErr := s.rc.Close()

	var deleteErr error
	if s.opts.DeleteOnClose {
		deleteErr = s.fsys.qualify(s.path, s.b.channel().Delete(context.Background(), s.path.String(), false))
	}

	releaseErr := s.b.release()
	return firstErr(closeErr, firstErr(deleteErr, releaseErr))
}

// outputStream wraps a channel-provided writer with the same
// reference-holding and delete-on-close behavior as inputStream.
type outputStream struct {
	fsys *Filesystem
	b    borrowed
	path vpath.Path
	wc   io.WriteCloser
	opts fs.OpenOptions

	mu     sync.Mutex
	closed bool
}

func newOutputStream(fsys *Filesystem, b borrowed, path vpath.Path, wc io.WriteCloser, opts fs.OpenOptions) *outputStream {
	return &outputStream{fsys: fsys, b: b, path: path, wc: wc, opts: opts}
}

func (s *outputStream) Write(p []byte) (int, error) {
	n, err := s.wc.Write(p)
	if err != nil {
		return n, s.fsys.qualify(s.path, err)
	}
	return n, nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeErr := s.wc.Close()

	var deleteErr error
	if s.opts.DeleteOnClose {
		deleteErr = s.fsys.qualify(s.path, s.b.channel().Delete(context.Background(), s.path.String(), false))
	}

	releaseErr := s.b.release()
	return firstErr(closeErr, firstErr(deleteErr, releaseErr))
}
