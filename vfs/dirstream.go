package vfs

import (
	"context"
	"sync"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/vpath"
)

// AcceptFunc filters entries yielded by a DirectoryStream; returning
// false skips the entry.
type AcceptFunc func(path vpath.Path, attrs fs.Attributes) bool

// DirectoryStream is a single-use, finite sequence of child paths
// (spec §4.5 newDirectoryStream). It is not lazy: NewDirectoryStream
// fetches the whole listing up front, and Iterator returns every
// accepted child at once. It rejects a second Iterator call and
// rejects iteration after Close.
type DirectoryStream struct {
	dir    vpath.Path
	accept AcceptFunc

	mu       sync.Mutex
	entries  []fs.DirEntry
	loaded   bool
	iterated bool
	closed   bool
}

// NewDirectoryStream lists dir's immediate children through the
// dispatcher and returns a stream over them, filtered by accept (nil
// accepts everything).
func (fsys *Filesystem) NewDirectoryStream(ctx context.Context, dir vpath.Path, accept AcceptFunc) (*DirectoryStream, error) {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = firstErr(err, b.release()) }()

	entries, lerr := b.channel().ListFiles(ctx, dir.String())
	if lerr != nil {
		err = fsys.qualify(dir, lerr)
		return nil, err
	}
	filtered := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		filtered = append(filtered, e)
	}
	return &DirectoryStream{dir: dir, accept: accept, entries: filtered, loaded: true}, nil
}

// Iterator returns the filtered sequence of child paths. May be called
// exactly once; a second call fails with *unsupported-operation*.
func (s *DirectoryStream) Iterator() ([]vpath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fs.New(fs.KindUnsupportedOperation, "iterating a closed directory stream")
	}
	if s.iterated {
		return nil, fs.New(fs.KindUnsupportedOperation, "directory stream iterator already consumed")
	}
	s.iterated = true

	out := make([]vpath.Path, 0, len(s.entries))
	for _, e := range s.entries {
		child := s.dir.Resolve(mustSegment(s.dir, e.Name))
		if s.accept != nil && !s.accept(child, e.Attrs) {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

func mustSegment(fsys vpath.Path, name string) vpath.Path {
	p, err := vpath.New(fsys.Filesystem(), name)
	if err != nil {
		// name comes from the backend's own listing, never user input;
		// a NUL byte here means the backend is returning corrupt data.
		p, _ = vpath.New(fsys.Filesystem(), "")
	}
	return p
}

// Close marks the stream closed; further Iterator calls fail.
func (s *DirectoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
