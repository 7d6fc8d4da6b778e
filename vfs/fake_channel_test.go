package vfs

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/nautilusfs/vfscore/fs"
)

// fakeChannel is an in-memory fs.Channel double used across this
// package's tests. It models just enough of a remote backend's
// behavior (files, directories, symlinks) to exercise the dispatcher
// without any network or filesystem dependency.
type fakeChannel struct {
	mu      sync.Mutex
	closed  bool
	closeN  *int
	files   map[string][]byte
	dirs    map[string]bool
	links   map[string]string
	wd      string
	noPwd   bool
	onClose func()
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		links: map[string]string{},
		wd:    "/",
	}
}

func (c *fakeChannel) StoreFile(ctx context.Context, path string, src io.Reader, opts fs.OpenOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	c.files[path] = data
	return nil
}

func (c *fakeChannel) NewInputStream(ctx context.Context, path string, opts fs.OpenOptions) (io.ReadCloser, error) {
	c.mu.Lock()
	data, ok := c.files[path]
	c.mu.Unlock()
	if !ok {
		return nil, fs.New(fs.KindNotFound, "no such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeWriter struct {
	c    *fakeChannel
	path string
	buf  bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeWriter) Close() error {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	w.c.files[w.path] = w.buf.Bytes()
	return nil
}

func (c *fakeChannel) NewOutputStream(ctx context.Context, path string, opts fs.OpenOptions) (io.WriteCloser, error) {
	return &fakeWriter{c: c, path: path}, nil
}

func (c *fakeChannel) Rename(ctx context.Context, source, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.files[source]; ok {
		c.files[target] = data
		delete(c.files, source)
		return nil
	}
	if c.dirs[source] {
		c.dirs[target] = true
		delete(c.dirs, source)
		return nil
	}
	return fs.New(fs.KindNotFound, "rename: source missing")
}

func (c *fakeChannel) Mkdir(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[path] = true
	return nil
}

func (c *fakeChannel) Chown(ctx context.Context, path string, owner string) error {
	return fs.New(fs.KindUnsupportedOperation, "chown not supported")
}

func (c *fakeChannel) Chmod(ctx context.Context, path string, perms fs.PermissionSet) error {
	return fs.New(fs.KindUnsupportedOperation, "chmod not supported")
}

func (c *fakeChannel) Delete(ctx context.Context, path string, isDirectory bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isDirectory {
		prefix := strings.TrimSuffix(path, "/") + "/"
		for f := range c.files {
			if strings.HasPrefix(f, prefix) {
				delete(c.files, f)
			}
		}
		delete(c.dirs, path)
		return nil
	}
	if _, ok := c.files[path]; !ok {
		return fs.New(fs.KindNotFound, "delete: no such file")
	}
	delete(c.files, path)
	return nil
}

func (c *fakeChannel) ListFiles(ctx context.Context, path string) ([]fs.DirEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	seen := map[string]bool{}
	var out []fs.DirEntry
	for f := range c.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		name := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name = rest[:idx]
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, fs.DirEntry{Name: name, Attrs: fs.Attributes{IsRegularFile: !strings.Contains(rest, "/")}})
	}
	for d := range c.dirs {
		if !strings.HasPrefix(d, prefix) || d == path {
			continue
		}
		rest := strings.TrimPrefix(d, prefix)
		name := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name = rest[:idx]
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, fs.DirEntry{Name: name, Attrs: fs.Attributes{IsDirectory: true}})
	}
	return out, nil
}

func (c *fakeChannel) ReadAttributes(ctx context.Context, path string, followLinks bool) (fs.Attributes, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target, ok := c.links[path]; ok && followLinks {
		path = target
	} else if ok {
		return fs.Attributes{IsSymbolicLink: true}, nil
	}
	if data, ok := c.files[path]; ok {
		return fs.Attributes{IsRegularFile: true, Size: int64(len(data)), Permissions: fs.NewPermissionSet(fs.PermOwnerRead, fs.PermOwnerWrite)}, nil
	}
	if c.dirs[path] {
		return fs.Attributes{IsDirectory: true, Permissions: fs.NewPermissionSet(fs.PermOwnerRead, fs.PermOwnerWrite, fs.PermOwnerExecute)}, nil
	}
	return fs.Attributes{}, fs.New(fs.KindNotFound, "no such path")
}

func (c *fakeChannel) SetModTime(ctx context.Context, path string, millis int64) error      { return nil }
func (c *fakeChannel) SetAccessTime(ctx context.Context, path string, millis int64) error   { return nil }
func (c *fakeChannel) SetCreationTime(ctx context.Context, path string, millis int64) error {
	return fs.New(fs.KindUnsupportedOperation, "creation time not supported")
}

func (c *fakeChannel) Exists(ctx context.Context, path string) bool {
	_, err := c.ReadAttributes(ctx, path, true)
	return err == nil
}

func (c *fakeChannel) Pwd(ctx context.Context) (string, error) {
	if c.noPwd {
		return "", fs.New(fs.KindUnsupportedOperation, "pwd not supported")
	}
	return c.wd, nil
}

func (c *fakeChannel) ReadSymbolicLink(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target, ok := c.links[path]
	if !ok {
		return "", fs.New(fs.KindInvalidArgument, "not a symbolic link")
	}
	return target, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}
