// Package vfs implements the Filesystem dispatcher of spec §4.5
// (component E): for every user-facing operation it borrows a Channel
// from its Pool, issues one or more channel calls, optionally wraps a
// stream the channel returned, and translates channel errors into the
// path-qualified taxonomy of §7.
package vfs

import (
	"context"
	"io"
	"time"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/lib/pool"
	"github.com/nautilusfs/vfscore/vpath"
)

// ChannelFactory builds a fresh backend session. Backend packages
// (backend/s3, backend/sftp) supply one of these to NewFilesystem.
type ChannelFactory func(ctx context.Context) (fs.Channel, error)

// Filesystem is the per-URI dispatcher that fronts a Pool of Channels.
// It implements fs.Handle (for the Registry) and vpath.Filesystem (so
// Path values can resolve/normalize against it).
type Filesystem struct {
	uri     string
	pool    *pool.Pool[fs.Channel]
	workdir string // SFTP only; object stores ignore this
}

// channelAdapter satisfies pool.Releasable by delegating to the
// fs.Channel's own Close. It does not implement pool.Validatable, so
// the pool treats every channel as always valid — backend channels
// surface staleness as a plain I/O error on the next call rather than a
// cheap liveness probe.
type channelAdapter struct {
	fs.Channel
}

func (c channelAdapter) ReleaseResources() error { return c.Channel.Close() }

// NewFilesystem constructs a Filesystem backed by a pool of channels
// built from factory, sized per config (spec §4.1/§6).
func NewFilesystem(ctx context.Context, uri string, config fs.PoolConfig, factory ChannelFactory) (*Filesystem, error) {
	config = config.Normalized()
	poolCfg := pool.Config{
		MaxWaitTime: config.MaxWaitTime,
		MaxIdleTime: config.MaxIdleTime,
		InitialSize: config.InitialSize,
		MaxSize:     config.MaxSize,
	}
	p, err := pool.New(uri, poolCfg, func(ctx context.Context) (fs.Channel, error) {
		ch, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return channelAdapter{ch}, nil
	})
	if err != nil {
		return nil, fs.Wrap(fs.KindIOFailure, uri, err)
	}
	return &Filesystem{uri: uri, pool: p}, nil
}

// Identity distinguishes this filesystem instance for vpath.Path
// equality (spec §4.4).
func (fsys *Filesystem) Identity() string { return fsys.uri }

// String satisfies fs.Handle.
func (fsys *Filesystem) String() string { return fsys.uri }

// Close shuts down the underlying pool, releasing every idle channel
// (spec §9: "lifecycle is created at provider construction, drained at
// provider close").
func (fsys *Filesystem) Close() error {
	if err := fsys.pool.Shutdown(); err != nil {
		return fs.Wrap(fs.KindIOFailure, fsys.uri, err)
	}
	return nil
}

// borrowed is a scoped channel acquisition: release is guaranteed via
// the caller's defer, on every exit path (spec §4.5).
type borrowed struct {
	fsys *Filesystem
	obj  *pool.Object[fs.Channel]
	tok  *pool.RefToken
}

func (fsys *Filesystem) borrow(ctx context.Context) (borrowed, error) {
	obj, tok, err := fsys.pool.Acquire(ctx, nil)
	if err != nil {
		return borrowed{}, translatePoolErr(fsys.uri, err)
	}
	return borrowed{fsys: fsys, obj: obj, tok: tok}, nil
}

func (b borrowed) channel() fs.Channel { return b.obj.Value }

func (b borrowed) release() error {
	if err := b.obj.RemoveReference(b.tok); err != nil {
		return fs.Wrap(fs.KindIOFailure, b.fsys.uri, err)
	}
	return nil
}

func translatePoolErr(uri string, err error) error {
	switch err {
	case pool.ErrShutdown:
		return fs.NewPath(fs.KindPoolShutdown, uri, "filesystem pool is shut down")
	case pool.ErrTimeout:
		return fs.NewPath(fs.KindTimeout, uri, "timed out acquiring a channel")
	default:
		if err == context.Canceled {
			return fs.NewPath(fs.KindInterrupted, uri, "acquire interrupted")
		}
		return fs.Wrap(fs.KindIOFailure, uri, err)
	}
}

func (fsys *Filesystem) qualify(p vpath.Path, err error) error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*fs.Error); ok && perr.Path == "" {
		perr.Path = p.String()
		return perr
	}
	return err
}

// StoreFile writes src to path in full.
func (fsys *Filesystem) StoreFile(ctx context.Context, path vpath.Path, src io.Reader, opts []fs.OpenOption) error {
	normalized, err := fs.ForNewOutputStream(opts)
	if err != nil {
		return err
	}
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()
	err = fsys.qualify(path, b.channel().StoreFile(ctx, path.String(), src, normalized))
	return err
}

// NewInputStream opens path for reading, returning a stream that holds
// a reference on the borrowed channel until it is closed (spec §4.5).
func (fsys *Filesystem) NewInputStream(ctx context.Context, path vpath.Path, opts []fs.OpenOption) (io.ReadCloser, error) {
	normalized, err := fs.ForNewInputStream(opts)
	if err != nil {
		return nil, err
	}
	b, err := fsys.borrow(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := b.channel().NewInputStream(ctx, path.String(), normalized)
	if err != nil {
		releaseErr := b.release()
		return nil, firstErr(fsys.qualify(path, err), releaseErr)
	}
	return newInputStream(fsys, b, path, rc, normalized), nil
}

// NewOutputStream opens path for writing, returning a stream that
// holds a reference on the borrowed channel until it is closed.
func (fsys *Filesystem) NewOutputStream(ctx context.Context, path vpath.Path, opts []fs.OpenOption) (io.WriteCloser, error) {
	normalized, err := fs.ForNewOutputStream(opts)
	if err != nil {
		return nil, err
	}
	b, err := fsys.borrow(ctx)
	if err != nil {
		return nil, err
	}
	wc, err := b.channel().NewOutputStream(ctx, path.String(), normalized)
	if err != nil {
		releaseErr := b.release()
		return nil, firstErr(fsys.qualify(path, err), releaseErr)
	}
	return newOutputStream(fsys, b, path, wc, normalized), nil
}

// Mkdir creates path.
func (fsys *Filesystem) Mkdir(ctx context.Context, path vpath.Path) error {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()
	err = fsys.qualify(path, b.channel().Mkdir(ctx, path.String()))
	return err
}

// Delete removes path, recursively if isDirectory.
func (fsys *Filesystem) Delete(ctx context.Context, path vpath.Path, isDirectory bool) error {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()
	err = fsys.qualify(path, b.channel().Delete(ctx, path.String(), isDirectory))
	return err
}

// Rename performs an in-filesystem rename (used by same-fs move).
func (fsys *Filesystem) Rename(ctx context.Context, source, target vpath.Path) error {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()
	err = fsys.qualify(source, b.channel().Rename(ctx, source.String(), target.String()))
	return err
}

// Exists reports whether path exists, collapsing any I/O error to
// false per the §9 Open Question decision.
func (fsys *Filesystem) Exists(ctx context.Context, path vpath.Path) bool {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return false
	}
	defer func() { _ = b.release() }()
	return b.channel().Exists(ctx, path.String())
}

// ReadAttributes reads the POSIX attribute record of path and projects
// it through selector (spec §4.7).
func (fsys *Filesystem) ReadAttributes(ctx context.Context, path vpath.Path, selector string, followLinks bool) (map[string]fs.AttrValue, error) {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = firstErr(err, b.release()) }()
	attrs, rerr := b.channel().ReadAttributes(ctx, path.String(), followLinks)
	if rerr != nil {
		err = fsys.qualify(path, rerr)
		return nil, err
	}
	projected, perr := fs.ProjectAttributes(selector, attrs)
	if perr != nil {
		err = perr
		return nil, err
	}
	return projected, nil
}

// SetAttribute applies a single "view:name" attribute to path.
func (fsys *Filesystem) SetAttribute(ctx context.Context, path vpath.Path, selector string, value interface{}) error {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()

	attrs, rerr := b.channel().ReadAttributes(ctx, path.String(), true)
	if rerr != nil {
		err = fsys.qualify(path, rerr)
		return err
	}
	if aerr := fs.ApplyAttribute(selector, &attrs, value); aerr != nil {
		err = aerr
		return err
	}
	err = fsys.qualify(path, applyToChannel(ctx, b.channel(), path.String(), selector, attrs))
	return err
}

func applyToChannel(ctx context.Context, ch fs.Channel, path, selector string, attrs fs.Attributes) error {
	view, names, perr := fs.ParseSelector(selector)
	if perr != nil {
		return perr
	}
	name := names[0]
	switch {
	case view == fs.ViewOwner && name == "owner":
		return ch.Chown(ctx, path, attrs.Owner)
	case view == fs.ViewPosix && name == "owner":
		return ch.Chown(ctx, path, attrs.Owner)
	case view == fs.ViewPosix && name == "permissions":
		return ch.Chmod(ctx, path, attrs.Permissions)
	case view == fs.ViewBasic && name == "lastModifiedTime":
		return ch.SetModTime(ctx, path, millis(attrs.LastModified))
	case view == fs.ViewBasic && name == "lastAccessTime":
		return ch.SetAccessTime(ctx, path, millis(attrs.LastAccess))
	case view == fs.ViewBasic && name == "creationTime":
		return ch.SetCreationTime(ctx, path, millis(attrs.CreationTime))
	// posix:group falls through to default on purpose: no channel
	// backend implements a setGroup call distinct from Chown (§9 Open
	// Question 2), so it stays unsettable until one does.
	default:
		return fs.New(fs.KindUnsupportedAttribute, "attribute is not settable: "+string(view)+":"+name)
	}
}

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// CheckAccess translates modes into required permission bits against
// the owner's permission set (spec §4.5).
func (fsys *Filesystem) CheckAccess(ctx context.Context, path vpath.Path, modes fs.PermissionSet) error {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()

	attrs, rerr := b.channel().ReadAttributes(ctx, path.String(), true)
	if rerr != nil {
		err = fsys.qualify(path, rerr)
		return err
	}
	for mode := range modes {
		if !attrs.Permissions.Has(mode) {
			err = fs.NewPath(fs.KindAccessDenied, path.String(), "requested permission not granted")
			return err
		}
	}
	return nil
}

// ToAbsolutePath satisfies vpath.Filesystem: for SFTP it joins against
// the session's working directory (queried via Pwd on every call, not
// cached); for object stores an absolute path is already an identity.
func (fsys *Filesystem) ToAbsolutePath(p vpath.Path) (vpath.Path, error) {
	if p.IsAbsolute() {
		return p, nil
	}
	ctx := context.Background()
	b, err := fsys.borrow(ctx)
	if err != nil {
		return vpath.Path{}, err
	}
	defer func() { err = firstErr(err, b.release()) }()

	wd, werr := b.channel().Pwd(ctx)
	if werr != nil {
		if fs.Is(werr, fs.KindUnsupportedOperation) {
			root, _ := vpath.New(fsys, "/")
			return root.Resolve(p), nil
		}
		err = fsys.qualify(p, werr)
		return vpath.Path{}, err
	}
	root, rerr := vpath.New(fsys, wd)
	if rerr != nil {
		err = rerr
		return vpath.Path{}, err
	}
	return root.Resolve(p), nil
}

// ToRealPath resolves p to an absolute path and, where the backend
// supports it, follows a trailing symbolic-link chain.
func (fsys *Filesystem) ToRealPath(p vpath.Path) (vpath.Path, error) {
	abs, err := fsys.ToAbsolutePath(p)
	if err != nil {
		return vpath.Path{}, err
	}
	ctx := context.Background()
	b, err := fsys.borrow(ctx)
	if err != nil {
		return vpath.Path{}, err
	}
	defer func() { err = firstErr(err, b.release()) }()

	seen := map[string]struct{}{}
	current := abs
	for i := 0; i < 40; i++ {
		target, lerr := b.channel().ReadSymbolicLink(ctx, current.String())
		if lerr != nil {
			return current, nil
		}
		if _, looped := seen[current.String()]; looped {
			err = fs.NewPath(fs.KindIOFailure, current.String(), "symbolic link chain did not converge")
			return vpath.Path{}, err
		}
		seen[current.String()] = struct{}{}
		linkTarget, terr := vpath.New(fsys, target)
		if terr != nil {
			err = terr
			return vpath.Path{}, err
		}
		current = current.Resolve(linkTarget).Normalize()
	}
	return current, nil
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
