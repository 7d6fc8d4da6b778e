package vfs

import (
	"context"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/vpath"
)

// Copy implements spec §4.5's copy rules 1-4. source and target may
// belong to different Filesystem instances (cross-fs mode: two
// channels are borrowed, the source is streamed through the process)
// or the same one (where a directory copy still goes through Mkdir /
// a file copy still streams, since same-fs server-side copy is not
// part of this narrower Channel contract).
func Copy(ctx context.Context, source, target vpath.Path, opts []fs.CopyOption) error {
	sourceFs, ok := source.Filesystem().(*Filesystem)
	if !ok {
		return fs.New(fs.KindInvalidArgument, "source path has no owning vfs.Filesystem")
	}
	targetFs, ok := target.Filesystem().(*Filesystem)
	if !ok {
		return fs.New(fs.KindInvalidArgument, "target path has no owning vfs.Filesystem")
	}

	sameFs := sourceFs.Identity() == targetFs.Identity()
	normalized, err := fs.ForCopy(opts)
	if err != nil {
		return err
	}

	if sameFs {
		realSource, err := source.ToRealPath()
		if err != nil {
			return err
		}
		realTarget, err := target.ToRealPath()
		if err != nil {
			return err
		}
		if realSource.Equals(realTarget) {
			return nil // rule 2: equal real paths within one filesystem is a no-op
		}
	}

	b, err := sourceFs.borrow(ctx)
	if err != nil {
		return err
	}
	srcAttrs, err := b.channel().ReadAttributes(ctx, source.String(), false)
	if err != nil {
		_ = b.release()
		return sourceFs.qualify(source, err)
	}
	if srcAttrs.IsSymbolicLink && !sameFs {
		_ = b.release()
		return fs.NewPath(fs.KindUnsupportedOperation, source.String(), "a symbolic link cannot cross filesystems")
	}

	if err := handleExistingTarget(ctx, targetFs, target, normalized.ReplaceExisting); err != nil {
		_ = b.release()
		return err
	}

	if srcAttrs.IsDirectory {
		releaseErr := b.release()
		if mkErr := targetFs.Mkdir(ctx, target); mkErr != nil {
			return firstErr(mkErr, releaseErr)
		}
		return releaseErr
	}

	rc, err := b.channel().NewInputStream(ctx, source.String(), fs.OpenOptions{Read: true})
	if err != nil {
		releaseErr := b.release()
		return firstErr(sourceFs.qualify(source, err), releaseErr)
	}
	storeErr := targetFs.StoreFile(ctx, target, rc, nil)
	closeErr := rc.Close()
	releaseErr := b.release()
	return firstErr(storeErr, firstErr(closeErr, releaseErr))
}

func handleExistingTarget(ctx context.Context, targetFs *Filesystem, target vpath.Path, replaceExisting bool) error {
	if !targetFs.Exists(ctx, target) {
		return nil
	}
	if !replaceExisting {
		return fs.NewPath(fs.KindAlreadyExists, target.String(), "target already exists")
	}
	b, err := targetFs.borrow(ctx)
	if err != nil {
		return err
	}
	defer func() { err = firstErr(err, b.release()) }()
	attrs, aerr := b.channel().ReadAttributes(ctx, target.String(), false)
	if aerr != nil {
		err = targetFs.qualify(target, aerr)
		return err
	}
	err = targetFs.qualify(target, b.channel().Delete(ctx, target.String(), attrs.IsDirectory))
	return err
}

// Move implements spec §4.5 rule 5: a same-filesystem rename, or a
// cross-filesystem copy followed by a delete of the source. The
// source is retained if the copy half fails.
func Move(ctx context.Context, source, target vpath.Path, opts []fs.CopyOption) error {
	sourceFs, ok := source.Filesystem().(*Filesystem)
	if !ok {
		return fs.New(fs.KindInvalidArgument, "source path has no owning vfs.Filesystem")
	}
	targetFs, ok := target.Filesystem().(*Filesystem)
	if !ok {
		return fs.New(fs.KindInvalidArgument, "target path has no owning vfs.Filesystem")
	}
	sameFs := sourceFs.Identity() == targetFs.Identity()

	if _, err := fs.ForMove(sameFs, opts); err != nil {
		return err
	}

	if sameFs {
		return sourceFs.Rename(ctx, source, target)
	}

	copyOpts := make([]fs.CopyOption, 0, len(opts))
	for _, o := range opts {
		if o == fs.OptReplaceExisting {
			copyOpts = append(copyOpts, o)
		}
	}
	if err := Copy(ctx, source, target, copyOpts); err != nil {
		return err
	}
	srcAttrs, err := readAttrsForDelete(ctx, sourceFs, source)
	if err != nil {
		return err
	}
	return sourceFs.Delete(ctx, source, srcAttrs.IsDirectory)
}

func readAttrsForDelete(ctx context.Context, fsys *Filesystem, path vpath.Path) (fs.Attributes, error) {
	b, err := fsys.borrow(ctx)
	if err != nil {
		return fs.Attributes{}, err
	}
	defer func() { err = firstErr(err, b.release()) }()
	attrs, aerr := b.channel().ReadAttributes(ctx, path.String(), false)
	if aerr != nil {
		err = fsys.qualify(path, aerr)
		return fs.Attributes{}, err
	}
	return attrs, nil
}
