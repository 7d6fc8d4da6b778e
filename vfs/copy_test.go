package vfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilusfs/vfscore/fs"
)

func TestCopySameFilesystemFile(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()

	src := mustPath(t, fsys, "/src.txt")
	dst := mustPath(t, fsys, "/dst.txt")
	require.NoError(t, fsys.StoreFile(ctx, src, bytes.NewBufferString("payload"), nil))

	require.NoError(t, Copy(ctx, src, dst, nil))

	rc, err := fsys.NewInputStream(ctx, dst, nil)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(data))
}

func TestCopyEqualRealPathsIsNoOp(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	p := mustPath(t, fsys, "/same.txt")
	require.NoError(t, fsys.StoreFile(ctx, p, bytes.NewBufferString("x"), nil))

	require.NoError(t, Copy(ctx, p, p, nil))
}

func TestCopyFailsWhenTargetExistsWithoutReplaceExisting(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	src := mustPath(t, fsys, "/a.txt")
	dst := mustPath(t, fsys, "/b.txt")
	require.NoError(t, fsys.StoreFile(ctx, src, bytes.NewBufferString("1"), nil))
	require.NoError(t, fsys.StoreFile(ctx, dst, bytes.NewBufferString("2"), nil))

	err := Copy(ctx, src, dst, nil)
	require.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindAlreadyExists))
}

func TestCopyReplacesExistingTargetWhenRequested(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	src := mustPath(t, fsys, "/a.txt")
	dst := mustPath(t, fsys, "/b.txt")
	require.NoError(t, fsys.StoreFile(ctx, src, bytes.NewBufferString("new"), nil))
	require.NoError(t, fsys.StoreFile(ctx, dst, bytes.NewBufferString("old"), nil))

	require.NoError(t, Copy(ctx, src, dst, []fs.CopyOption{fs.OptReplaceExisting}))

	rc, err := fsys.NewInputStream(ctx, dst, nil)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "new", string(data))
}

func TestCopyDirectoryCreatesTargetDirectory(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	src := mustPath(t, fsys, "/srcdir")
	dst := mustPath(t, fsys, "/dstdir")
	require.NoError(t, fsys.Mkdir(ctx, src))

	require.NoError(t, Copy(ctx, src, dst, nil))
	assert.True(t, fsys.Exists(ctx, dst))
}

func TestCopyRejectsSymlinkAcrossFilesystems(t *testing.T) {
	ch1 := newFakeChannel()
	ch1.links["/link"] = "/real"
	fsys1 := newTestFilesystem(t, ch1)

	ch2 := newFakeChannel()
	fsys2, err := NewFilesystem(context.Background(), "fake://other", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch2, nil
	})
	require.NoError(t, err)
	defer fsys2.Close()

	src := mustPath(t, fsys1, "/link")
	dst := mustPath(t, fsys2, "/link-copy")

	err = Copy(context.Background(), src, dst, nil)
	require.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindUnsupportedOperation))
}

func TestMoveSameFilesystemIsRename(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	src := mustPath(t, fsys, "/a.txt")
	dst := mustPath(t, fsys, "/b.txt")
	require.NoError(t, fsys.StoreFile(ctx, src, bytes.NewBufferString("move-me"), nil))

	require.NoError(t, Move(ctx, src, dst, nil))
	assert.False(t, fsys.Exists(ctx, src))
	assert.True(t, fsys.Exists(ctx, dst))
}

func TestMoveCrossFilesystemRetainsSourceOnCopyFailure(t *testing.T) {
	ch1 := newFakeChannel()
	fsys1 := newTestFilesystem(t, ch1)

	ch2 := newFakeChannel()
	fsys2, err := NewFilesystem(context.Background(), "fake://moveother", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch2, nil
	})
	require.NoError(t, err)
	defer fsys2.Close()

	ctx := context.Background()
	src := mustPath(t, fsys1, "/a.txt")
	dst := mustPath(t, fsys2, "/b.txt")
	require.NoError(t, fsys1.StoreFile(ctx, src, bytes.NewBufferString("1"), nil))
	require.NoError(t, fsys2.StoreFile(ctx, dst, bytes.NewBufferString("existing"), nil))

	err = Move(ctx, src, dst, nil) // no ReplaceExisting: copy half fails
	require.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindAlreadyExists))
	assert.True(t, fsys1.Exists(ctx, src), "source must survive a failed cross-fs move")
}

func TestMoveCrossFilesystemDeletesSourceOnSuccess(t *testing.T) {
	ch1 := newFakeChannel()
	fsys1 := newTestFilesystem(t, ch1)

	ch2 := newFakeChannel()
	fsys2, err := NewFilesystem(context.Background(), "fake://moveok", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch2, nil
	})
	require.NoError(t, err)
	defer fsys2.Close()

	ctx := context.Background()
	src := mustPath(t, fsys1, "/a.txt")
	dst := mustPath(t, fsys2, "/b.txt")
	require.NoError(t, fsys1.StoreFile(ctx, src, bytes.NewBufferString("1"), nil))

	require.NoError(t, Move(ctx, src, dst, nil))
	assert.False(t, fsys1.Exists(ctx, src))
	assert.True(t, fsys2.Exists(ctx, dst))
}

func TestMoveRejectsAtomicAcrossFilesystems(t *testing.T) {
	ch1 := newFakeChannel()
	fsys1 := newTestFilesystem(t, ch1)
	ch2 := newFakeChannel()
	fsys2, err := NewFilesystem(context.Background(), "fake://atomic", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch2, nil
	})
	require.NoError(t, err)
	defer fsys2.Close()

	src := mustPath(t, fsys1, "/a.txt")
	dst := mustPath(t, fsys2, "/b.txt")
	err = Move(context.Background(), src, dst, []fs.CopyOption{fs.OptAtomicMove})
	require.Error(t, err)
}
