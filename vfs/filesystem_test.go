package vfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/vpath"
)

func newTestFilesystem(t *testing.T, ch *fakeChannel) *Filesystem {
	t.Helper()
	fsys, err := NewFilesystem(context.Background(), "fake://test", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys
}

func mustPath(t *testing.T, fsys *Filesystem, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.New(fsys, raw)
	require.NoError(t, err)
	return p
}

func TestStoreFileAndReadRoundTrip(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()

	path := mustPath(t, fsys, "/a/b.txt")
	err := fsys.StoreFile(ctx, path, bytes.NewBufferString("hello"), nil)
	require.NoError(t, err)

	rc, err := fsys.NewInputStream(ctx, path, nil)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
}

func TestNewOutputStreamWritesOnClose(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	path := mustPath(t, fsys, "/out.txt")

	wc, err := fsys.NewOutputStream(ctx, path, nil)
	require.NoError(t, err)
	_, err = wc.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	rc, err := fsys.NewInputStream(ctx, path, nil)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(data))
}

func TestNewInputStreamMissingFileReturnsQualifiedError(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	path := mustPath(t, fsys, "/nope.txt")

	_, err := fsys.NewInputStream(ctx, path, nil)
	require.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindNotFound))

	var perr *fs.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/nope.txt", perr.Path)
}

func TestExistsCollapsesErrorToFalse(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	assert.False(t, fsys.Exists(ctx, mustPath(t, fsys, "/missing")))

	require.NoError(t, fsys.Mkdir(ctx, mustPath(t, fsys, "/d")))
	assert.True(t, fsys.Exists(ctx, mustPath(t, fsys, "/d")))
}

func TestReadAttributesProjectsSelector(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	path := mustPath(t, fsys, "/f.txt")
	require.NoError(t, fsys.StoreFile(ctx, path, bytes.NewBufferString("xyz"), nil))

	projected, err := fsys.ReadAttributes(ctx, path, "basic:size,isRegularFile", true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), *projected["basic:size"].Int64)
	assert.True(t, *projected["basic:isRegularFile"].Bool)
}

func TestSetAttributeAppliesOwner(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	path := mustPath(t, fsys, "/f.txt")
	require.NoError(t, fsys.StoreFile(ctx, path, bytes.NewBufferString("x"), nil))

	err := fsys.SetAttribute(ctx, path, "owner:owner", "bob")
	require.Error(t, err) // fakeChannel.Chown is unsupported
	assert.True(t, fs.Is(err, fs.KindUnsupportedOperation))
}

func TestCheckAccessDeniesMissingPermission(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	path := mustPath(t, fsys, "/f.txt")
	require.NoError(t, fsys.StoreFile(ctx, path, bytes.NewBufferString("x"), nil))

	err := fsys.CheckAccess(ctx, path, fs.NewPermissionSet(fs.PermOwnerRead, fs.PermOwnerExecute))
	require.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindAccessDenied))

	err = fsys.CheckAccess(ctx, path, fs.NewPermissionSet(fs.PermOwnerRead))
	assert.NoError(t, err)
}

func TestToAbsolutePathUsesPwdWhenAvailable(t *testing.T) {
	ch := newFakeChannel()
	ch.wd = "/home/alice"
	fsys := newTestFilesystem(t, ch)

	rel := mustPath(t, fsys, "sub/file.txt")
	abs, err := fsys.ToAbsolutePath(rel)
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/sub/file.txt", abs.String())
}

func TestToAbsolutePathFallsBackToRootWhenPwdUnsupported(t *testing.T) {
	ch := newFakeChannel()
	ch.noPwd = true
	fsys := newTestFilesystem(t, ch)

	rel := mustPath(t, fsys, "sub/file.txt")
	abs, err := fsys.ToAbsolutePath(rel)
	require.NoError(t, err)
	assert.Equal(t, "/sub/file.txt", abs.String())
}

func TestToRealPathFollowsSymlinkChain(t *testing.T) {
	ch := newFakeChannel()
	ch.links["/link"] = "/real"
	ch.files["/real"] = []byte("data")
	fsys := newTestFilesystem(t, ch)

	real, err := fsys.ToRealPath(mustPath(t, fsys, "/link"))
	require.NoError(t, err)
	assert.Equal(t, "/real", real.String())
}

func TestToRealPathDetectsLoop(t *testing.T) {
	ch := newFakeChannel()
	ch.links["/a"] = "/b"
	ch.links["/b"] = "/a"
	fsys := newTestFilesystem(t, ch)

	_, err := fsys.ToRealPath(mustPath(t, fsys, "/a"))
	require.Error(t, err)
}

func TestCloseShutsDownPool(t *testing.T) {
	ch := newFakeChannel()
	fsys, err := NewFilesystem(context.Background(), "fake://closed", fs.DefaultPoolConfig(), func(ctx context.Context) (fs.Channel, error) {
		return ch, nil
	})
	require.NoError(t, err)
	require.NoError(t, fsys.Close())

	err = fsys.Mkdir(context.Background(), mustPath(t, fsys, "/x"))
	assert.Error(t, err)
	assert.True(t, fs.Is(err, fs.KindPoolShutdown))
}
