package vfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilusfs/vfscore/fs"
	"github.com/nautilusfs/vfscore/vpath"
)

func TestDirectoryStreamFiltersDotEntries(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()

	require.NoError(t, fsys.StoreFile(ctx, mustPath(t, fsys, "/dir/a.txt"), bytes.NewBufferString("1"), nil))
	require.NoError(t, fsys.StoreFile(ctx, mustPath(t, fsys, "/dir/b.txt"), bytes.NewBufferString("2"), nil))
	// Synthesize "." / ".." entries a misbehaving backend might return.
	ch.dirs["/dir/."] = true
	ch.dirs["/dir/.."] = true

	stream, err := fsys.NewDirectoryStream(ctx, mustPath(t, fsys, "/dir"), nil)
	require.NoError(t, err)

	entries, err := stream.Iterator()
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.String())
	}
	assert.ElementsMatch(t, []string{"/dir/a.txt", "/dir/b.txt"}, names)
	assert.NotContains(t, names, "/dir/.")
	assert.NotContains(t, names, "/dir/..")
}

func TestDirectoryStreamIteratorIsSingleUse(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	require.NoError(t, fsys.Mkdir(ctx, mustPath(t, fsys, "/dir")))

	stream, err := fsys.NewDirectoryStream(ctx, mustPath(t, fsys, "/dir"), nil)
	require.NoError(t, err)

	_, err = stream.Iterator()
	require.NoError(t, err)

	_, err = stream.Iterator()
	require.Error(t, err)
}

func TestDirectoryStreamRejectsIterationAfterClose(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	require.NoError(t, fsys.Mkdir(ctx, mustPath(t, fsys, "/dir")))

	stream, err := fsys.NewDirectoryStream(ctx, mustPath(t, fsys, "/dir"), nil)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	_, err = stream.Iterator()
	require.Error(t, err)
}

func TestDirectoryStreamAppliesAcceptFilter(t *testing.T) {
	ch := newFakeChannel()
	fsys := newTestFilesystem(t, ch)
	ctx := context.Background()
	require.NoError(t, fsys.StoreFile(ctx, mustPath(t, fsys, "/dir/keep.txt"), bytes.NewBufferString("1"), nil))
	require.NoError(t, fsys.StoreFile(ctx, mustPath(t, fsys, "/dir/skip.txt"), bytes.NewBufferString("2"), nil))

	accept := func(p vpath.Path, _ fs.Attributes) bool {
		return p.String() == "/dir/keep.txt"
	}
	stream, err := fsys.NewDirectoryStream(ctx, mustPath(t, fsys, "/dir"), accept)
	require.NoError(t, err)

	entries, err := stream.Iterator()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/dir/keep.txt", entries[0].String())
}
