package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFS struct{ id string }

func (f *fakeFS) Identity() string { return f.id }
func (f *fakeFS) ToAbsolutePath(p Path) (Path, error) {
	if p.IsAbsolute() {
		return p, nil
	}
	root, _ := New(p.Filesystem(), "/")
	return root.Resolve(p), nil
}
func (f *fakeFS) ToRealPath(p Path) (Path, error) { return p, nil }

func mustPath(t *testing.T, fsys Filesystem, raw string) Path {
	t.Helper()
	p, err := New(fsys, raw)
	require.NoError(t, err)
	return p
}

func TestNormalizeCollapsesSeparatorsAndRejectsNUL(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "a//b///c/")
	assert.Equal(t, "a/b/c", p.String())

	_, err := New(fsys, "a\x00b")
	assert.Error(t, err)
}

func TestNameCountAndSegments(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/b/c")
	assert.Equal(t, 3, p.NameCount())
	name, err := p.GetName(1)
	require.NoError(t, err)
	assert.Equal(t, "b", name.String())

	_, err = p.GetName(3)
	assert.Error(t, err)
}

func TestGetParentResolveIdentity(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/b/c")
	parent, ok := p.GetParent()
	require.True(t, ok)
	name, ok := p.GetFileName()
	require.True(t, ok)
	assert.True(t, parent.Resolve(name).Equals(p))
}

func TestGetParentOfSingleSegmentRelativeIsNone(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "a")
	_, ok := p.GetParent()
	assert.False(t, ok)
}

func TestStartsWithEndsWithSegmentAligned(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/ab/cd")
	prefix := mustPath(t, fsys, "/ab")
	assert.True(t, p.StartsWith(prefix))

	notPrefix := mustPath(t, fsys, "/a")
	assert.False(t, p.StartsWith(notPrefix), "segment-aligned, not a bare string prefix")

	suffix := mustPath(t, fsys, "cd")
	assert.True(t, p.EndsWith(suffix))
}

func TestStartsWithRequiresSameFilesystem(t *testing.T) {
	fsA := &fakeFS{id: "a"}
	fsB := &fakeFS{id: "b"}
	p := mustPath(t, fsA, "/x/y")
	other := mustPath(t, fsB, "/x")
	assert.False(t, p.StartsWith(other))
}

func TestNormalizeDropsDotAndPopsDotDot(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/./b/../c")
	assert.Equal(t, "/a/c", p.Normalize().String())

	rel := mustPath(t, fsys, "../a/../../b")
	assert.Equal(t, "../../b", rel.Normalize().String())
}

func TestNormalizeIdempotent(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/../b/./c")
	once := p.Normalize()
	twice := once.Normalize()
	assert.True(t, once.Equals(twice))
}

func TestResolveRelativizeRoundTrip(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/b")
	q := mustPath(t, fsys, "/a/b/c/d")

	rel, err := p.Relativize(q)
	require.NoError(t, err)
	assert.True(t, p.Resolve(rel).Normalize().Equals(q.Normalize()))
}

func TestRelativizeRequiresMatchingAbsoluteness(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	abs := mustPath(t, fsys, "/a")
	rel := mustPath(t, fsys, "b")
	_, err := abs.Relativize(rel)
	assert.Error(t, err)
}

func TestIteratorYieldsEveryNameSegment(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/b/c")
	names := p.Iterator()
	require.Len(t, names, p.NameCount())
	joined := ""
	for i, n := range names {
		if i > 0 {
			joined += "/"
		}
		joined += n.String()
	}
	assert.Equal(t, "a/b/c", joined)
}

func TestEqualsRequiresSameFilesystemIdentity(t *testing.T) {
	fsA := &fakeFS{id: "a"}
	fsB := &fakeFS{id: "b"}
	p1 := mustPath(t, fsA, "/x")
	p2 := mustPath(t, fsB, "/x")
	assert.False(t, p1.Equals(p2))

	p3 := mustPath(t, fsA, "/x")
	assert.True(t, p1.Equals(p3))
}

func TestToAbsolutePathDelegatesToFilesystem(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "rel/path")
	abs, err := p.ToAbsolutePath()
	require.NoError(t, err)
	assert.Equal(t, "/rel/path", abs.String())
}

func TestToFileIsUnsupported(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a")
	assert.Error(t, p.ToFile())
}

// TestSegmentOffsetCacheSurvivesValueCopy guards against the offset
// cache silently recomputing (and never actually caching) once a Path
// is passed or returned by value, which is how this type is used
// everywhere (spec §4.4 treats Path as an ordinary value object).
func TestSegmentOffsetCacheSurvivesValueCopy(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/one/two/three")

	copy1 := p
	copy2 := p
	assert.Equal(t, 3, copy1.NameCount())
	assert.Equal(t, 3, copy2.NameCount())
	assert.Same(t, p.state, copy1.state)
	assert.Same(t, p.state, copy2.state)

	name, err := copy2.GetName(1)
	require.NoError(t, err)
	assert.Equal(t, "two", name.String())
}

// TestNormalizeProducesIndependentCache checks the other side of the
// same invariant: a Path derived from p with a different normalized
// string must not share p's cache, since the segment offsets differ.
func TestNormalizeProducesIndependentCache(t *testing.T) {
	fsys := &fakeFS{id: "a"}
	p := mustPath(t, fsys, "/a/./b")
	normalized := p.Normalize()

	assert.NotSame(t, p.state, normalized.state)
	assert.Equal(t, 3, p.NameCount())
	assert.Equal(t, 2, normalized.NameCount())
}
