// Package vpath implements the hierarchical path algebra of spec §4.4
// (component D): a value type carrying a back-reference to its owning
// filesystem and a normalized, slash-separated string, with a lazily
// computed cache of name-segment offsets.
package vpath

import (
	"strings"
	"sync"

	"github.com/nautilusfs/vfscore/fs"
)

const separator = "/"

// Filesystem is the minimal contract a Path's owning filesystem must
// satisfy. vfs.Filesystem implements it; Path never looks any deeper
// than this, keeping this package independent of the dispatcher.
type Filesystem interface {
	// Identity distinguishes filesystem instances for Path equality and
	// startsWith/endsWith, independent of their string representation.
	Identity() string
	// ToAbsolutePath resolves p against this filesystem's notion of a
	// current/working directory (SFTP) or is an identity (object stores).
	ToAbsolutePath(p Path) (Path, error)
	// ToRealPath additionally resolves symbolic link chains where the
	// backend supports them.
	ToRealPath(p Path) (Path, error)
}

// pathState holds the lazily computed segment-offset cache for one
// normalized string, referenced by pointer so that copying a Path (an
// ordinary value type, per spec §4.4) never copies the sync.Once
// guarding it: every copy of the same logical path shares one cache,
// and that cache is actually populated only once (spec §4.4 "computed
// lazily and cached"; §5 "published safely under the path's own
// intrinsic lock").
type pathState struct {
	once    sync.Once
	offsets []int
}

// Path is an immutable value object: a normalized string plus the
// filesystem it is rooted in. The zero Path is not valid; always
// construct with New.
type Path struct {
	filesystem Filesystem
	normalized string

	state *pathState
}

// newPath builds a Path carrying its own fresh, not-yet-computed offset
// cache. Every function in this file that produces a Path from a new
// normalized string goes through this constructor rather than a bare
// struct literal, so state is never left nil.
func newPath(fsys Filesystem, normalized string) Path {
	return Path{filesystem: fsys, normalized: normalized, state: &pathState{}}
}

// New constructs a Path on fsys from raw, normalizing separators (spec
// §4.4: "collapses consecutive separators, rejects NUL").
func New(fsys Filesystem, raw string) (Path, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return Path{}, fs.New(fs.KindInvalidArgument, "path contains a NUL character")
	}
	return newPath(fsys, collapseSeparators(raw)), nil
}

func collapseSeparators(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastWasSep := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '/' || c == '\\' {
			if lastWasSep {
				continue
			}
			b.WriteByte('/')
			lastWasSep = true
			continue
		}
		b.WriteByte(c)
		lastWasSep = false
	}
	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	if out == "" {
		out = "."
	}
	return out
}

// String returns the path's normalized string representation.
func (p Path) String() string { return p.normalized }

// Filesystem returns the filesystem this path is rooted in.
func (p Path) Filesystem() Filesystem { return p.filesystem }

// IsAbsolute reports whether the path starts with the separator.
func (p Path) IsAbsolute() bool {
	return strings.HasPrefix(p.normalized, separator)
}

// GetRoot returns the separator (as a Path) if p is absolute, or
// (Path{}, false) otherwise.
func (p Path) GetRoot() (Path, bool) {
	if !p.IsAbsolute() {
		return Path{}, false
	}
	return newPath(p.filesystem, separator), true
}

// segmentOffsets lazily computes and caches the start index of each
// name segment (spec §4.4: "computed lazily and cached"). The cache
// lives in the shared *pathState so it survives copying p by value and
// is computed at most once no matter how many copies ask for it.
func (p Path) segmentOffsets() []int {
	p.state.once.Do(func() {
		s := p.normalized
		start := 0
		if strings.HasPrefix(s, separator) {
			start = 1
		}
		if start >= len(s) {
			return
		}
		offsets := []int{start}
		for i := start; i < len(s); i++ {
			if s[i] == '/' {
				offsets = append(offsets, i+1)
			}
		}
		p.state.offsets = offsets
	})
	return p.state.offsets
}

// NameCount returns the number of name segments.
func (p Path) NameCount() int {
	return len(p.segmentOffsets())
}

func (p Path) segment(i int) string {
	offsets := p.segmentOffsets()
	s := p.normalized
	start := offsets[i]
	end := len(s)
	if i+1 < len(offsets) {
		end = offsets[i+1] - 1
	}
	return s[start:end]
}

// GetName returns the i'th name segment as a single-segment relative
// Path. Fails with *invalid-argument* if i is out of bounds.
func (p Path) GetName(i int) (Path, error) {
	n := p.NameCount()
	if i < 0 || i >= n {
		return Path{}, fs.New(fs.KindInvalidArgument, "name index out of range")
	}
	return newPath(p.filesystem, p.segment(i)), nil
}

// Subpath returns the slice of name segments [begin, end) joined back
// into a relative Path. Fails with *invalid-argument* on bad bounds.
func (p Path) Subpath(begin, end int) (Path, error) {
	n := p.NameCount()
	if begin < 0 || end > n || begin >= end {
		return Path{}, fs.New(fs.KindInvalidArgument, "subpath bounds out of range")
	}
	segs := make([]string, 0, end-begin)
	for i := begin; i < end; i++ {
		segs = append(segs, p.segment(i))
	}
	return newPath(p.filesystem, strings.Join(segs, separator)), nil
}

// GetParent returns the substring before the last segment, or
// (Path{}, false) if p has zero or one segment and is not rooted
// (spec §4.4).
func (p Path) GetParent() (Path, bool) {
	n := p.NameCount()
	if n == 0 {
		return Path{}, false
	}
	if n == 1 {
		if root, ok := p.GetRoot(); ok {
			return root, true
		}
		return Path{}, false
	}
	parent, err := p.Subpath(0, n-1)
	if err != nil {
		return Path{}, false
	}
	if p.IsAbsolute() {
		parent.normalized = separator + parent.normalized
	}
	return parent, true
}

// GetFileName returns the last name segment, or (Path{}, false) for
// the root. The empty path is stored as "." and yields "." itself.
func (p Path) GetFileName() (Path, bool) {
	n := p.NameCount()
	if n == 0 {
		return Path{}, false
	}
	name, err := p.GetName(n - 1)
	if err != nil {
		return Path{}, false
	}
	return name, true
}

func sameFilesystem(a, b Filesystem) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Identity() == b.Identity()
}

// StartsWith reports whether p begins with other's name segments,
// segment-aligned (not a bare string prefix) and on the same
// filesystem (spec §4.4).
func (p Path) StartsWith(other Path) bool {
	if !sameFilesystem(p.filesystem, other.filesystem) {
		return false
	}
	if other.IsAbsolute() != p.IsAbsolute() {
		return false
	}
	on := other.NameCount()
	if on > p.NameCount() {
		return false
	}
	for i := 0; i < on; i++ {
		if p.segment(i) != other.segment(i) {
			return false
		}
	}
	return true
}

// EndsWith reports whether p ends with other's name segments,
// segment-aligned and on the same filesystem.
func (p Path) EndsWith(other Path) bool {
	if !sameFilesystem(p.filesystem, other.filesystem) {
		return false
	}
	pn, on := p.NameCount(), other.NameCount()
	if on > pn {
		return false
	}
	if other.IsAbsolute() && !(on == pn && p.IsAbsolute()) {
		return false
	}
	offset := pn - on
	for i := 0; i < on; i++ {
		if p.segment(offset+i) != other.segment(i) {
			return false
		}
	}
	return true
}

// Normalize walks the segments, dropping "." entries, popping on ".."
// when a non-".." predecessor exists, preserving leading ".." for
// relative paths and discarding leading ".." when absolute (spec §4.4).
func (p Path) Normalize() Path {
	absolute := p.IsAbsolute()
	n := p.NameCount()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		seg := p.segment(i)
		switch seg {
		case ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}
			if absolute {
				continue
			}
			out = append(out, seg)
		default:
			out = append(out, seg)
		}
	}
	normalized := strings.Join(out, separator)
	if absolute {
		normalized = separator + normalized
	}
	if normalized == "" {
		normalized = "."
	}
	return newPath(p.filesystem, normalized)
}

// Resolve returns other if it is absolute; other (on p's filesystem) if
// p is empty (or "."); otherwise the concatenation of p and other with
// a single separator (spec §4.4).
func (p Path) Resolve(other Path) Path {
	if other.IsAbsolute() {
		return other
	}
	if p.normalized == "" || p.normalized == "." {
		return newPath(p.filesystem, other.normalized)
	}
	joined := p.normalized
	if other.normalized != "" && other.normalized != "." {
		joined = strings.TrimSuffix(joined, separator) + separator + other.normalized
	}
	return newPath(p.filesystem, joined)
}

// Relativize computes a relative path r such that
// p.Resolve(r).Normalize() == other.Normalize(), requiring both paths
// to be absolute or both relative (spec §4.4).
func (p Path) Relativize(other Path) (Path, error) {
	if p.IsAbsolute() != other.IsAbsolute() {
		return Path{}, fs.New(fs.KindInvalidArgument, "relativize requires both paths to be absolute or both relative")
	}
	a := p.Normalize()
	b := other.Normalize()
	common := 0
	an, bn := a.NameCount(), b.NameCount()
	for common < an && common < bn && a.segment(common) == b.segment(common) {
		common++
	}
	segs := make([]string, 0, (an-common)+(bn-common))
	for i := common; i < an; i++ {
		segs = append(segs, "..")
	}
	for i := common; i < bn; i++ {
		segs = append(segs, b.segment(i))
	}
	normalized := strings.Join(segs, separator)
	if normalized == "" {
		normalized = "."
	}
	return newPath(p.filesystem, normalized), nil
}

// Iterator returns every name segment in order, as single-segment
// relative Paths.
func (p Path) Iterator() []Path {
	n := p.NameCount()
	out := make([]Path, n)
	for i := 0; i < n; i++ {
		out[i] = newPath(p.filesystem, p.segment(i))
	}
	return out
}

// CompareTo orders p and other lexicographically on their normalized
// strings (spec §4.4); meaningful only within one filesystem.
func (p Path) CompareTo(other Path) int {
	return strings.Compare(p.normalized, other.normalized)
}

// Equals reports whether p and other share the same filesystem
// identity and identical normalized string.
func (p Path) Equals(other Path) bool {
	return sameFilesystem(p.filesystem, other.filesystem) && p.normalized == other.normalized
}

// ToAbsolutePath delegates to the owning filesystem.
func (p Path) ToAbsolutePath() (Path, error) {
	if p.filesystem == nil {
		return Path{}, fs.New(fs.KindInvalidArgument, "path has no owning filesystem")
	}
	return p.filesystem.ToAbsolutePath(p)
}

// ToRealPath delegates to the owning filesystem, resolving symbolic
// link chains where supported.
func (p Path) ToRealPath() (Path, error) {
	if p.filesystem == nil {
		return Path{}, fs.New(fs.KindInvalidArgument, "path has no owning filesystem")
	}
	return p.filesystem.ToRealPath(p)
}

// ToFile is unsupported: this module has no local-file projection of a
// remote path (spec §4.4).
func (p Path) ToFile() error {
	return fs.New(fs.KindUnsupportedOperation, "toFile is not supported for a remote path")
}
