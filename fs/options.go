package fs

// OpenOption is a caller-supplied flag. The vocabulary mirrors
// java.nio.file.StandardOpenOption, translated to Go constants per
// spec §4.6.
type OpenOption int

const (
	OptRead OpenOption = iota
	OptWrite
	OptAppend
	OptCreate
	OptCreateNew
	OptTruncateExisting
	OptDeleteOnClose
	OptSparse
	OptSync
	OptDSync
	OptNoFollowLinks
)

// CopyOption is a caller-supplied flag for copy/move operations.
type CopyOption int

const (
	OptReplaceExisting CopyOption = iota
	OptAtomicMove
)

func hasOpen(opts []OpenOption, want OpenOption) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}

func hasCopy(opts []CopyOption, want CopyOption) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}

// OpenOptions is the normalized, canonical form of a caller's open
// flag set (spec §3). The original option list is retained only for
// pass-through to backends that wish to inspect it.
type OpenOptions struct {
	Read          bool
	Write         bool
	Append        bool
	Create        bool
	CreateNew     bool
	DeleteOnClose bool
	Original      []OpenOption
}

// ForNewInputStream normalizes flags for a read-only stream (spec
// §4.6). Accepts READ and DELETE_ON_CLOSE, ignores SPARSE/SYNC/
// DSYNC/NOFOLLOW_LINKS, rejects anything else.
func ForNewInputStream(opts []OpenOption) (OpenOptions, error) {
	out := OpenOptions{Read: true, Original: opts}
	for _, o := range opts {
		switch o {
		case OptRead:
			out.Read = true
		case OptDeleteOnClose:
			out.DeleteOnClose = true
		case OptSparse, OptSync, OptDSync, OptNoFollowLinks:
			// ignored
		default:
			return OpenOptions{}, New(KindUnsupportedOption, "option not valid for input stream")
		}
	}
	return out, nil
}

// ForNewOutputStream normalizes flags for a write-only stream (spec
// §4.6). An empty set defaults to {CREATE, TRUNCATE_EXISTING, WRITE}.
func ForNewOutputStream(opts []OpenOption) (OpenOptions, error) {
	if len(opts) == 0 {
		return OpenOptions{Write: true, Create: true, Original: opts}, nil
	}
	out := OpenOptions{Original: opts}
	var truncate, appendFlag bool
	for _, o := range opts {
		switch o {
		case OptAppend:
			appendFlag = true
			out.Append = true
			out.Write = true
		case OptTruncateExisting:
			truncate = true
		case OptCreate:
			out.Create = true
		case OptCreateNew:
			out.CreateNew = true
		case OptDeleteOnClose:
			out.DeleteOnClose = true
		case OptWrite:
			out.Write = true
		case OptSparse, OptSync, OptDSync, OptNoFollowLinks:
			// ignored
		default:
			return OpenOptions{}, New(KindUnsupportedOption, "option not valid for output stream")
		}
	}
	if appendFlag && truncate {
		return OpenOptions{}, New(KindInvalidArgument, "append and truncate-existing are mutually exclusive")
	}
	out.Write = true
	return out, nil
}

// ForNewByteChannel normalizes flags for a combined read/write
// descriptor (spec §3, §4.6). Read+write together always fail (no
// backend supports in-place seek); append implies write-only; default
// is read when none of read/write/append are present.
func ForNewByteChannel(opts []OpenOption) (OpenOptions, error) {
	out := OpenOptions{Original: opts}
	var truncate bool
	for _, o := range opts {
		switch o {
		case OptRead:
			out.Read = true
		case OptWrite:
			out.Write = true
		case OptAppend:
			out.Append = true
			out.Write = true
		case OptTruncateExisting:
			truncate = true
		case OptCreate:
			out.Create = true
		case OptCreateNew:
			out.CreateNew = true
		case OptDeleteOnClose:
			out.DeleteOnClose = true
		case OptSparse, OptSync, OptDSync, OptNoFollowLinks:
			// ignored
		default:
			return OpenOptions{}, New(KindUnsupportedOption, "unrecognized open option")
		}
	}
	if out.Read && out.Write {
		return OpenOptions{}, New(KindInvalidArgument, "read and write cannot be combined")
	}
	if out.Append && (out.Read || truncate) {
		return OpenOptions{}, New(KindInvalidArgument, "append cannot be combined with read or truncate")
	}
	if !out.Read && !out.Write && !out.Append {
		out.Read = true
	}
	return out, nil
}

// CopyOptions is the normalized form of a copy/move flag set (spec §3).
type CopyOptions struct {
	ReplaceExisting   bool
	AtomicMoveAllowed bool
	Original          []CopyOption
}

// ForCopy normalizes flags for Filesystem.copy (spec §4.6). Accepts
// REPLACE_EXISTING only; every other CopyOption, ATOMIC_MOVE included,
// fails with KindUnsupportedOption. CopyOption has no NOFOLLOW_LINKS
// value, so no option is silently ignored here.
func ForCopy(opts []CopyOption) (CopyOptions, error) {
	out := CopyOptions{Original: opts}
	for _, o := range opts {
		switch o {
		case OptReplaceExisting:
			out.ReplaceExisting = true
		case OptAtomicMove:
			return CopyOptions{}, New(KindUnsupportedOption, "atomic-move is only valid for move")
		default:
			return CopyOptions{}, New(KindUnsupportedOption, "unrecognized copy option")
		}
	}
	return out, nil
}

// ForMove normalizes flags for Filesystem.move (spec §4.6).
// ATOMIC_MOVE is only accepted when source and target share a
// filesystem.
func ForMove(sameFs bool, opts []CopyOption) (CopyOptions, error) {
	out := CopyOptions{Original: opts}
	for _, o := range opts {
		switch o {
		case OptReplaceExisting:
			out.ReplaceExisting = true
		case OptAtomicMove:
			if !sameFs {
				return CopyOptions{}, New(KindUnsupportedOption, "atomic-move requires same filesystem")
			}
			out.AtomicMoveAllowed = true
		default:
			return CopyOptions{}, New(KindUnsupportedOption, "unrecognized copy option")
		}
	}
	return out, nil
}
