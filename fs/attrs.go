package fs

import (
	"strings"
	"time"
)

// View names a named slice of the attribute vocabulary (spec §4.5,
// §4.7, GLOSSARY).
type View string

const (
	ViewBasic View = "basic"
	ViewOwner View = "owner"
	ViewPosix View = "posix"
)

// AttrValue is one extracted attribute value, boxed so ReadAttribute
// can return a heterogeneous projection keyed by "view:name".
type AttrValue struct {
	Bool   *bool
	Int64  *int64
	String *string
	Time   *time.Time
}

func boolAttr(b bool) AttrValue   { return AttrValue{Bool: &b} }
func int64Attr(n int64) AttrValue { return AttrValue{Int64: &n} }
func stringAttr(s string) AttrValue {
	return AttrValue{String: &s}
}
func timeAttr(t *time.Time) AttrValue { return AttrValue{Time: t} }

// attrEntry describes one of the fifteen fixed attribute names: which
// view(s) it belongs to, how to extract it from an Attributes record,
// and (where applicable) how to apply a new value back.
type attrEntry struct {
	view     View
	name     string
	extract  func(Attributes) AttrValue
	applyStr func(*Attributes, string) error
	applyTS  func(*Attributes, time.Time)
}

// vocabulary is the single source of truth mapping the fifteen fixed
// attribute names across basic:*, owner:*, posix:* to extractors and
// setters on the POSIX attribute record (spec §4.7).
var vocabulary = buildVocabulary()

func buildVocabulary() []attrEntry {
	return []attrEntry{
		{view: ViewBasic, name: "isDirectory", extract: func(a Attributes) AttrValue { return boolAttr(a.IsDirectory) }},
		{view: ViewBasic, name: "isRegularFile", extract: func(a Attributes) AttrValue { return boolAttr(a.IsRegularFile) }},
		{view: ViewBasic, name: "isSymbolicLink", extract: func(a Attributes) AttrValue { return boolAttr(a.IsSymbolicLink) }},
		{view: ViewBasic, name: "isOther", extract: func(a Attributes) AttrValue { return boolAttr(a.IsOther) }},
		{view: ViewBasic, name: "size", extract: func(a Attributes) AttrValue { return int64Attr(a.Size) }},
		{
			view: ViewBasic, name: "lastModifiedTime",
			extract: func(a Attributes) AttrValue { return timeAttr(a.LastModified) },
			applyTS: func(a *Attributes, t time.Time) { a.LastModified = &t },
		},
		{
			view: ViewBasic, name: "lastAccessTime",
			extract: func(a Attributes) AttrValue { return timeAttr(a.LastAccess) },
			applyTS: func(a *Attributes, t time.Time) { a.LastAccess = &t },
		},
		{
			view: ViewBasic, name: "creationTime",
			extract: func(a Attributes) AttrValue { return timeAttr(a.CreationTime) },
			applyTS: func(a *Attributes, t time.Time) { a.CreationTime = &t },
		},
		{
			view: ViewOwner, name: "owner",
			extract: func(a Attributes) AttrValue { return stringAttr(a.Owner) },
			applyStr: func(a *Attributes, s string) error {
				a.Owner = s
				return nil
			},
		},
		{
			// Kept distinct from "owner" per spec §9's Open Question:
			// some source paths conflate group into a setOwner call;
			// this implementation always targets a separate field.
			view: ViewPosix, name: "group",
			extract: func(a Attributes) AttrValue { return stringAttr(a.Group) },
			applyStr: func(a *Attributes, s string) error {
				a.Group = s
				return nil
			},
		},
		{view: ViewPosix, name: "permissions", extract: func(a Attributes) AttrValue {
			return stringAttr(permString(a.Permissions))
		}},
		{view: ViewPosix, name: "size", extract: func(a Attributes) AttrValue { return int64Attr(a.Size) }},
		{view: ViewPosix, name: "isDirectory", extract: func(a Attributes) AttrValue { return boolAttr(a.IsDirectory) }},
		{view: ViewPosix, name: "isRegularFile", extract: func(a Attributes) AttrValue { return boolAttr(a.IsRegularFile) }},
		{
			view: ViewPosix, name: "owner",
			extract: func(a Attributes) AttrValue { return stringAttr(a.Owner) },
			applyStr: func(a *Attributes, s string) error {
				a.Owner = s
				return nil
			},
		},
	}
}

const permChars = "rwxrwxrwx"

func permString(p PermissionSet) string {
	var b strings.Builder
	for i := 0; i < 9; i++ {
		if p.Has(Permission(i)) {
			b.WriteByte(permChars[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func lookup(view View, name string) (attrEntry, bool) {
	for _, e := range vocabulary {
		if e.view == view && e.name == name {
			return e, true
		}
	}
	return attrEntry{}, false
}

func namesForView(view View) []string {
	var names []string
	for _, e := range vocabulary {
		if e.view == view {
			names = append(names, e.name)
		}
	}
	return names
}

// ParseSelector parses a "view:name[,name...]" attribute selector
// (spec §6). An omitted view defaults to basic.
func ParseSelector(selector string) (View, []string, error) {
	view := ViewBasic
	rest := selector
	if idx := strings.IndexByte(selector, ':'); idx >= 0 {
		view = View(selector[:idx])
		rest = selector[idx+1:]
	}
	switch view {
	case ViewBasic, ViewOwner, ViewPosix:
	default:
		return "", nil, New(KindUnsupportedView, "unsupported view: "+string(view))
	}
	if rest == "" {
		return "", nil, New(KindInvalidArgument, "selector has no attribute names")
	}
	names := strings.Split(rest, ",")
	return view, names, nil
}

// ProjectAttributes resolves a "view:name[,name...]" selector against
// attrs, expanding "*" into every name of the chosen view (spec §4.5).
// Returns a map keyed "view:name" to stay order-independent.
func ProjectAttributes(selector string, attrs Attributes) (map[string]AttrValue, error) {
	view, names, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	if len(names) == 1 && names[0] == "*" {
		names = namesForView(view)
	}
	out := make(map[string]AttrValue, len(names))
	for _, n := range names {
		entry, ok := lookup(view, n)
		if !ok {
			return nil, New(KindUnsupportedAttribute, "unsupported attribute: "+string(view)+":"+n)
		}
		out[string(view)+":"+n] = entry.extract(attrs)
	}
	return out, nil
}

// ApplyAttribute resolves a "view:name" selector and applies value to
// attrs in place, for use by Filesystem.setAttribute. Only string- and
// timestamp-valued attributes are settable through this entry point;
// size/isDirectory/etc. are read-only derived values.
func ApplyAttribute(selector string, attrs *Attributes, value interface{}) error {
	view, names, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	if len(names) != 1 || names[0] == "*" {
		return New(KindInvalidArgument, "setAttribute requires exactly one attribute name")
	}
	entry, ok := lookup(view, names[0])
	if !ok {
		return New(KindUnsupportedAttribute, "unsupported attribute: "+string(view)+":"+names[0])
	}
	switch v := value.(type) {
	case string:
		if entry.applyStr == nil {
			return New(KindUnsupportedAttribute, "attribute is not settable: "+string(view)+":"+names[0])
		}
		return entry.applyStr(attrs, v)
	case time.Time:
		if entry.applyTS == nil {
			return New(KindUnsupportedAttribute, "attribute is not settable: "+string(view)+":"+names[0])
		}
		entry.applyTS(attrs, v)
		return nil
	default:
		return New(KindInvalidArgument, "unsupported attribute value type")
	}
}
