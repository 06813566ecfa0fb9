// Package handle holds the handle record data model shared by the client
// packages: handle names, record entries, the JSON record codec, Handle
// protocol response codes, and the error taxonomy.
package handle

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle is a persistent identifier of the form "prefix/suffix".
type Handle struct {
	prefix string
	suffix string
}

// Parse validates s and returns the corresponding Handle.
// A handle has exactly one "/" with a non-empty prefix and suffix.
func Parse(s string) (Handle, error) {
	if strings.Count(s, "/") != 1 {
		return Handle{}, NewError("Parse", s, ErrHandleSyntax,
			"handle must contain exactly one \"/\"")
	}
	prefix, suffix, _ := strings.Cut(s, "/")
	if prefix == "" {
		return Handle{}, NewError("Parse", s, ErrHandleSyntax, "handle has an empty prefix")
	}
	if suffix == "" {
		return Handle{}, NewError("Parse", s, ErrHandleSyntax, "handle has an empty suffix")
	}
	return Handle{prefix: prefix, suffix: suffix}, nil
}

// MustParse is like Parse but panics on invalid input.
func MustParse(s string) Handle {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// New builds a handle from its two parts.
func New(prefix, suffix string) (Handle, error) {
	return Parse(prefix + "/" + suffix)
}

// Prefix returns the naming authority part.
func (h Handle) Prefix() string {
	return h.prefix
}

// Suffix returns the local name part.
func (h Handle) Suffix() string {
	return h.suffix
}

// IsZero returns true for the zero Handle.
func (h Handle) IsZero() bool {
	return h.prefix == "" && h.suffix == ""
}

// Equal compares two handles. Handle names are case-insensitive for ASCII.
func (h Handle) Equal(other Handle) bool {
	return strings.EqualFold(h.prefix, other.prefix) &&
		strings.EqualFold(h.suffix, other.suffix)
}

func (h Handle) String() string {
	if h.IsZero() {
		return ""
	}
	return h.prefix + "/" + h.suffix
}

// IndexedHandle is a handle together with a value index, the form used for
// handle server usernames ("300:prefix/suffix").
type IndexedHandle struct {
	Index  int
	Handle Handle
}

// ParseIndexed parses "index:prefix/suffix". The string is split on the
// first ":"; the left side must be a non-negative integer and the right side
// a valid handle.
func ParseIndexed(s string) (IndexedHandle, error) {
	index, rest, ok := strings.Cut(s, ":")
	if !ok {
		return IndexedHandle{}, NewError("ParseIndexed", s, ErrHandleSyntax,
			"expected the form \"index:prefix/suffix\"")
	}
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 {
		return IndexedHandle{}, NewError("ParseIndexed", s, ErrHandleSyntax,
			"index %q is not a non-negative integer", index)
	}
	h, err := Parse(rest)
	if err != nil {
		return IndexedHandle{}, &Error{
			Op:     "ParseIndexed",
			Handle: s,
			Err:    ErrHandleSyntax,
			Msg:    "invalid handle after index",
			Cause:  err,
		}
	}
	return IndexedHandle{Index: i, Handle: h}, nil
}

func (ih IndexedHandle) String() string {
	return fmt.Sprintf("%d:%s", ih.Index, ih.Handle)
}
