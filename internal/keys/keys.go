// Package keys models pubky:// addresses.
//
// A key addresses one object on a homeserver:
//
//	pubky://<owner>/<path/segments...>
//
// Keys are case-sensitive and '/'-separated. A trailing separator marks a
// directory prefix. The only subtree the owner can write to is /pub/.
package keys

import (
	"strings"

	"github.com/gillohner/pubky-tools/internal/errs"
)

const (
	// Scheme is the URI scheme prefix of every key.
	Scheme = "pubky://"

	// Separator splits path segments.
	Separator = "/"

	// PubPrefix roots the writable subtree of an owner.
	PubPrefix = "/pub/"
)

// Key is a parsed pubky:// address.
type Key struct {
	owner string
	path  string // always starts with "/"; "/" alone is the owner root
}

// Parse validates raw and splits it into owner and path.
func Parse(raw string) (Key, error) {
	if !strings.HasPrefix(raw, Scheme) {
		return Key{}, errs.Newf(errs.ErrKindValidation, "key %q does not start with %s", raw, Scheme)
	}

	rest := raw[len(Scheme):]
	if rest == "" {
		return Key{}, errs.New(errs.ErrKindValidation, "key has no owner")
	}

	owner, path, found := strings.Cut(rest, Separator)
	if owner == "" {
		return Key{}, errs.Newf(errs.ErrKindValidation, "key %q has an empty owner", raw)
	}
	if !found {
		return Key{owner: owner, path: Separator}, nil
	}

	return Key{owner: owner, path: Separator + path}, nil
}

// MustParse is Parse for statically known keys; it panics on invalid input.
// Intended for tests and package-level constants only.
func MustParse(raw string) Key {
	k, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return k
}

// UserRoot returns the root key of an owner.
func UserRoot(owner string) Key {
	return Key{owner: owner, path: Separator}
}

// PubRoot returns the writable /pub/ root of an owner.
func PubRoot(owner string) Key {
	return Key{owner: owner, path: PubPrefix}
}

// Owner returns the owner identity the key belongs to.
func (k Key) Owner() string {
	return k.owner
}

// Path returns the slash-rooted path below the owner, e.g. "/pub/notes/a.txt".
func (k Key) Path() string {
	return k.path
}

// String reassembles the full pubky:// address.
func (k Key) String() string {
	return Scheme + k.owner + k.path
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.owner == "" && k.path == ""
}

// IsDirectory reports whether the key addresses a directory prefix.
func (k Key) IsDirectory() bool {
	return strings.HasSuffix(k.path, Separator)
}

// InPub reports whether the key lies inside the owner's writable subtree.
func (k Key) InPub() bool {
	return strings.HasPrefix(k.path, PubPrefix)
}

// Name returns the last path segment, without any trailing separator.
// The owner root has no name.
func (k Key) Name() string {
	trimmed := strings.TrimSuffix(k.path, Separator)
	if trimmed == "" {
		return ""
	}
	return trimmed[strings.LastIndex(trimmed, Separator)+1:]
}

// Parent returns the directory key containing k. The parent of the owner
// root is the owner root itself.
func (k Key) Parent() Key {
	trimmed := strings.TrimSuffix(k.path, Separator)
	if trimmed == "" {
		return Key{owner: k.owner, path: Separator}
	}
	idx := strings.LastIndex(trimmed, Separator)
	return Key{owner: k.owner, path: trimmed[:idx+1]}
}

// Join appends a path element to a directory key.
func (k Key) Join(elem string) Key {
	elem = strings.TrimPrefix(elem, Separator)
	base := k.path
	if !strings.HasSuffix(base, Separator) {
		base += Separator
	}
	return Key{owner: k.owner, path: base + elem}
}

// AsDirectory returns k with a trailing separator.
func (k Key) AsDirectory() Key {
	if k.IsDirectory() {
		return k
	}
	return Key{owner: k.owner, path: k.path + Separator}
}

// ParentPath returns the directory prefix containing the object at rawKey,
// keeping the pubky:// form. Works on raw strings so callers do not need a
// full parse for cache bookkeeping.
func ParentPath(rawKey string) string {
	trimmed := strings.TrimSuffix(rawKey, Separator)
	idx := strings.LastIndex(trimmed, Separator)
	if idx < len(Scheme) {
		return trimmed + Separator
	}
	return trimmed[:idx+1]
}
