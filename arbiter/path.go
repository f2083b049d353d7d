package arbiter

import (
	"fmt"
	"path"
	"strings"
)

const schemeSep = "://"

// Location is a parsed arbiter path.
type Location struct {
	Scheme string
	Root   string
	Key    string
}

// String returns the canonical form of the location.
func (l Location) String() string {
	if l.Scheme == SchemeFile && l.Root == "" {
		return l.Key
	}
	return l.Scheme + schemeSep + path.Join(l.Root, l.Key)
}

// Parse splits p into scheme, root and key.
//
// Plain paths and file:// paths map to the file scheme with an empty root, so
// the key is the file system path itself. For other schemes the first path
// element is the root (bucket) and the remainder is the key.
func Parse(p string) (Location, error) {
	if p == "" {
		return Location{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	scheme, rest, ok := strings.Cut(p, schemeSep)
	if !ok {
		return Location{Scheme: SchemeFile, Key: p}, nil
	}
	if scheme == "" {
		return Location{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidPath, p)
	}
	scheme = strings.ToLower(scheme)

	if scheme == SchemeFile {
		if rest == "" {
			return Location{}, fmt.Errorf("%w: empty file path", ErrInvalidPath)
		}
		return Location{Scheme: SchemeFile, Key: rest}, nil
	}

	root, key, _ := strings.Cut(rest, "/")
	if root == "" {
		return Location{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidPath, p)
	}
	return Location{Scheme: scheme, Root: root, Key: key}, nil
}

// Join joins path elements onto base without collapsing the scheme
// separator. Trailing slashes of the last element are preserved so the
// result can be used as a List prefix.
func Join(base string, elem ...string) string {
	scheme, rest, ok := strings.Cut(base, schemeSep)
	if !ok {
		scheme, rest = "", base
	}

	parts := append([]string{rest}, elem...)
	joined := path.Join(parts...)
	if n := len(elem); n > 0 && strings.HasSuffix(elem[n-1], "/") {
		joined += "/"
	}

	if !ok {
		return joined
	}
	return scheme + schemeSep + joined
}
