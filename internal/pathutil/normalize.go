package pathutil

import (
	"path"
	"strings"
)

// SlashToken replaces a literal "/" inside an entry name so it cannot be
// mistaken for a path separator.
const SlashToken = "%%"

// Normalize returns a canonical remote path string.
// It always starts with "/", collapses "." and "..", and keeps a single
// trailing slash when the input had one (folder paths).
func Normalize(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	folder := strings.HasSuffix(p, "/")
	clean := path.Clean("/" + p)
	if folder && clean != "/" {
		clean += "/"
	}
	return clean
}

// Escape tokens. They share no prefix, so unescaping a segment is
// unambiguous.
const (
	percentToken = "%25"
	dotToken     = "%2E"
)

var (
	nameEscaper   = strings.NewReplacer("%", percentToken, "/", SlashToken)
	nameUnescaper = strings.NewReplacer(SlashToken, "/", percentToken, "%", dotToken, ".")
)

// EscapeName makes an entry name safe to use as a single path segment.
// Distinct names always escape to distinct segments, and the segments "."
// and ".." are never produced.
func EscapeName(name string) string {
	switch name {
	case ".":
		return dotToken
	case "..":
		return dotToken + dotToken
	}
	return nameEscaper.Replace(name)
}

// UnescapeName reverses EscapeName.
func UnescapeName(segment string) string {
	return nameUnescaper.Replace(segment)
}

// ResolveChildPath joins an already escaped name onto a resolved parent
// path. Neither part is cleaned: segments come from the remote store and are
// never "." or "..".
func ResolveChildPath(parentPath, escapedName string) string {
	return AsFolder(parentPath) + escapedName
}

// Basename returns the unescaped last segment of a remote path, ignoring a
// trailing slash. The result equals the entry name the path was built from.
func Basename(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return UnescapeName(p)
}

// Parent returns the folder path containing p, with a trailing slash.
func Parent(p string) string {
	p = strings.TrimSuffix(Normalize(p), "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i+1]
}

// FolderPath normalizes p and ensures the trailing slash folder paths carry.
func FolderPath(p string) string {
	p = Normalize(p)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// AsFolder adds the leading and trailing slashes of a folder path without
// cleaning p. Use it on resolved paths; FolderPath is for user input.
func AsFolder(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
