package pathutil

import (
	"net/url"
	"strings"
)

// DownloadURL builds the URL a file at resolvedPath is served from.
// Every path segment is percent-encoded; rootID is appended as a query
// parameter when present.
func DownloadURL(base, resolvedPath, rootID string) string {
	segments := strings.Split(strings.TrimPrefix(resolvedPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	u := strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
	if rootID != "" {
		u += "?" + url.Values{"rootId": {rootID}}.Encode()
	}
	return u
}
