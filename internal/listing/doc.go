// Package listing talks to the remote drive index.
//
// A Lister returns the direct children of one remote path. Client implements
// it against the index HTTP API, following page tokens until the listing is
// complete. MemoryLister serves a fixed tree from memory and is used by tests
// and the benchmark.
//
// # Wire format
//
//	POST {base}{path}?rootId={id}
//	{"password": "", "page_token": "", "page_index": 0}
//
//	{"nextPageToken": "tok", "data": {"files": [{"name": "a", "mimeType": "text/plain", "size": "12"}]}}
//
// Listers do not retry; retry policy belongs to the crawler.
package listing
