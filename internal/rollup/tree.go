package rollup

import (
	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// Build computes rollups for every materialized folder of a crawled tree,
// keyed by folder path. rootPath names the root node. Folders that were
// never listed count as empty.
func Build(rootPath string, root *entry.Node) map[string]entry.Rollup {
	out := make(map[string]entry.Rollup)
	if root == nil {
		return out
	}
	build(pathutil.FolderPath(rootPath), root, out)
	return out
}

func build(path string, node *entry.Node, out map[string]entry.Rollup) entry.Rollup {
	r := entry.Rollup{Path: path}
	for _, it := range node.Items() {
		if !it.Entry.IsFolder {
			r.TotalFiles++
			if it.Entry.HasSize {
				r.TotalSize += it.Entry.RawSizeBytes
			}
			continue
		}

		r.TotalDirs++
		child := entry.Rollup{Path: it.Entry.ResolvedPath}
		if sub := it.Children(); sub != nil {
			child = build(it.Entry.ResolvedPath, sub, out)
		} else {
			out[child.Path] = child
		}
		r.TotalSize += child.TotalSize
		r.TotalFiles += child.TotalFiles
		r.TotalDirs += child.TotalDirs
	}
	out[path] = r
	return r
}
