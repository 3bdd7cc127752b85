package crawl

import (
	"fmt"

	"github.com/michaelscutari/dredge/internal/entry"
)

// assembler writes a job's listing into the result tree and derives the jobs
// for the folders it found.
type assembler struct {
	norm      entry.Normalizer
	rootID    string
	recursive bool
	exclude   func(path string) bool
}

func (a *assembler) assemble(root *entry.Node, job Job, records []entry.RawRecord) ([]Job, error) {
	target := root
	if job.Parent != nil {
		node, ok := job.Parent.Expand(job.Key)
		if !ok {
			return nil, fmt.Errorf("crawl: no entry %q for %s in its parent", job.Key, job.Path)
		}
		target = node
	}

	// Names are unique per folder; when a listing repeats one, the last
	// record wins and keeps the position of the first.
	latest := make(map[string]entry.DirectoryEntry, len(records))
	order := make([]string, 0, len(records))
	for _, raw := range records {
		e := a.norm.Normalize(raw, job.Path, a.rootID)
		if a.exclude != nil && a.exclude(e.ResolvedPath) {
			continue
		}
		if _, dup := latest[e.Name]; !dup {
			order = append(order, e.Name)
		}
		latest[e.Name] = e
	}

	var jobs []Job
	for _, name := range order {
		e := latest[name]
		target.Insert(e)
		if a.recursive && e.IsFolder {
			jobs = append(jobs, Job{
				Path:   e.ResolvedPath,
				Parent: target,
				Key:    e.Name,
			})
		}
	}

	return jobs, nil
}
