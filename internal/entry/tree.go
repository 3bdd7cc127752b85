package entry

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Node is one folder level of a crawled tree: entries keyed by name.
// The root Node corresponds to the crawl's starting path.
type Node struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// Item is an entry inside a Node. Folder items get their own Node once the
// folder has been listed.
type Item struct {
	Entry DirectoryEntry
	sub   atomic.Pointer[Node]
}

// NewNode returns an empty Node.
func NewNode() *Node {
	return &Node{items: make(map[string]*Item)}
}

// Insert adds e keyed by its name. A later entry with the same name replaces
// the earlier one.
func (n *Node) Insert(e DirectoryEntry) *Item {
	it := &Item{Entry: e}
	n.mu.Lock()
	n.items[e.Name] = it
	n.mu.Unlock()
	return it
}

// Get returns the item stored under name.
func (n *Node) Get(name string) (*Item, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	it, ok := n.items[name]
	return it, ok
}

// Expand returns the children Node of the item under name, creating it on
// first use. Concurrent callers always observe the same Node.
func (n *Node) Expand(name string) (*Node, bool) {
	it, ok := n.Get(name)
	if !ok {
		return nil, false
	}
	return it.expand(), true
}

func (it *Item) expand() *Node {
	if sub := it.sub.Load(); sub != nil {
		return sub
	}
	it.sub.CompareAndSwap(nil, NewNode())
	return it.sub.Load()
}

// Children returns the item's children, or nil if the folder was never listed.
func (it *Item) Children() *Node {
	return it.sub.Load()
}

// Len returns the number of direct entries.
func (n *Node) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.items)
}

// Items returns the direct entries sorted by name.
func (n *Node) Items() []*Item {
	n.mu.RLock()
	items := make([]*Item, 0, len(n.items))
	for _, it := range n.items {
		items = append(items, it)
	}
	n.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].Entry.Name < items[j].Entry.Name
	})
	return items
}

// Walk visits every item beneath n depth-first, parents before children.
// Returning false from fn skips the item's subtree.
func (n *Node) Walk(fn func(it *Item, depth int) bool) {
	n.walk(fn, 1)
}

func (n *Node) walk(fn func(it *Item, depth int) bool, depth int) {
	for _, it := range n.Items() {
		if !fn(it, depth) {
			continue
		}
		if sub := it.Children(); sub != nil {
			sub.walk(fn, depth+1)
		}
	}
}

// Counts returns the number of files and folders beneath n.
func (n *Node) Counts() (files, folders int64) {
	n.Walk(func(it *Item, _ int) bool {
		if it.Entry.IsFolder {
			folders++
		} else {
			files++
		}
		return true
	})
	return files, folders
}
