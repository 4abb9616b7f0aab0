package iso

import (
	"path"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"umdfs/internal/blockdev"
	"umdfs/internal/logging"
)

var treeLogger = logging.GetLogger().WithPrefix("iso.tree")

// Entry is a node of the directory tree. Directory contents are parsed on
// first access and kept for the lifetime of the tree.
type Entry struct {
	Name    string
	Dir     bool
	Hidden  bool
	Extent  Locator
	ModTime time.Time

	key    string // name as compared during lookup
	parent *Entry

	once     sync.Once
	children []*Entry
}

// Parent returns the containing directory, or nil for the root
func (e *Entry) Parent() *Entry { return e.parent }

// Path returns the absolute path of e
func (e *Entry) Path() string {
	if e.parent == nil {
		return "/"
	}
	return path.Join(e.parent.Path(), e.Name)
}

// Tree resolves paths against the directory hierarchy of a volume
type Tree struct {
	dev           blockdev.BlockDevice
	root          *Entry
	caseSensitive bool
}

// NewTree returns a tree rooted at the directory described by root
func NewTree(dev blockdev.BlockDevice, root Locator, rootTime time.Time, caseSensitive bool) *Tree {
	return &Tree{
		dev:           dev,
		root:          &Entry{Dir: true, Extent: root, ModTime: rootTime},
		caseSensitive: caseSensitive,
	}
}

// Root returns the root directory entry
func (t *Tree) Root() *Entry { return t.root }

// matchKey normalises a name for comparison
func (t *Tree) matchKey(name string) string {
	if t.caseSensitive {
		return name
	}
	return cases.Fold().String(name)
}

// Children returns the entries of directory e in on-disk order. A file has
// no children.
func (t *Tree) Children(e *Entry) []*Entry {
	if !e.Dir {
		return nil
	}
	e.once.Do(func() {
		e.children = t.load(e)
	})
	return e.children
}

// load reads and parses the extent of directory e
func (t *Tree) load(e *Entry) []*Entry {
	first := e.Extent.Extent
	count := e.Extent.Sectors()
	total := t.dev.NumBlocks()
	if count == 0 {
		return nil
	}
	if first >= total {
		treeLogger.Warn("Directory %s starts at block %d past the end of the device (%d blocks)", e.Path(), first, total)
		return nil
	}
	if count > total-first {
		treeLogger.Warn("Directory %s extent clamped from %d to %d blocks", e.Path(), count, total-first)
		count = total - first
	}

	data := make([]byte, int(count)*sectorSize)
	if err := t.dev.ReadBlocks(first, count, data); err != nil {
		treeLogger.Warn("Cannot read directory %s: %v", e.Path(), err)
		return nil
	}
	data = data[:min(len(data), int(e.Extent.Size))]

	var children []*Entry
	seen := make(map[string]int) // name -> index in children
	versions := make(map[string]int)
	for _, r := range parseDirectory(data) {
		if r.isDir() && t.isAncestor(e, r.extent) {
			treeLogger.Debug("Ignoring %q in %s: points back at an enclosing directory", r.ident, e.Path())
			continue
		}

		name := decodeName(r.ident)
		version := recordVersion(r.ident)
		child := &Entry{
			Name:    name,
			Dir:     r.isDir(),
			Hidden:  r.flags&flagHidden != 0,
			Extent:  Locator{Extent: r.extent, Size: r.size},
			ModTime: r.modTime,
			key:     t.matchKey(name),
			parent:  e,
		}

		// Several versions of one file keep the first slot and the highest version
		if i, dup := seen[name]; dup {
			if version > versions[name] {
				treeLogger.Debug("Using version %d of %s in %s", version, name, e.Path())
				children[i] = child
				versions[name] = version
			}
			continue
		}
		seen[name] = len(children)
		versions[name] = version
		children = append(children, child)
	}

	treeLogger.Trace("Loaded %d entries for %s", len(children), e.Path())
	return children
}

// isAncestor reports whether extent belongs to e or one of its parents
func (t *Tree) isAncestor(e *Entry, extent uint32) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.Extent.Extent == extent {
			return true
		}
	}
	return false
}

// Lookup finds the child of dir called name. The first match in on-disk
// order wins.
func (t *Tree) Lookup(dir *Entry, name string) *Entry {
	key := t.matchKey(name)
	for _, c := range t.Children(dir) {
		if c.key == key {
			return c
		}
	}
	return nil
}

// Resolve walks p from the root. Empty and "." segments are ignored and
// ".." moves to the parent, stopping at the root. Any segment after a
// regular file fails with ErrNotADirectory, ".." included.
func (t *Tree) Resolve(p string) (*Entry, error) {
	cur := t.root
	for _, seg := range splitPath(p) {
		if !cur.Dir {
			return nil, newError(OpResolve, p, ErrNotADirectory)
		}
		if seg == ".." {
			if cur.parent != nil {
				cur = cur.parent
			}
			continue
		}
		next := t.Lookup(cur, seg)
		if next == nil {
			return nil, newError(OpResolve, p, ErrNotFound)
		}
		cur = next
	}
	return cur, nil
}
