package walker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dl/dirtree/internal/graph"
)

// connectionKind discriminates the two edge labels a Tree's graph carries.
type connectionKind int

const (
	connChild connectionKind = iota
	connSymlink
)

// connection is the weight on every edge in a Tree's graph: either a named
// parent-to-child edge, or an unlabeled link-to-target edge.
type connection struct {
	kind connectionKind
	name string // set only when kind == connChild
}

// Tree is the in-memory model of a directory subtree built by Build.
type Tree struct {
	graph  *graph.Graph[connection]
	store  *treeStore
	ignore *ignoreStack
	root   nodeID
	logger *log.Logger
}

// workItem is one entry on the builder's LIFO work list: a child name not
// yet processed, paired with its parent's node ID.
type workItem struct {
	parent nodeID
	name   string
}

// deferredSymlink is a symlink target recorded during the main walk for
// resolution once every directory has been visited.
type deferredSymlink struct {
	node   nodeID
	target string
}

// Build walks rootPath, building a Tree. logger receives warnings for
// every recoverable failure (bad gitignore lines, unresolved symlinks,
// missing structural parents); fatal IO failures are returned instead.
func Build(rootPath string, logger *log.Logger) (*Tree, error) {
	buildID := uuid.New()
	logger = logger.With("build_id", buildID.String())

	canonical, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, &IOError{Op: "abspath", Path: rootPath, Err: err}
	}

	rootFile, err := openPath(nil, canonical)
	if err != nil {
		return nil, err
	}

	stat, err := rootFile.Stat()
	if err != nil {
		rootFile.Close()
		return nil, err
	}

	store := newTreeStore()
	rootID := store.insert(treeEntry{handle: rootFile, inode: stat.Ino})

	t := &Tree{
		graph:  graph.New[connection](),
		store:  store,
		ignore: newIgnoreStack(logger),
		root:   rootID,
		logger: logger,
	}

	var work []workItem
	var deferred []deferredSymlink

	if fileKind(&stat) == KindDirectory {
		names, err := scanSorted(rootFile)
		if err != nil {
			t.Close()
			return nil, err
		}
		for _, name := range names {
			work = append(work, workItem{parent: rootID, name: name})
		}
	}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		if err := t.processChild(item, &work, &deferred); err != nil {
			t.Close()
			return nil, err
		}
	}

	for _, d := range deferred {
		if err := t.resolveSymlink(d); err != nil {
			logger.Warn("unresolved symlink", "target", d.target, "node", d.node, "err", err)
		}
	}

	return t, nil
}

// processChild implements one pop of the work list: fstatat the child,
// consult the ignore stack, coalesce by inode, and record the new edge.
func (t *Tree) processChild(item workItem, work *[]workItem, deferred *[]deferredSymlink) error {
	parentEntry := t.store.byID(item.parent)

	kind, inode, err := parentEntry.handle.StatAt(item.name)
	if err != nil {
		return err
	}

	if !t.ignore.shouldOpen(item.parent, item.name, kind == KindDirectory) {
		return nil
	}

	var linkTarget string
	isLink := kind == KindLink
	if isLink {
		target, err := parentEntry.handle.ReadLinkAt(item.name)
		if err != nil {
			return err
		}
		linkTarget = target
	}

	childID, existed := t.store.idByInode(inode)
	if !existed {
		childFile, err := openPath(parentEntry.handle, item.name)
		if err != nil {
			return err
		}

		if item.name == ".gitignore" && kind == KindRegular {
			if err := t.parseGitignore(childFile, item.parent); err != nil {
				t.logger.Warn("failed reading gitignore", "name", item.name, "err", err)
			}
		}

		childID = t.store.insert(treeEntry{handle: childFile, inode: inode})

		if kind == KindDirectory {
			names, err := scanSorted(childFile)
			if err != nil {
				return err
			}
			for _, name := range names {
				*work = append(*work, workItem{parent: childID, name: name})
			}
		}
	}

	t.ignore.openAt(item.parent, childID, item.name)
	t.graph.AddEdge(int(item.parent), int(childID), connection{kind: connChild, name: item.name})

	if isLink {
		*deferred = append(*deferred, deferredSymlink{node: childID, target: linkTarget})
	}
	return nil
}

// parseGitignore streams file's contents (via a freshly reopened,
// independently-positioned descriptor) into the ignore stack attached to
// dir.
func (t *Tree) parseGitignore(file *File, dir nodeID) error {
	r, err := file.Reader()
	if err != nil {
		return err
	}
	defer r.Close()
	return t.ignore.parse(r, dir)
}

// scanSorted lists f's entries with any ".gitignore" moved to the end, so
// that pushing them in listing order onto a LIFO work list makes
// ".gitignore" the first one popped — its patterns are attached to the
// directory before any of its subdirectories are processed.
func scanSorted(f *File) ([]string, error) {
	raw, err := f.Scan()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	hasGitignore := false
	for _, d := range raw {
		if d.Name == ".gitignore" {
			hasGitignore = true
			continue
		}
		names = append(names, d.Name)
	}
	if hasGitignore {
		names = append(names, ".gitignore")
	}
	return names, nil
}

// structuralParent returns the unique node that owns node via a Child
// edge, as opposed to an incoming SymLink edge or a self-loop.
func (t *Tree) structuralParent(node nodeID) (nodeID, bool) {
	for _, e := range t.graph.Incoming(int(node)) {
		if e.Weight.kind == connChild && e.ConnectsTo != int(node) {
			return nodeID(e.ConnectsTo), true
		}
	}
	return 0, false
}

// findChild looks for an outgoing Child(name) edge from parent, following
// any outgoing SymLink edges along the way (a symlinked directory's
// children are reached through the node it resolved to). A visited set
// guards against symlink cycles.
func (t *Tree) findChild(parent nodeID, name string) (nodeID, bool) {
	visited := make(map[nodeID]bool)
	queue := []nodeID{parent}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true

		for _, e := range t.graph.Outgoing(int(n)) {
			switch e.Weight.kind {
			case connChild:
				if e.Weight.name == name {
					return nodeID(e.ConnectsTo), true
				}
			case connSymlink:
				queue = append(queue, nodeID(e.ConnectsTo))
			}
		}
	}
	return 0, false
}

// followPath walks from start through target's path components: "." stays
// in place, ".." steps to the structural parent, and a normal component
// follows a matching outgoing Child edge (through symlinks, if any).
func (t *Tree) followPath(start nodeID, target string) (nodeID, error) {
	current := start
	for _, comp := range strings.Split(target, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			parent, ok := t.structuralParent(current)
			if !ok {
				return 0, fmt.Errorf("node %d has no structural parent", current)
			}
			current = parent
		default:
			next, ok := t.findChild(current, comp)
			if !ok {
				return 0, fmt.Errorf("no child %q under node %d", comp, current)
			}
			current = next
		}
	}
	return current, nil
}

// resolveSymlink finds d's node's structural parent and walks the graph
// from there along d.target, adding a SymLink edge from the link node to
// wherever it resolves.
func (t *Tree) resolveSymlink(d deferredSymlink) error {
	if strings.HasPrefix(d.target, "/") {
		return fmt.Errorf("absolute symlink target %q unsupported", d.target)
	}

	parent, ok := t.structuralParent(d.node)
	if !ok {
		return fmt.Errorf("symlink node %d has no structural parent", d.node)
	}

	resolved, err := t.followPath(parent, d.target)
	if err != nil {
		return err
	}

	t.graph.AddEdge(int(d.node), int(resolved), connection{kind: connSymlink})
	return nil
}

// Root returns the node ID of the tree's root.
func (t *Tree) Root() nodeID {
	return t.root
}

// NodeCount returns the number of distinct (descriptor, inode) entries the
// store holds.
func (t *Tree) NodeCount() int {
	return t.store.count()
}

// Close releases every descriptor the tree owns.
func (t *Tree) Close() error {
	var firstErr error
	for _, e := range t.store.entries {
		if err := e.handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// String renders the tree as an indented listing, following Child edges
// from the root. SymLink edges are not followed or shown, so a symlink is
// listed under its own name only. A node reached a second time (a hard
// link or a cycle) is printed as "... (cycle)" and not expanded again.
func (t *Tree) String() string {
	var b strings.Builder
	visited := make(map[nodeID]bool)
	t.writeNode(&b, t.root, 0, visited)
	return b.String()
}

func (t *Tree) writeNode(b *strings.Builder, node nodeID, depth int, visited map[nodeID]bool) {
	if visited[node] {
		fmt.Fprintf(b, "%s... (cycle)\n", strings.Repeat("  ", depth))
		return
	}
	visited[node] = true

	for _, e := range t.graph.Outgoing(int(node)) {
		if e.Weight.kind != connChild {
			continue
		}
		fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), e.Weight.name)
		t.writeNode(b, nodeID(e.ConnectsTo), depth+1, visited)
	}
}
