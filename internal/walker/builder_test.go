package walker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func silentLogger() *log.Logger {
	return log.New(&bytes.Buffer{})
}

func TestBuildSimpleTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	_, ok := tree.findChild(tree.Root(), "a.txt")
	require.True(t, ok)

	subID, ok := tree.findChild(tree.Root(), "sub")
	require.True(t, ok)

	_, ok = tree.findChild(subID, "b.txt")
	require.True(t, ok)

	require.Contains(t, tree.String(), "a.txt")
	require.Contains(t, tree.String(), "sub")
}

func TestBuildHidesDotfilesByDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0o644))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	_, ok := tree.findChild(tree.Root(), ".secret")
	require.False(t, ok)

	_, ok = tree.findChild(tree.Root(), "visible.txt")
	require.True(t, ok)
}

func TestBuildGitignoreRuleAppliesBeforeSiblingsAreProcessed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0o644))
	require.NoError(t, os.Link(filepath.Join(dir, "a"), filepath.Join(dir, "b")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("a\n"), 0o644))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	_, ok := tree.findChild(tree.Root(), "a")
	require.False(t, ok, "a is listed in .gitignore and must never be opened")

	_, ok = tree.findChild(tree.Root(), "b")
	require.True(t, ok, "b shares a's inode but is not itself ignored by name")

	_, ok = tree.findChild(tree.Root(), ".gitignore")
	require.True(t, ok)

	// Store entries: root, the .gitignore file itself, and b. "a" never
	// reaches the store since it is rejected before it is ever opened.
	require.Equal(t, 3, tree.NodeCount())
}

func TestBuildGitignoreNegationKeepsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n!keep.log\n"), 0o644))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	_, ok := tree.findChild(tree.Root(), "debug.log")
	require.False(t, ok)

	_, ok = tree.findChild(tree.Root(), "keep.log")
	require.True(t, ok)
}

func TestBuildResolvesSymlinkWithinTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "leaf.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("target", filepath.Join(dir, "link")))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	linkID, ok := tree.findChild(tree.Root(), "link")
	require.True(t, ok)
	targetID, ok := tree.findChild(tree.Root(), "target")
	require.True(t, ok)

	var sawSymlinkEdge bool
	for _, e := range tree.graph.Outgoing(int(linkID)) {
		if e.Weight.kind == connSymlink && e.ConnectsTo == int(targetID) {
			sawSymlinkEdge = true
		}
	}
	require.True(t, sawSymlinkEdge, "expected a SymLink edge from link's node to target's node")

	leafID, ok := tree.findChild(targetID, "leaf.txt")
	require.True(t, ok)

	resolvedLeafID, ok := tree.findChild(linkID, "leaf.txt")
	require.True(t, ok, "findChild should follow SymLink edges to reach target's children")
	require.Equal(t, leafID, resolvedLeafID)
}

func TestBuildLogsUnresolvedSymlinkEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("../outside", filepath.Join(dir, "escape")))

	var buf bytes.Buffer
	tree, err := Build(dir, log.New(&buf))
	require.NoError(t, err)
	defer tree.Close()

	linkID, ok := tree.findChild(tree.Root(), "escape")
	require.True(t, ok, "the symlink itself is still a child entry even though it cannot be resolved")

	require.Empty(t, tree.graph.Outgoing(int(linkID)), "an unresolved symlink gets no outgoing SymLink edge")
	require.Contains(t, buf.String(), "unresolved symlink")
}

func TestBuildRejectsAbsoluteSymlinkTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(dir, "abs")))

	var buf bytes.Buffer
	tree, err := Build(dir, log.New(&buf))
	require.NoError(t, err)
	defer tree.Close()

	linkID, ok := tree.findChild(tree.Root(), "abs")
	require.True(t, ok)
	require.Empty(t, tree.graph.Outgoing(int(linkID)))
	require.Contains(t, buf.String(), "unresolved symlink")
}

func TestBuildCoalescesHardLinksToOneStoreEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orig"), []byte("x"), 0o644))
	require.NoError(t, os.Link(filepath.Join(dir, "orig"), filepath.Join(dir, "alias")))

	tree, err := Build(dir, silentLogger())
	require.NoError(t, err)
	defer tree.Close()

	origID, ok := tree.findChild(tree.Root(), "orig")
	require.True(t, ok)
	aliasID, ok := tree.findChild(tree.Root(), "alias")
	require.True(t, ok)

	require.Equal(t, origID, aliasID, "hard-linked names resolve to the same store entry")
}
