package walker

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dl/dirtree/internal/glob"
)

// ignoreStack tracks, for each directory node, the glob segments whose
// patterns are still active against that directory's children. Segments
// are compiled once through a shared arena and threaded down into
// subdirectories by openAt; the mapping only ever grows, since directories
// are visited once.
type ignoreStack struct {
	arena  *glob.Arena
	active map[nodeID][]glob.SegmentID
	logger *log.Logger
}

func newIgnoreStack(logger *log.Logger) *ignoreStack {
	return &ignoreStack{
		arena:  glob.NewArena(),
		active: make(map[nodeID][]glob.SegmentID),
		logger: logger,
	}
}

// parse reads .gitignore-style lines from r, compiling each into the
// shared arena and appending its first segment to active[dir]. Comment and
// blank lines are skipped; a line that fails to compile is logged and the
// rest of the file still applies.
func (s *ignoreStack) parse(r io.Reader, dir nodeID) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		id, err := s.arena.CompileGlob(line)
		if err != nil {
			s.logger.Warn("skipping invalid gitignore pattern", "pattern", line, "err", err)
			continue
		}
		s.active[dir] = append(s.active[dir], id)
	}
	if err := scanner.Err(); err != nil {
		return &IOError{Op: "read", Path: ".gitignore", Err: err}
	}
	return nil
}

// shouldOpen decides whether name, a direct child of parent, should be
// traversed at all.
func (s *ignoreStack) shouldOpen(parent nodeID, name string, isDir bool) bool {
	if len(name) > 0 && name[0] == '.' && name != ".gitignore" {
		return false
	}

	keep, ignore := false, false
	for _, seg := range s.active[parent] {
		matched, ok := s.arena.MatchFile(seg, name, isDir)
		if !ok {
			continue
		}
		if matched {
			ignore = true
		} else {
			keep = true
		}
	}

	switch {
	case keep:
		return true
	case ignore:
		return false
	default:
		return true
	}
}

// openAt seeds active[child] with every segment match_dir produces from
// active[parent] over name, cascading ignore-pattern cursors one level
// down the tree.
func (s *ignoreStack) openAt(parent, child nodeID, name string) {
	for _, seg := range s.active[parent] {
		next, ok := s.arena.MatchDir(seg, name)
		if !ok {
			continue
		}
		s.active[child] = append(s.active[child], next...)
	}
}
