package glob

import (
	"regexp"
	"unicode/utf8"
)

// SegmentID indexes a single compiled segment inside an Arena.
type SegmentID int

// compiledSegment is one stored segment: either a compiled regex over a
// single path component, or the `**` sentinel (matcher == nil).
type compiledSegment struct {
	matcher       *regexp.Regexp
	negated       bool
	trailingSlash bool
	relative      bool
}

// Arena interns compiled glob segments and threads each to the segment
// that follows it in the pattern it was parsed from.
type Arena struct {
	storage  []compiledSegment
	children map[int]int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{children: make(map[int]int)}
}

// CompileGlob parses and compiles pattern, returning the SegmentID of its
// first segment.
func (a *Arena) CompileGlob(pattern string) (SegmentID, error) {
	ast, err := Parse(pattern)
	if err != nil {
		return 0, err
	}

	var fixedPath bool
	rest := ast.Segments
	if len(rest) > 0 && rest[0].Kind == SegSeparator {
		fixedPath = true
		rest = rest[1:]
	} else {
		fixedPath = len(rest) > 2
	}

	type pair struct {
		matcher       *regexp.Regexp
		trailingSlash bool
	}
	var pairs []pair

	for i := 0; i < len(rest); {
		seg := rest[i]
		if seg.Kind == SegSeparator {
			return 0, &CompileError{Pattern: pattern, Message: "unexpected /"}
		}
		var m *regexp.Regexp
		if seg.Kind == SegPattern {
			m = seg.Regex
		}
		i++

		trailingSlash := false
		if i < len(rest) {
			if rest[i].Kind != SegSeparator {
				return 0, &CompileError{Pattern: pattern, Message: "/ needed between sections"}
			}
			trailingSlash = true
			i++
		}

		pairs = append(pairs, pair{matcher: m, trailingSlash: trailingSlash})
	}

	if len(pairs) == 0 {
		return 0, &CompileError{Pattern: pattern, Message: "no glob segments"}
	}

	var firstID SegmentID
	prevIdx := -1
	for _, p := range pairs {
		g := compiledSegment{
			matcher:       p.matcher,
			negated:       ast.StartsNegated,
			trailingSlash: p.trailingSlash,
			relative:      !fixedPath,
		}
		idx := len(a.storage)
		a.storage = append(a.storage, g)
		if prevIdx == -1 {
			firstID = SegmentID(idx)
		} else {
			a.children[prevIdx] = idx
		}
		prevIdx = idx
	}

	return firstID, nil
}

// MatchFile tests name (a file or directory entry, not a directory it is
// about to be opened as) against segment. It returns ok == false whenever
// the segment has a successor (the pattern isn't exhausted at this
// position yet), name isn't valid UTF-8, the segment is directory-only and
// isDir is false, or name does not match the segment's matcher. Otherwise
// ok is true and matched is !negated — callers combine this with the
// precedence rule in the ignore stack.
func (a *Arena) MatchFile(id SegmentID, name string, isDir bool) (matched bool, ok bool) {
	idx := int(id)
	if _, hasChild := a.children[idx]; hasChild {
		return false, false
	}
	if !utf8.ValidString(name) {
		return false, false
	}

	g := a.storage[idx]
	if g.trailingSlash && !isDir {
		return false, false
	}

	isMatch := g.matcher == nil || g.matcher.MatchString(name)
	if !isMatch {
		return false, false
	}
	return !g.negated, true
}

// MatchDir returns the segments that should be active inside the directory
// named name: the successor segment if this segment matches name and has
// one (descend), plus this segment itself if it is `**` or unanchored
// (stay). ok is false when neither applies or name isn't valid UTF-8.
func (a *Arena) MatchDir(id SegmentID, name string) (next []SegmentID, ok bool) {
	idx := int(id)
	if !utf8.ValidString(name) {
		return nil, false
	}

	g := a.storage[idx]
	isChildMatch := g.matcher == nil || g.matcher.MatchString(name)

	var descend *SegmentID
	if isChildMatch {
		if childIdx, has := a.children[idx]; has {
			v := SegmentID(childIdx)
			descend = &v
		}
	}

	var stay *SegmentID
	if g.relative || g.matcher == nil {
		v := id
		stay = &v
	}

	if descend == nil && stay == nil {
		return nil, false
	}

	if descend != nil {
		next = append(next, *descend)
	}
	if stay != nil {
		next = append(next, *stay)
	}
	return next, true
}
