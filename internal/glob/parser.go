package glob

import (
	"regexp"
	"strings"
)

// SegmentKind discriminates the three shapes a parsed Segment can take.
type SegmentKind int

const (
	SegPattern SegmentKind = iota
	SegAnything
	SegSeparator
)

// Segment is one element of a parsed pattern: either a compiled regex over
// a single path component, the `**` wildcard, or a literal path separator.
type Segment struct {
	Kind  SegmentKind
	Regex *regexp.Regexp // set only when Kind == SegPattern
}

// Ast is the parsed form of a pattern, before it is compiled into arena
// segments.
type Ast struct {
	StartsNegated bool
	Segments      []Segment
}

// classByte escapes a byte so it is safe as a literal member of a regexp
// character class.
func classByte(b byte) string {
	switch b {
	case ']', '^', '-', '\\':
		return "\\" + string(b)
	default:
		return string(b)
	}
}

// parseCharset reads the body of a `[...]` character class, already past
// the opening `[`, and writes the equivalent regexp character class to w.
func parseCharset(w *strings.Builder, tok *Tokenizer) error {
	text, ok := tok.ReadLiteral(SetSquareEnd)
	if !ok {
		return tok.Error(SetSquareEnd)
	}

	w.WriteByte('[')
	for i := 0; i < len(text); i++ {
		lo := text[i]
		if i+1 < len(text) && text[i+1] == '-' {
			if i+2 >= len(text) {
				return tok.Error(SetLiteral)
			}
			hi := text[i+2]
			w.WriteString(classByte(lo))
			w.WriteByte('-')
			w.WriteString(classByte(hi))
			i += 2
		} else {
			w.WriteString(classByte(lo))
		}
	}
	w.WriteByte(']')

	// Consume the closing `]` that ReadLiteral stopped before.
	if _, ok := tok.NextToken(SetSquareEnd); !ok {
		return tok.Error(SetSquareEnd)
	}
	return nil
}

// parsePattern parses a maximal run of wildcard/literal component text,
// returning (nil, false, nil) if nothing could be parsed (so the caller can
// fall back to `**`/`/`/end-of-segments).
func parsePattern(tok *Tokenizer) (*regexp.Regexp, bool, error) {
	var w strings.Builder
	wrote := false

	acceptSet := SetStar | SetQuestion | SetSquareStart
	breakSet := acceptSet | SetSeparator

	for {
		t, ok := tok.NextToken(acceptSet)
		if ok {
			switch t {
			case TokStar:
				if _, ok2 := tok.NextToken(SetStar); ok2 {
					// Two stars in a row: this is a `**` segment, not part
					// of a literal component. Rewind to before the first
					// star and let the caller (parseSegment) handle it.
					tok.Reset()
					return compileOrNil(w, wrote)
				}
				w.WriteString("[^/]*")
				wrote = true
			case TokQuestion:
				w.WriteString("[^/]")
				wrote = true
			case TokSquareStart:
				if err := parseCharset(&w, tok); err != nil {
					return nil, false, err
				}
				wrote = true
			default:
				panic("glob: unreachable token kind in parsePattern")
			}
			tok.Flush()
			continue
		}

		literal, ok := tok.ReadLiteral(breakSet)
		if !ok {
			return compileOrNil(w, wrote)
		}
		w.WriteString(regexp.QuoteMeta(literal))
		wrote = true
		tok.Flush()
	}
}

func compileOrNil(w strings.Builder, wrote bool) (*regexp.Regexp, bool, error) {
	if !wrote {
		return nil, false, nil
	}
	re, err := regexp.Compile("^" + w.String() + "$")
	if err != nil {
		return nil, false, err
	}
	return re, true, nil
}

// parseSegment parses one segment: a Pattern (via parsePattern), an
// Anything (`**`), a Separator (`/`), or nothing (end of segments).
func parseSegment(tok *Tokenizer) (Segment, bool, error) {
	re, ok, err := parsePattern(tok)
	if err != nil {
		return Segment{}, false, err
	}
	if ok {
		return Segment{Kind: SegPattern, Regex: re}, true, nil
	}

	t, ok := tok.NextToken(SetStar | SetSeparator)
	if !ok {
		return Segment{}, false, nil
	}

	var seg Segment
	switch t {
	case TokStar:
		// parsePattern already proved the next byte is also `*` and reset
		// us to just before the first one; NextToken above consumed that
		// first star, so consume the second one now.
		if _, ok := tok.NextToken(SetStar); !ok {
			return Segment{}, false, tok.Error(SetStar)
		}
		seg = Segment{Kind: SegAnything}
	case TokSeparator:
		seg = Segment{Kind: SegSeparator}
	default:
		panic("glob: unreachable token kind in parseSegment")
	}

	tok.Flush()
	return seg, true, nil
}

// Parse parses a full .gitignore-style pattern into an Ast.
func Parse(pattern string) (*Ast, error) {
	tok := NewTokenizer(pattern)

	startsNegated := false
	if _, ok := tok.NextToken(SetNegate); ok {
		startsNegated = true
	}

	var segments []Segment
	for {
		seg, ok, err := parseSegment(tok)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		segments = append(segments, seg)
	}

	if t, ok := tok.NextToken(0); ok && t == TokEnding {
		return &Ast{StartsNegated: startsNegated, Segments: segments}, nil
	}
	return nil, tok.Error(0)
}
