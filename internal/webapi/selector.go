package webapi

import "strings"

// CSSSelector is a single simple selector: a tag name plus zero or more
// id/class/attribute constraints, all of which must hold for a match.
type CSSSelector struct {
	Tag        string
	ID         string
	Classes    []string
	Attributes []AttrMatcher
}

// AttrMatcher is one `[name op value]` constraint. Op is "" for a bare
// existence check, or one of "=", "*=", "^=", "$=", "~=".
type AttrMatcher struct {
	Name  string
	Op    string
	Value string
}

// CombinatorType is the relationship between a selector part and the
// part to its right in a compound chain.
type CombinatorType int

const (
	CombinatorNone CombinatorType = iota
	CombinatorDescendant
	CombinatorChild
	CombinatorAdjacentSibling
	CombinatorGeneralSibling
)

// SelectorPart pairs a simple selector with the combinator that
// connects it to the next part toward the subject.
type SelectorPart struct {
	Sel        *CSSSelector
	Combinator CombinatorType
}

// CompoundSelector is a full selector chain such as "div.card > a.link".
// Parts runs left (outermost ancestor) to right (the subject element
// being matched).
type CompoundSelector struct {
	Parts []SelectorPart
}

// IsSimple reports whether this selector has no combinators, so
// matching it needs no DOM context.
func (cs *CompoundSelector) IsSimple() bool {
	return len(cs.Parts) <= 1
}

// Subject is the rightmost selector: the element the whole chain is
// actually matching against.
func (cs *CompoundSelector) Subject() *CSSSelector {
	if len(cs.Parts) == 0 {
		return &CSSSelector{Tag: "*"}
	}
	return cs.Parts[len(cs.Parts)-1].Sel
}

// ElementInfo is the minimal element shape MatchesWithContext needs for
// an ancestor or preceding sibling: tag, attributes, and nesting depth.
type ElementInfo struct {
	TagName string
	Attrs   map[string]string
	Depth   int
}

// MatchesWithContext matches a compound selector against tagName/attrs
// plus the surrounding DOM state: ancestors runs outermost-first with
// the immediate parent last, prevSiblings runs first-seen-first with
// the immediately preceding sibling last.
func (cs *CompoundSelector) MatchesWithContext(tagName string, attrs map[string]string, ancestors []ElementInfo, prevSiblings []ElementInfo) bool {
	if len(cs.Parts) == 0 {
		return false
	}
	if !cs.Subject().Matches(tagName, attrs) {
		return false
	}
	if len(cs.Parts) == 1 {
		return true
	}

	walker := chainWalker{ancestors: ancestors, siblings: prevSiblings}
	walker.ancIdx = len(ancestors) - 1
	walker.sibIdx = len(prevSiblings) - 1

	for i := len(cs.Parts) - 2; i >= 0; i-- {
		if !walker.satisfy(cs.Parts[i]) {
			return false
		}
	}
	return true
}

// chainWalker tracks how far a MatchesWithContext pass has consumed
// ancestors/siblings while verifying combinators right-to-left.
type chainWalker struct {
	ancestors []ElementInfo
	siblings  []ElementInfo
	ancIdx    int
	sibIdx    int
}

func (w *chainWalker) satisfy(part SelectorPart) bool {
	switch part.Combinator {
	case CombinatorChild:
		if w.ancIdx < 0 {
			return false
		}
		parent := w.ancestors[w.ancIdx]
		w.ancIdx--
		return part.Sel.Matches(parent.TagName, parent.Attrs)

	case CombinatorDescendant:
		for w.ancIdx >= 0 {
			anc := w.ancestors[w.ancIdx]
			w.ancIdx--
			if part.Sel.Matches(anc.TagName, anc.Attrs) {
				return true
			}
		}
		return false

	case CombinatorAdjacentSibling:
		if w.sibIdx < 0 {
			return false
		}
		sib := w.siblings[w.sibIdx]
		w.sibIdx--
		return part.Sel.Matches(sib.TagName, sib.Attrs)

	case CombinatorGeneralSibling:
		for w.sibIdx >= 0 {
			sib := w.siblings[w.sibIdx]
			w.sibIdx--
			if part.Sel.Matches(sib.TagName, sib.Attrs) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

var combinatorTokens = map[byte]CombinatorType{
	'>': CombinatorChild,
	'+': CombinatorAdjacentSibling,
	'~': CombinatorGeneralSibling,
}

// ParseCompoundSelector parses a selector string that may chain several
// simple selectors with combinators (">", "+", "~", or whitespace for
// "descendant of").
func ParseCompoundSelector(s string) *CompoundSelector {
	s = strings.TrimSpace(s)
	if s == "" {
		return &CompoundSelector{Parts: []SelectorPart{{Sel: &CSSSelector{Tag: "*"}}}}
	}

	sc := &selectorScanner{src: s}
	segments := sc.segments()
	if len(segments) == 0 {
		return &CompoundSelector{Parts: []SelectorPart{{Sel: &CSSSelector{Tag: "*"}}}}
	}

	parts := make([]SelectorPart, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, SelectorPart{Sel: ParseSelector(seg.text), Combinator: seg.trailing})
	}
	return &CompoundSelector{Parts: parts}
}

// segment is one simple-selector string plus the combinator that
// follows it (CombinatorNone for the rightmost / subject segment).
type segment struct {
	text     string
	trailing CombinatorType
}

// selectorScanner walks a raw selector string and splits it into
// simple-selector segments, recording the combinator between each pair.
type selectorScanner struct {
	src string
	pos int
}

func (sc *selectorScanner) segments() []segment {
	var out []segment
	for sc.pos < len(sc.src) {
		sawSpace := sc.skipSpace()

		if sc.pos >= len(sc.src) {
			break
		}

		if comb, ok := combinatorTokens[sc.src[sc.pos]]; ok {
			sc.pos++
			sc.skipSpace()
			if len(out) > 0 {
				out[len(out)-1].trailing = comb
			}
			continue
		}

		if sawSpace && len(out) > 0 && out[len(out)-1].trailing == CombinatorNone {
			out[len(out)-1].trailing = CombinatorDescendant
		}

		text := sc.readSimpleSelector()
		if text != "" {
			out = append(out, segment{text: text})
		}
	}
	return out
}

func (sc *selectorScanner) skipSpace() bool {
	start := sc.pos
	for sc.pos < len(sc.src) && (sc.src[sc.pos] == ' ' || sc.src[sc.pos] == '\t') {
		sc.pos++
	}
	return sc.pos > start
}

// readSimpleSelector consumes up to the next whitespace or combinator,
// treating a bracketed attribute matcher as opaque so spaces inside
// `[attr = val]` don't split the segment early.
func (sc *selectorScanner) readSimpleSelector() string {
	start := sc.pos
	for sc.pos < len(sc.src) {
		c := sc.src[sc.pos]
		if c == ' ' || c == '\t' || c == '>' || c == '+' || c == '~' {
			break
		}
		if c == '[' {
			for sc.pos < len(sc.src) && sc.src[sc.pos] != ']' {
				sc.pos++
			}
			if sc.pos < len(sc.src) {
				sc.pos++
			}
			continue
		}
		sc.pos++
	}
	return sc.src[start:sc.pos]
}

// ParseSelector parses one simple selector such as "div.card#x[href]".
func ParseSelector(s string) *CSSSelector {
	s = strings.TrimSpace(s)
	if s == "" {
		return &CSSSelector{Tag: "*"}
	}

	sel := &CSSSelector{}
	i := 0
	isBoundary := func(c byte) bool { return c == '#' || c == '.' || c == '[' }

	start := i
	for i < len(s) && !isBoundary(s[i]) {
		i++
	}
	sel.Tag = s[start:i]

	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			start = i
			for i < len(s) && !isBoundary(s[i]) {
				i++
			}
			sel.ID = s[start:i]

		case '.':
			i++
			start = i
			for i < len(s) && !isBoundary(s[i]) {
				i++
			}
			sel.Classes = append(sel.Classes, s[start:i])

		case '[':
			i++
			start = i
			for i < len(s) && s[i] != ']' {
				i++
			}
			sel.Attributes = append(sel.Attributes, parseAttrMatcher(s[start:i]))
			if i < len(s) {
				i++
			}

		default:
			i++
		}
	}

	return sel
}

var attrOperators = []string{"*=", "^=", "$=", "~=", "="}

func parseAttrMatcher(s string) AttrMatcher {
	for _, op := range attrOperators {
		idx := strings.Index(s, op)
		if idx == -1 {
			continue
		}
		name := strings.TrimSpace(s[:idx])
		value := strings.Trim(strings.TrimSpace(s[idx+len(op):]), `"'`)
		return AttrMatcher{Name: name, Op: op, Value: value}
	}
	return AttrMatcher{Name: strings.TrimSpace(s)}
}

// Matches reports whether sel's tag/id/class/attribute constraints all
// hold for an element with the given tag name and attributes.
func (sel *CSSSelector) Matches(tagName string, attrs map[string]string) bool {
	if sel.Tag != "" && sel.Tag != "*" && !strings.EqualFold(sel.Tag, tagName) {
		return false
	}
	if sel.ID != "" && attrs["id"] != sel.ID {
		return false
	}
	for _, cls := range sel.Classes {
		if !hasClass(attrs["class"], cls) {
			return false
		}
	}
	for _, am := range sel.Attributes {
		val, ok := attrs[am.Name]
		if !ok {
			return false
		}
		if !am.matchesValue(val) {
			return false
		}
	}
	return true
}

func hasClass(classAttr, want string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == want {
			return true
		}
	}
	return false
}

func (am AttrMatcher) matchesValue(val string) bool {
	switch am.Op {
	case "":
		return true
	case "=":
		return val == am.Value
	case "*=":
		return strings.Contains(val, am.Value)
	case "^=":
		return strings.HasPrefix(val, am.Value)
	case "$=":
		return strings.HasSuffix(val, am.Value)
	case "~=":
		for _, w := range strings.Fields(val) {
			if w == am.Value {
				return true
			}
		}
		return false
	default:
		return false
	}
}
