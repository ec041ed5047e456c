package webapi

import "testing"

func TestParseSelector_SimpleForms(t *testing.T) {
	tests := []struct {
		in      string
		wantTag string
		wantID  string
		wantCls []string
	}{
		{"div", "div", "", nil},
		{"#main", "", "main", nil},
		{".active", "", "", []string{"active"}},
		{"div.active", "div", "", []string{"active"}},
		{"div#main.active.visible", "div", "main", []string{"active", "visible"}},
		{"*", "*", "", nil},
		{"", "*", "", nil},
	}
	for _, tt := range tests {
		got := ParseSelector(tt.in)
		if got.Tag != tt.wantTag {
			t.Errorf("ParseSelector(%q).Tag = %q, want %q", tt.in, got.Tag, tt.wantTag)
		}
		if got.ID != tt.wantID {
			t.Errorf("ParseSelector(%q).ID = %q, want %q", tt.in, got.ID, tt.wantID)
		}
		if len(got.Classes) != len(tt.wantCls) {
			t.Errorf("ParseSelector(%q).Classes = %v, want %v", tt.in, got.Classes, tt.wantCls)
		}
	}
}

func TestParseSelector_Attributes(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantOp   string
		wantVal  string
	}{
		{"[href]", "href", "", ""},
		{`[data-x="foo"]`, "data-x", "=", "foo"},
		{"[class*=btn]", "class", "*=", "btn"},
		{"[href^=https]", "href", "^=", "https"},
		{"[href$=.png]", "href", "$=", ".png"},
	}
	for _, tt := range tests {
		got := ParseSelector(tt.in)
		if len(got.Attributes) != 1 {
			t.Fatalf("ParseSelector(%q).Attributes = %v, want 1 entry", tt.in, got.Attributes)
		}
		am := got.Attributes[0]
		if am.Name != tt.wantName || am.Op != tt.wantOp || am.Value != tt.wantVal {
			t.Errorf("ParseSelector(%q).Attributes[0] = %+v, want {%q %q %q}", tt.in, am, tt.wantName, tt.wantOp, tt.wantVal)
		}
	}
}

func TestCSSSelector_Matches(t *testing.T) {
	tests := []struct {
		sel   string
		tag   string
		attrs map[string]string
		want  bool
	}{
		{"div", "div", nil, true},
		{"div", "span", nil, false},
		{"DIV", "div", nil, true}, // tag match is case-insensitive
		{"#main", "div", map[string]string{"id": "main"}, true},
		{"#main", "div", map[string]string{"id": "other"}, false},
		{".active", "div", map[string]string{"class": "foo active bar"}, true},
		{".active", "div", map[string]string{"class": "foo bar"}, false},
		{"[data-x=foo]", "div", map[string]string{"data-x": "foo"}, true},
		{"[data-x=foo]", "div", map[string]string{"data-x": "bar"}, false},
		{"[class~=btn]", "div", map[string]string{"class": "primary btn large"}, true},
		{"[class~=btn]", "div", map[string]string{"class": "button"}, false},
		{"div.active#main", "div", map[string]string{"id": "main", "class": "active"}, true},
	}
	for _, tt := range tests {
		sel := ParseSelector(tt.sel)
		if got := sel.Matches(tt.tag, tt.attrs); got != tt.want {
			t.Errorf("ParseSelector(%q).Matches(%q, %v) = %v, want %v", tt.sel, tt.tag, tt.attrs, got, tt.want)
		}
	}
}

func TestParseCompoundSelector_Combinators(t *testing.T) {
	tests := []struct {
		in        string
		wantParts int
		wantComb  CombinatorType
	}{
		{"div", 1, CombinatorNone},
		{"div p", 2, CombinatorDescendant},
		{"div > p", 2, CombinatorChild},
		{"div + p", 2, CombinatorAdjacentSibling},
		{"div ~ p", 2, CombinatorGeneralSibling},
	}
	for _, tt := range tests {
		cs := ParseCompoundSelector(tt.in)
		if len(cs.Parts) != tt.wantParts {
			t.Fatalf("ParseCompoundSelector(%q) has %d parts, want %d", tt.in, len(cs.Parts), tt.wantParts)
		}
		if tt.wantParts > 1 && cs.Parts[0].Combinator != tt.wantComb {
			t.Errorf("ParseCompoundSelector(%q).Parts[0].Combinator = %v, want %v", tt.in, cs.Parts[0].Combinator, tt.wantComb)
		}
	}
}

func TestCompoundSelector_MatchesWithContext_Child(t *testing.T) {
	cs := ParseCompoundSelector("div > p")
	ancestors := []ElementInfo{{TagName: "div"}}

	if !cs.MatchesWithContext("p", nil, ancestors, nil) {
		t.Errorf("expected div > p to match p with div parent")
	}

	ancestorsMismatch := []ElementInfo{{TagName: "section"}}
	if cs.MatchesWithContext("p", nil, ancestorsMismatch, nil) {
		t.Errorf("expected div > p to not match p with section parent")
	}
}

func TestCompoundSelector_MatchesWithContext_Descendant(t *testing.T) {
	cs := ParseCompoundSelector("div p")
	ancestors := []ElementInfo{{TagName: "div"}, {TagName: "section"}}

	if !cs.MatchesWithContext("p", nil, ancestors, nil) {
		t.Errorf("expected div p to match p with a div ancestor further up")
	}
}

func TestCompoundSelector_Subject(t *testing.T) {
	cs := ParseCompoundSelector("div > p.active")
	subj := cs.Subject()
	if subj.Tag != "p" || len(subj.Classes) != 1 || subj.Classes[0] != "active" {
		t.Errorf("Subject() = %+v, want tag p with class active", subj)
	}
}
