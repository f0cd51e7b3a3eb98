package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// compound is one simple selector such as div.note#main[data-x^=a].
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
}

type attrTest struct {
	name, op, value string
}

type combinator byte

const (
	combNone       combinator = 0
	combDescendant combinator = ' '
	combChild      combinator = '>'
	combAdjacent   combinator = '+'
	combSibling    combinator = '~'
)

// step is a compound plus the combinator linking it to the step on its
// right, so chains read left (ancestor) to right (subject).
type step struct {
	sel  compound
	comb combinator
}

type chain []step

// parseSelectorList parses a comma separated group of selector chains.
func parseSelectorList(s string) []chain {
	var out []chain
	for _, part := range strings.Split(s, ",") {
		if c := parseChain(part); len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func parseChain(s string) chain {
	var c chain
	pending := combNone
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); {
		switch ch := s[i]; {
		case ch == ' ' || ch == '\t' || ch == '\n':
			if pending == combNone && len(c) > 0 {
				pending = combDescendant
			}
			i++
		case ch == '>' || ch == '+' || ch == '~':
			pending = combinator(ch)
			i++
		default:
			start := i
			for i < len(s) && !strings.ContainsRune(" \t\n>+~", rune(s[i])) {
				if s[i] == '[' {
					for i < len(s) && s[i] != ']' {
						i++
					}
				}
				if i < len(s) {
					i++
				}
			}
			if len(c) > 0 {
				c[len(c)-1].comb = pending
			}
			c = append(c, step{sel: parseCompound(s[start:i])})
			pending = combNone
		}
	}
	return c
}

func parseCompound(s string) compound {
	var sel compound
	readName := func(i int) (string, int) {
		start := i
		for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
			i++
		}
		return s[start:i], i
	}
	i := 0
	sel.tag, i = readName(0)
	for i < len(s) {
		var name string
		switch s[i] {
		case '#':
			sel.id, i = readName(i + 1)
		case '.':
			name, i = readName(i + 1)
			sel.classes = append(sel.classes, name)
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				end = len(s) - i
			}
			sel.attrs = append(sel.attrs, parseAttrTest(s[i+1:i+end]))
			i += end + 1
		default:
			i++
		}
	}
	return sel
}

func parseAttrTest(s string) attrTest {
	for _, op := range []string{"*=", "^=", "$=", "~=", "|=", "="} {
		if idx := strings.Index(s, op); idx >= 0 {
			return attrTest{
				name:  strings.ToLower(strings.TrimSpace(s[:idx])),
				op:    op,
				value: strings.Trim(strings.TrimSpace(s[idx+len(op):]), `"'`),
			}
		}
	}
	return attrTest{name: strings.ToLower(strings.TrimSpace(s))}
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (sel compound) matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && sel.tag != "*" && !strings.EqualFold(sel.tag, n.Data) {
		return false
	}
	if sel.id != "" {
		if v, _ := attrValue(n, "id"); v != sel.id {
			return false
		}
	}
	if len(sel.classes) > 0 {
		v, _ := attrValue(n, "class")
		fields := strings.Fields(v)
		for _, cls := range sel.classes {
			found := false
			for _, f := range fields {
				if f == cls {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, t := range sel.attrs {
		v, ok := attrValue(n, t.name)
		if !ok {
			return false
		}
		switch t.op {
		case "=":
			ok = v == t.value
		case "*=":
			ok = strings.Contains(v, t.value)
		case "^=":
			ok = strings.HasPrefix(v, t.value)
		case "$=":
			ok = strings.HasSuffix(v, t.value)
		case "~=":
			ok = false
			for _, f := range strings.Fields(v) {
				if f == t.value {
					ok = true
					break
				}
			}
		case "|=":
			ok = v == t.value || strings.HasPrefix(v, t.value+"-")
		}
		if !ok {
			return false
		}
	}
	return true
}

func prevElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// matchAt reports whether the chain prefix c[:i+1] matches with c[i]
// as the element n.
func (c chain) matchAt(i int, n *html.Node) bool {
	if !c[i].sel.matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	switch c[i-1].comb {
	case combChild:
		return c.matchAt(i-1, n.Parent)
	case combAdjacent:
		return c.matchAt(i-1, prevElement(n))
	case combSibling:
		for p := prevElement(n); p != nil; p = prevElement(p) {
			if c.matchAt(i-1, p) {
				return true
			}
		}
	default:
		for p := n.Parent; p != nil; p = p.Parent {
			if c.matchAt(i-1, p) {
				return true
			}
		}
	}
	return false
}

func (c chain) match(n *html.Node) bool {
	return c.matchAt(len(c)-1, n)
}

// QuerySelectorAll returns the handles of descendants of id matching
// selector, in document order.
func (d *Document) QuerySelectorAll(id int, selector string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root, err := d.node(id)
	if err != nil {
		return nil, err
	}
	chains := parseSelectorList(selector)
	out := []int{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			for _, ch := range chains {
				if ch.match(c) {
					out = append(out, d.handle(c))
					break
				}
			}
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

// QuerySelector returns the first descendant of id matching selector,
// or 0.
func (d *Document) QuerySelector(id int, selector string) (int, error) {
	all, err := d.QuerySelectorAll(id, selector)
	if err != nil || len(all) == 0 {
		return 0, err
	}
	return all[0], nil
}

// Matches reports whether the element id matches selector.
func (d *Document) Matches(id int, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return false, err
	}
	for _, ch := range parseSelectorList(selector) {
		if ch.match(n) {
			return true, nil
		}
	}
	return false, nil
}

// ElementByID returns the first element in the document with the given
// id attribute, or 0.
func (d *Document) ElementByID(value string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if v, ok := attrValue(c, "id"); ok && v == value {
					found = c
					return true
				}
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(d.doc)
	return d.handle(found)
}
