package fakebrowser

import (
	"strings"

	"golang.org/x/net/html"
)

// simpleSelector is one compound selector: optional tag plus any number of
// id/class/attribute conditions, e.g. "input#g-login" or "button.g-save".
type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   map[string]string
}

// parseSelector parses a descendant-combinator chain of simple selectors.
// This covers the subset scenarios use; anything fancier belongs in the real
// browser driver.
func parseSelector(s string) []simpleSelector {
	var chain []simpleSelector
	for _, part := range strings.Fields(s) {
		chain = append(chain, parseSimple(part))
	}
	return chain
}

func parseSimple(s string) simpleSelector {
	sel := simpleSelector{attrs: map[string]string{}}
	for len(s) > 0 {
		switch s[0] {
		case '#':
			rest := s[1:]
			end := tokenEnd(rest)
			sel.id = rest[:end]
			s = rest[end:]
		case '.':
			rest := s[1:]
			end := tokenEnd(rest)
			sel.classes = append(sel.classes, rest[:end])
			s = rest[end:]
		case '[':
			close := strings.IndexByte(s, ']')
			if close < 0 {
				return sel
			}
			body := s[1:close]
			key, value, found := strings.Cut(body, "=")
			if found {
				sel.attrs[key] = strings.Trim(value, `"'`)
			} else {
				sel.attrs[key] = ""
			}
			s = s[close+1:]
		default:
			end := tokenEnd(s)
			sel.tag = s[:end]
			s = s[end:]
		}
	}
	return sel
}

func tokenEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' || s[i] == '.' || s[i] == '[' {
			return i
		}
	}
	return len(s)
}

func (sel simpleSelector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && n.Data != sel.tag {
		return false
	}
	if sel.id != "" && attrValue(n, "id") != sel.id {
		return false
	}
	for _, class := range sel.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	for key, want := range sel.attrs {
		got, ok := lookupAttr(n, key)
		if !ok {
			return false
		}
		if want != "" && got != want {
			return false
		}
	}
	return true
}

// findAll collects elements matching the selector chain with descendant
// semantics, in document order.
func findAll(root *html.Node, chain []simpleSelector) []*html.Node {
	if len(chain) == 0 {
		return nil
	}
	current := []*html.Node{root}
	for _, sel := range chain {
		var next []*html.Node
		for _, base := range current {
			collectDescendants(base, sel, &next)
		}
		current = dedupe(next)
	}
	return current
}

// collectDescendants appends descendants of base (excluding base itself)
// matching sel.
func collectDescendants(base *html.Node, sel simpleSelector, out *[]*html.Node) {
	for c := base.FirstChild; c != nil; c = c.NextSibling {
		if sel.matches(c) {
			*out = append(*out, c)
		}
		collectDescendants(c, sel, out)
	}
}

func dedupe(nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]struct{}, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func replaceText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func isHidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode {
			style := strings.ReplaceAll(attrValue(cur, "style"), " ", "")
			if strings.Contains(style, "display:none") {
				return true
			}
		}
	}
	return false
}
