// Package dom is a server-side mirror of a rendered page. Lookups follow browser
// query semantics: an id that matches nothing yields a no-op, never an error.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/livefir/blogpage/internal/patch"
)

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// ByID returns the element with the given id, or nil.
func (d *Document) ByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	literal, ok := xpathLiteral(id)
	if !ok {
		return nil
	}
	node, err := htmlquery.Query(d.root, "//*[@id="+literal+"]")
	if err != nil {
		return nil
	}
	return node
}

// Exists reports whether an element with the given id is present.
func (d *Document) Exists(id string) bool {
	return d.ByID(id) != nil
}

// Attr returns the value of an attribute on the element with the given id.
func (d *Document) Attr(id, name string) (string, bool) {
	n := d.ByID(id)
	if n == nil {
		return "", false
	}
	return getAttr(n, name)
}

// SetAttr sets an attribute. It returns false when the element is missing.
func (d *Document) SetAttr(id, name, value string) bool {
	n := d.ByID(id)
	if n == nil {
		return false
	}
	setAttr(n, name, value)
	return true
}

// Show removes the hidden attribute.
func (d *Document) Show(id string) bool {
	n := d.ByID(id)
	if n == nil {
		return false
	}
	removeAttr(n, "hidden")
	return true
}

// Hide sets the hidden attribute.
func (d *Document) Hide(id string) bool {
	n := d.ByID(id)
	if n == nil {
		return false
	}
	setAttr(n, "hidden", "")
	return true
}

// Visible reports whether the element exists and is not hidden.
func (d *Document) Visible(id string) bool {
	n := d.ByID(id)
	if n == nil {
		return false
	}
	_, hidden := getAttr(n, "hidden")
	return !hidden
}

// Text returns the whitespace-trimmed text content of the element.
func (d *Document) Text(id string) string {
	n := d.ByID(id)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

// Value returns the value of an input, or the contents of a textarea.
func (d *Document) Value(id string) string {
	n := d.ByID(id)
	if n == nil {
		return ""
	}
	if n.Data == "textarea" {
		return htmlquery.InnerText(n)
	}
	v, _ := getAttr(n, "value")
	return v
}

// SetValue sets the value of an input, or replaces the contents of a textarea.
func (d *Document) SetValue(id, value string) bool {
	n := d.ByID(id)
	if n == nil {
		return false
	}
	if n.Data == "textarea" {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		return true
	}
	setAttr(n, "value", value)
	return true
}

// InsertAfter moves the target element so it immediately follows the anchor. It is a
// no-op when either element is missing or the anchor lives inside the target.
func (d *Document) InsertAfter(targetID, anchorID string) bool {
	target := d.ByID(targetID)
	anchor := d.ByID(anchorID)
	if target == nil || anchor == nil || anchor.Parent == nil {
		return false
	}
	if contains(target, anchor) {
		return false
	}

	if target.Parent != nil {
		target.Parent.RemoveChild(target)
	}
	anchor.Parent.InsertBefore(target, anchor.NextSibling)
	return true
}

// NextElementID returns the id of the next element sibling, used to check placement.
func (d *Document) NextElementID(id string) string {
	n := d.ByID(id)
	if n == nil {
		return ""
	}
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			v, _ := getAttr(s, "id")
			return v
		}
	}
	return ""
}

// Apply executes patches in order. Patches whose target is missing are skipped and
// returned so callers can record them.
func (d *Document) Apply(patches []patch.Patch) (missed []patch.Patch) {
	for _, p := range patches {
		if !d.apply(p) {
			missed = append(missed, p)
		}
	}
	return missed
}

func (d *Document) apply(p patch.Patch) bool {
	switch p.Op {
	case patch.OpSetValue:
		return d.SetValue(p.Target, p.Value)
	case patch.OpSetAttr:
		return d.SetAttr(p.Target, p.Attr, p.Value)
	case patch.OpShow:
		return d.Show(p.Target)
	case patch.OpHide:
		return d.Hide(p.Target)
	case patch.OpInsertAfter:
		return d.InsertAfter(p.Target, p.Anchor)
	case patch.OpCopyText:
		// A missing source reads as empty text, as a browser query would.
		return d.SetValue(p.Target, d.Text(p.Source))
	default:
		return false
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document to a string.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// xpathLiteral quotes s for use in an XPath expression. XPath 1.0 has no escape
// sequence, so a value holding both quote kinds cannot be matched.
func xpathLiteral(s string) (string, bool) {
	if !strings.Contains(s, "'") {
		return "'" + s + "'", true
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`, true
	}
	return "", false
}
