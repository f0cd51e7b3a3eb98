// Package dom implements the document a sandboxed application renders
// into. Nodes are golang.org/x/net/html trees addressed from script by
// integer handles; the document element, head and body keep fixed
// handles for the lifetime of the document.
package dom

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cryguy/fastboot/internal/core"
)

// Fixed handles.
const (
	HandleDocument = 1
	HandleHTML     = 2
	HandleHead     = 3
	HandleBody     = 4
)

const (
	nsSVG    = "http://www.w3.org/2000/svg"
	nsMathML = "http://www.w3.org/1998/Math/MathML"
)

var (
	// ErrNoNode is returned for handles that do not name a live node.
	ErrNoNode = errors.New("dom: no such node")
	// ErrHierarchy is returned when an insertion would break the tree.
	ErrHierarchy = errors.New("dom: hierarchy request error")
)

// Document is a minimal HTML document with a stable html/head/body
// skeleton. It is safe for concurrent use.
type Document struct {
	mu      sync.Mutex
	doc     *html.Node
	root    *html.Node
	head    *html.Node
	body    *html.Node
	handles map[int]*html.Node
	ids     map[*html.Node]int
	next    int
}

// New returns an empty document.
func New() *Document {
	d := &Document{}
	d.doc = &html.Node{Type: html.DocumentNode}
	d.root = newElement("html", "")
	d.head = newElement("head", "")
	d.body = newElement("body", "")
	d.doc.AppendChild(d.root)
	d.root.AppendChild(d.head)
	d.root.AppendChild(d.body)
	d.resetHandles()
	return d
}

func newElement(tag, ns string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, Namespace: ns}
	if ns == "" {
		n.DataAtom = atom.Lookup([]byte(tag))
	}
	return n
}

func (d *Document) resetHandles() {
	d.handles = map[int]*html.Node{
		HandleDocument: d.doc,
		HandleHTML:     d.root,
		HandleHead:     d.head,
		HandleBody:     d.body,
	}
	d.ids = map[*html.Node]int{
		d.doc:  HandleDocument,
		d.root: HandleHTML,
		d.head: HandleHead,
		d.body: HandleBody,
	}
	d.next = HandleBody
}

// Reset removes every child of head and body, strips all attributes
// from html, head and body and forgets every non-fixed handle.
func (d *Document) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range []*html.Node{d.head, d.body} {
		for c := n.FirstChild; c != nil; c = n.FirstChild {
			n.RemoveChild(c)
		}
	}
	for c := d.root.FirstChild; c != nil; {
		next := c.NextSibling
		if c != d.head && c != d.body {
			d.root.RemoveChild(c)
		}
		c = next
	}
	d.root.Attr, d.head.Attr, d.body.Attr = nil, nil, nil
	d.resetHandles()
}

// Capture serializes head and body content and enumerates the
// attributes of html, head and body.
func (d *Document) Capture() core.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return core.Snapshot{
		HeadContent:    innerHTML(d.head),
		BodyContent:    innerHTML(d.body),
		HTMLAttributes: attrMap(d.root),
		HeadAttributes: attrMap(d.head),
		BodyAttributes: attrMap(d.body),
	}
}

func attrMap(n *html.Node) map[string]string {
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[attrName(a)] = a.Val
	}
	return out
}

func attrName(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		serialize(&b, c)
	}
	return b.String()
}

func (d *Document) handle(n *html.Node) int {
	if n == nil {
		return 0
	}
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.next++
	d.handles[d.next] = n
	d.ids[n] = d.next
	return d.next
}

func (d *Document) node(id int) (*html.Node, error) {
	n, ok := d.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoNode, id)
	}
	return n, nil
}

// NodeInfo describes a node to script.
type NodeInfo struct {
	Type      int    `json:"type"`
	Name      string `json:"name"`
	Namespace string `json:"ns,omitempty"`
	Value     string `json:"value,omitempty"`
}

// DOM node type constants.
const (
	ElementNode          = 1
	TextNode             = 3
	CommentNode          = 8
	DocumentNode         = 9
	DocumentTypeNode     = 10
	DocumentFragmentNode = 11
)

// Info returns the type, name and value of a node.
func (d *Document) Info(id int) (NodeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return NodeInfo{}, err
	}
	switch n.Type {
	case html.ElementNode:
		info := NodeInfo{Type: ElementNode, Name: n.Data}
		switch n.Namespace {
		case "svg":
			info.Namespace = nsSVG
		case "math":
			info.Namespace = nsMathML
		default:
			info.Namespace = "http://www.w3.org/1999/xhtml"
			info.Name = strings.ToUpper(n.Data)
		}
		return info, nil
	case html.TextNode:
		return NodeInfo{Type: TextNode, Name: "#text", Value: n.Data}, nil
	case html.CommentNode:
		return NodeInfo{Type: CommentNode, Name: "#comment", Value: n.Data}, nil
	case html.DoctypeNode:
		return NodeInfo{Type: DocumentTypeNode, Name: n.Data}, nil
	case html.DocumentNode:
		if n == d.doc {
			return NodeInfo{Type: DocumentNode, Name: "#document"}, nil
		}
		return NodeInfo{Type: DocumentFragmentNode, Name: "#document-fragment"}, nil
	}
	return NodeInfo{}, fmt.Errorf("%w: %d", ErrNoNode, id)
}

// CreateElement creates a detached element. A namespace URI of SVG or
// MathML produces a foreign element whose tag keeps its case; anything
// else produces a lower-cased HTML element.
func (d *Document) CreateElement(tag, namespaceURI string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch namespaceURI {
	case nsSVG:
		return d.handle(newElement(tag, "svg"))
	case nsMathML:
		return d.handle(newElement(tag, "math"))
	}
	return d.handle(newElement(strings.ToLower(tag), ""))
}

// CreateText creates a detached text node.
func (d *Document) CreateText(data string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle(&html.Node{Type: html.TextNode, Data: data})
}

// CreateComment creates a detached comment node.
func (d *Document) CreateComment(data string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle(&html.Node{Type: html.CommentNode, Data: data})
}

// CreateFragment creates an empty document fragment.
func (d *Document) CreateFragment() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle(&html.Node{Type: html.DocumentNode})
}

func isFragment(d *Document, n *html.Node) bool {
	return n.Type == html.DocumentNode && n != d.doc
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// InsertBefore inserts child into parent before ref. A zero ref appends.
// Inserting a fragment moves its children and leaves it empty.
func (d *Document) InsertBefore(parentID, childID, refID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.node(parentID)
	if err != nil {
		return err
	}
	child, err := d.node(childID)
	if err != nil {
		return err
	}
	var ref *html.Node
	if refID != 0 {
		if ref, err = d.node(refID); err != nil {
			return err
		}
		if ref.Parent != parent {
			return fmt.Errorf("%w: reference node is not a child of the parent", ErrHierarchy)
		}
	}
	if parent == d.doc {
		return fmt.Errorf("%w: the document already has an element", ErrHierarchy)
	}
	if parent.Type == html.TextNode || parent.Type == html.CommentNode {
		return fmt.Errorf("%w: %s nodes cannot have children", ErrHierarchy, nodeKind(parent))
	}
	if child == d.doc || child == d.root || child == d.head || child == d.body {
		return fmt.Errorf("%w: the document skeleton cannot be moved", ErrHierarchy)
	}
	if contains(child, parent) {
		return fmt.Errorf("%w: cannot insert a node into itself", ErrHierarchy)
	}
	if child == ref {
		return nil
	}

	var moving []*html.Node
	if isFragment(d, child) {
		for c := child.FirstChild; c != nil; c = child.FirstChild {
			child.RemoveChild(c)
			moving = append(moving, c)
		}
	} else {
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		moving = append(moving, child)
	}
	for _, c := range moving {
		if ref == nil {
			parent.AppendChild(c)
		} else {
			parent.InsertBefore(c, ref)
		}
	}
	return nil
}

func nodeKind(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "text"
	case html.CommentNode:
		return "comment"
	}
	return "element"
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parentID, childID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.node(parentID)
	if err != nil {
		return err
	}
	child, err := d.node(childID)
	if err != nil {
		return err
	}
	if child.Parent != parent {
		return fmt.Errorf("%w: node is not a child of the parent", ErrHierarchy)
	}
	if child == d.head || child == d.body || child == d.root {
		return fmt.Errorf("%w: the document skeleton cannot be removed", ErrHierarchy)
	}
	parent.RemoveChild(child)
	return nil
}

// Relative returns the handle of a related node, or 0 when there is
// none. rel is one of parent, first, last, next and prev.
func (d *Document) Relative(id int, rel string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return 0, err
	}
	var r *html.Node
	switch rel {
	case "parent":
		r = n.Parent
	case "first":
		r = n.FirstChild
	case "last":
		r = n.LastChild
	case "next":
		r = n.NextSibling
	case "prev":
		r = n.PrevSibling
	default:
		return 0, fmt.Errorf("dom: unknown relation %q", rel)
	}
	return d.handle(r), nil
}

// Children returns the handles of the child nodes of id.
func (d *Document) Children(id int) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return nil, err
	}
	out := []int{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, d.handle(c))
	}
	return out, nil
}

func splitQualified(name string) (ns, key string) {
	if i := strings.IndexByte(name, ':'); i > 0 {
		switch name[:i] {
		case "xlink", "xml", "xmlns":
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

func (d *Document) element(id int) (*html.Node, error) {
	n, err := d.node(id)
	if err != nil {
		return nil, err
	}
	if n.Type != html.ElementNode {
		return nil, fmt.Errorf("dom: node %d is not an element", id)
	}
	return n, nil
}

func attrKey(n *html.Node, name string) string {
	if n.Namespace == "" {
		return strings.ToLower(name)
	}
	return name
}

// SetAttribute sets or replaces an attribute.
func (d *Document) SetAttribute(id int, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.element(id)
	if err != nil {
		return err
	}
	ns, key := splitQualified(attrKey(n, name))
	for i, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			n.Attr[i].Val = value
			return nil
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Namespace: ns, Key: key, Val: value})
	return nil
}

// GetAttribute returns an attribute value and whether it exists.
func (d *Document) GetAttribute(id int, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.element(id)
	if err != nil {
		return "", false, err
	}
	ns, key := splitQualified(attrKey(n, name))
	for _, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// RemoveAttribute removes an attribute if present.
func (d *Document) RemoveAttribute(id int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.element(id)
	if err != nil {
		return err
	}
	ns, key := splitQualified(attrKey(n, name))
	for i, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return nil
		}
	}
	return nil
}

// Attribute is a name/value pair in document order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attributes lists the attributes of an element in document order.
func (d *Document) Attributes(id int) ([]Attribute, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.element(id)
	if err != nil {
		return nil, err
	}
	out := make([]Attribute, 0, len(n.Attr))
	for _, a := range n.Attr {
		out = append(out, Attribute{Name: attrName(a), Value: a.Val})
	}
	return out, nil
}

// SetNodeValue replaces the data of a text or comment node.
func (d *Document) SetNodeValue(id int, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return err
	}
	if n.Type != html.TextNode && n.Type != html.CommentNode {
		return nil
	}
	n.Data = value
	return nil
}

// TextContent returns the concatenated text of a node's descendants.
func (d *Document) TextContent(id int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return "", err
	}
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data, nil
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
			case html.ElementNode, html.DocumentNode:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String(), nil
}

// SetTextContent replaces the children of a node with a single text
// node, or with nothing when text is empty.
func (d *Document) SetTextContent(id int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return err
	}
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		n.Data = text
		return nil
	}
	if n == d.doc || n == d.root {
		return fmt.Errorf("%w: cannot replace the document skeleton", ErrHierarchy)
	}
	removeChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return nil
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

// InnerHTML serializes the children of a node.
func (d *Document) InnerHTML(id int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return "", err
	}
	return innerHTML(n), nil
}

// OuterHTML serializes a node including itself.
func (d *Document) OuterHTML(id int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return "", err
	}
	if n.Type == html.DocumentNode {
		return innerHTML(n), nil
	}
	var b strings.Builder
	serialize(&b, n)
	return b.String(), nil
}

func (d *Document) parseFragment(context *html.Node, markup string) ([]*html.Node, error) {
	if context.Type != html.ElementNode {
		context = d.body
	}
	return html.ParseFragment(strings.NewReader(markup), context)
}

// SetInnerHTML parses markup in the context of the node and replaces
// its children with the result.
func (d *Document) SetInnerHTML(id int, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return err
	}
	if n == d.doc || n == d.root {
		return fmt.Errorf("%w: cannot replace the document skeleton", ErrHierarchy)
	}
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return fmt.Errorf("%w: %s nodes cannot have children", ErrHierarchy, nodeKind(n))
	}
	nodes, err := d.parseFragment(n, markup)
	if err != nil {
		return fmt.Errorf("dom: parsing markup: %w", err)
	}
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// InsertAdjacentHTML parses markup and inserts it relative to the node.
// position is beforebegin, afterbegin, beforeend or afterend.
func (d *Document) InsertAdjacentHTML(id int, position, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return err
	}
	var parent, ref *html.Node
	switch strings.ToLower(position) {
	case "beforebegin":
		parent, ref = n.Parent, n
	case "afterbegin":
		parent, ref = n, n.FirstChild
	case "beforeend":
		parent, ref = n, nil
	case "afterend":
		parent, ref = n.Parent, n.NextSibling
	default:
		return fmt.Errorf("dom: invalid insertAdjacentHTML position %q", position)
	}
	if parent == nil || parent == d.doc {
		return fmt.Errorf("%w: node has no element parent", ErrHierarchy)
	}
	nodes, err := d.parseFragment(parent, markup)
	if err != nil {
		return fmt.Errorf("dom: parsing markup: %w", err)
	}
	for _, c := range nodes {
		if ref == nil {
			parent.AppendChild(c)
		} else {
			parent.InsertBefore(c, ref)
		}
	}
	return nil
}

// CloneNode copies a node, including its descendants when deep is set.
func (d *Document) CloneNode(id int, deep bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(id)
	if err != nil {
		return 0, err
	}
	if n == d.doc {
		return 0, fmt.Errorf("%w: the document cannot be cloned", ErrHierarchy)
	}
	return d.handle(clone(n, deep)), nil
}

func clone(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for k := n.FirstChild; k != nil; k = k.NextSibling {
			c.AppendChild(clone(k, true))
		}
	}
	return c
}
