package decode

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"

	"bibmerge/internal/util"
)

// Node is one element of a parsed feed. ONIX feeds come in reference-tag
// and short-tag flavours, so products are walked by name rather than bound
// to a fixed struct. Lookups match local names; namespace prefixes are
// ignored.
type Node struct {
	el *etree.Element
}

func wrap(el *etree.Element) *Node {
	if el == nil {
		return nil
	}
	return &Node{el: el}
}

func ReadXMLFile(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadXML(f)
}

// ReadXML parses an XML document and returns its root element.
func ReadXML(r io.Reader) (*Node, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	doc.ReadSettings.CharsetReader = charsetReader
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse xml: no root element")
	}
	return wrap(root), nil
}

// Name is the local element name.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.el.Tag
}

// Attr returns the value of attribute key, "" when absent.
func (n *Node) Attr(key string) string {
	if n == nil {
		return ""
	}
	return n.el.SelectAttrValue(key, "")
}

// Text is the trimmed character data directly inside the element.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.el.Text())
}

// Child returns the first direct child named name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	return wrap(n.el.SelectElement(name))
}

// ChildrenNamed returns every direct child named name.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	out := []*Node{}
	for _, c := range n.el.SelectElements(name) {
		out = append(out, wrap(c))
	}
	return out
}

// Find follows path through first-match children.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, name := range path {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Value returns the plain text at path, "" when the path is absent.
func (n *Node) Value(path ...string) string {
	target := n.Find(path...)
	if target == nil {
		return ""
	}
	return PlainText(target.Text())
}

// Products returns the product elements of an ONIX message in either tag
// flavour.
func Products(root *Node) []*Node {
	if root == nil {
		return nil
	}
	out := []*Node{}
	for _, c := range root.el.ChildElements() {
		if c.Tag == "Product" || c.Tag == "product" {
			out = append(out, wrap(c))
		}
	}
	return out
}

// PlainText strips markup and entities that feeds embed in text values
// (escaped XHTML in titles and subject headings).
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return util.NormalizeSpaces(doc.Text())
}

// charsetReader decodes the legacy single-byte encodings publisher feeds
// declare. Anything else is read as UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return input, nil
	}
}
