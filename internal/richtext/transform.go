// Package richtext converts editor HTML into the structured document shape
// the public listing renders. Rich text is stored twice on purpose: the HTML
// string feeds the admin preview, the node tree feeds the listing renderer.
// The tree is always derived from the HTML, never edited independently.
package richtext

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Document struct {
	NodeType string         `json:"nodeType"`
	Data     map[string]any `json:"data"`
	Content  []Node         `json:"content"`
}

type Node struct {
	NodeType string         `json:"nodeType"`
	Value    string         `json:"value,omitempty"`
	Marks    []Mark         `json:"marks,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Content  []Node         `json:"content,omitempty"`
}

type Mark struct {
	Type string `json:"type"`
}

// Transform parses editor HTML into a document tree. Unknown elements are
// flattened into their inline content rather than dropped.
func Transform(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rich text: %w", err)
	}
	out := &Document{NodeType: "document", Data: map[string]any{}, Content: []Node{}}
	doc.Find("body").Contents().Each(func(_ int, sel *goquery.Selection) {
		if n, ok := blockNode(sel); ok {
			out.Content = append(out.Content, n)
		}
	})
	return out, nil
}

// TransformJSON returns the serialized document for persistence alongside the
// HTML representation.
func TransformJSON(html string) ([]byte, error) {
	doc, err := Transform(html)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func blockNode(sel *goquery.Selection) (Node, bool) {
	switch goquery.NodeName(sel) {
	case "p":
		return Node{NodeType: "paragraph", Content: inlineNodes(sel, nil)}, true
	case "ul":
		return listNode("unordered-list", sel), true
	case "ol":
		return listNode("ordered-list", sel), true
	case "#text":
		// Stray text outside any block still needs a paragraph to live in.
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return Node{}, false
		}
		return Node{NodeType: "paragraph", Content: []Node{{NodeType: "text", Value: text}}}, true
	default:
		content := inlineNodes(sel, nil)
		if len(content) == 0 {
			return Node{}, false
		}
		return Node{NodeType: "paragraph", Content: content}, true
	}
}

func listNode(nodeType string, sel *goquery.Selection) Node {
	list := Node{NodeType: nodeType}
	sel.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		item := Node{NodeType: "list-item", Content: []Node{
			{NodeType: "paragraph", Content: inlineNodes(li, nil)},
		}}
		list.Content = append(list.Content, item)
	})
	return list
}

func inlineNodes(sel *goquery.Selection, marks []Mark) []Node {
	var out []Node
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "#text":
			if child.Text() == "" {
				return
			}
			out = append(out, Node{NodeType: "text", Value: child.Text(), Marks: marks})
		case "strong", "b":
			out = append(out, inlineNodes(child, appendMark(marks, "bold"))...)
		case "em", "i":
			out = append(out, inlineNodes(child, appendMark(marks, "italic"))...)
		case "u":
			out = append(out, inlineNodes(child, appendMark(marks, "underline"))...)
		case "a":
			href, _ := child.Attr("href")
			out = append(out, Node{
				NodeType: "hyperlink",
				Data:     map[string]any{"uri": href},
				Content:  inlineNodes(child, marks),
			})
		case "br":
			out = append(out, Node{NodeType: "text", Value: "\n", Marks: marks})
		default:
			out = append(out, inlineNodes(child, marks)...)
		}
	})
	return out
}

func appendMark(marks []Mark, t string) []Mark {
	next := make([]Mark, len(marks), len(marks)+1)
	copy(next, marks)
	return append(next, Mark{Type: t})
}
