// internal/browser/dom/discover.go
package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/citefill/internal/formmap"
)

// maxParentLabel bounds the label text taken from an input's parent element.
const maxParentLabel = 100

// formControls is the selector for every element that can carry a form value.
const formControls = "input, select, textarea"

// inputTypes are the values the DOM reports for an input's type property.
// Anything else (including a missing attribute) reads back as "text".
var inputTypes = map[string]struct{}{
	"button": {}, "checkbox": {}, "color": {}, "date": {}, "datetime-local": {},
	"email": {}, "file": {}, "hidden": {}, "image": {}, "month": {}, "number": {},
	"password": {}, "radio": {}, "range": {}, "reset": {}, "search": {},
	"submit": {}, "tel": {}, "text": {}, "time": {}, "url": {}, "week": {},
}

// Discover parses a serialized document and describes every input, select and
// textarea in document order.
func Discover(r io.Reader) ([]formmap.Input, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOM snapshot: %w", err)
	}
	return discover(doc), nil
}

// DiscoverHTML is Discover over an in-memory snapshot.
func DiscoverHTML(snapshot string) ([]formmap.Input, error) {
	return Discover(strings.NewReader(snapshot))
}

func discover(doc *goquery.Document) []formmap.Input {
	labelFor := make(map[string]string)
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("for")
		if _, seen := labelFor[id]; !seen {
			labelFor[id] = strings.TrimSpace(s.Text())
		}
	})

	controls := doc.Find(formControls)
	inputs := make([]formmap.Input, 0, controls.Length())
	controls.Each(func(i int, s *goquery.Selection) {
		node := s.Get(0)
		id := s.AttrOr("id", "")

		label := ""
		if id != "" {
			label = labelFor[id]
		}
		if label == "" {
			label = parentLabel(s)
		}

		inputs = append(inputs, formmap.Input{
			// Positional and counted over every control, not only <input>
			// elements. The fill step prefers id and name over it.
			Selector:    "input:nth-of-type(" + strconv.Itoa(i+1) + ")",
			Type:        controlType(node, s),
			Name:        s.AttrOr("name", ""),
			ID:          id,
			Placeholder: s.AttrOr("placeholder", ""),
			Label:       label,
		})
	})
	return inputs
}

func parentLabel(s *goquery.Selection) string {
	parent := s.Parent()
	if parent.Length() == 0 || parent.Get(0).Type != html.ElementNode {
		return ""
	}
	text := strings.TrimSpace(parent.Text())
	runes := []rune(text)
	if len(runes) > maxParentLabel {
		return string(runes[:maxParentLabel])
	}
	return text
}

func controlType(node *html.Node, s *goquery.Selection) string {
	switch node.DataAtom {
	case atom.Select:
		if _, multiple := s.Attr("multiple"); multiple {
			return "select-multiple"
		}
		return "select-one"
	case atom.Textarea:
		return "textarea"
	}
	t := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
	if _, ok := inputTypes[t]; ok {
		return t
	}
	return "text"
}
