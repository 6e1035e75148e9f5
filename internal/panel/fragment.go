package panel

import (
	"bytes"
	"fmt"
	"strings"

	"trenko-panel/internal/actions"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attributes the engine reads back from the page.
const (
	PanelAttr  = "data-trenko-panel"
	ActionAttr = "data-trenko-action"

	// PanelSelector finds an attached panel.
	PanelSelector = "[" + PanelAttr + "]"
)

// ActionSelector finds the control for id inside the panel.
func ActionSelector(id actions.ID) string {
	return fmt.Sprintf(`%s [%s="%s"]`, PanelSelector, ActionAttr, id)
}

// Styles are the host page's current class names for the elements the panel mimics.
type Styles struct {
	Group   string
	Heading string
	List    string
	Item    string
	Button  string
}

// ReadStyles pulls class names from the first hgroup, h4, ul, li and button inside the
// container markup. Missing elements leave the class empty.
func ReadStyles(containerHTML string) (Styles, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(containerHTML))
	if err != nil {
		return Styles{}, fmt.Errorf("parse container: %w", err)
	}
	class := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("class")
		return strings.TrimSpace(v)
	}
	return Styles{
		Group:   class("hgroup"),
		Heading: class("h4"),
		List:    class("ul"),
		Item:    class("li"),
		Button:  class("button"),
	}, nil
}

// Titles label the panel and, when Section is set, the host's own buttons that follow it.
type Titles struct {
	Panel   string
	Section string
}

// Build renders the panel fragment: one heading group and one list holding every action
// from defs as li > button, each item hidden until the first render. A non-empty
// Section title closes the fragment with a second heading group.
func Build(titles Titles, styles Styles, defs []actions.Definition) (string, error) {
	root := element(atom.Div, "", html.Attribute{Key: PanelAttr, Val: "true"})
	root.AppendChild(headingGroup(titles.Panel, styles))

	list := element(atom.Ul, styles.List)
	for _, def := range defs {
		item := element(atom.Li, styles.Item, html.Attribute{Key: "hidden", Val: ""})
		button := element(atom.Button, styles.Button,
			html.Attribute{Key: "type", Val: "button"},
			html.Attribute{Key: ActionAttr, Val: string(def.ID)},
		)
		button.AppendChild(&html.Node{Type: html.TextNode, Data: def.Label})
		item.AppendChild(button)
		list.AppendChild(item)
	}
	root.AppendChild(list)

	if titles.Section != "" {
		root.AppendChild(element(atom.Br, ""))
		root.AppendChild(headingGroup(titles.Section, styles))
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render panel: %w", err)
	}
	return buf.String(), nil
}

func headingGroup(title string, styles Styles) *html.Node {
	group := element(atom.Hgroup, styles.Group)
	heading := element(atom.H4, styles.Heading)
	heading.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	group.AppendChild(heading)
	return group
}

func element(a atom.Atom, class string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if class != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
	}
	n.Attr = append(n.Attr, attrs...)
	return n
}
