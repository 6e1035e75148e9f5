// Package policy derives which panel actions are visible for each session status. The
// action table is rendered as Mangle facts and evaluated against a small rule program;
// the result is frozen into a lookup table at construction.
package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/session"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed visibility.mg
var builtinRules string

// Policy maps statuses to visible action sets. Lookups are pure and allocation-free
// apart from the returned slice.
type Policy struct {
	order    []actions.ID
	visible  map[session.Status]map[actions.ID]bool
	fallback actions.ID
}

// LoadRulesFile reads optional operator rules; an empty path yields no extra rules.
func LoadRulesFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy rules: %w", err)
	}
	return string(data), nil
}

// Compile evaluates the built-in rules plus extraRules against the catalog.
func Compile(catalog *actions.Catalog, extraRules string) (*Policy, error) {
	var src bytes.Buffer
	src.WriteString(catalogFacts(catalog))
	src.WriteString(builtinRules)
	src.WriteString("\n")
	src.WriteString(extraRules)

	unit, err := parse.Unit(bytes.NewReader(src.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return nil, fmt.Errorf("analyze policy: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, fact := range programInfo.InitialFacts {
		store.Add(fact)
	}
	if err := engine.EvalProgram(programInfo, store); err != nil {
		return nil, fmt.Errorf("eval policy: %w", err)
	}

	p := &Policy{
		order:    catalog.IDs(),
		visible:  make(map[session.Status]map[actions.ID]bool),
		fallback: catalog.Fallback(),
	}

	query := ast.Atom{
		Predicate: ast.PredicateSym{Symbol: "visible", Arity: 2},
		Args:      []ast.BaseTerm{ast.Variable{Symbol: "S"}, ast.Variable{Symbol: "A"}},
	}
	err = store.GetFacts(query, func(atom ast.Atom) error {
		rawStatus, err := stringArg(atom, 0)
		if err != nil {
			return err
		}
		rawAction, err := stringArg(atom, 1)
		if err != nil {
			return err
		}

		status := session.Normalize(rawStatus)
		if status == session.Unknown {
			return fmt.Errorf("policy derives unknown status %q", rawStatus)
		}
		id := actions.ID(rawAction)
		if _, err := catalog.Lookup(id); err != nil {
			return fmt.Errorf("policy derives %w", err)
		}

		if p.visible[status] == nil {
			p.visible[status] = make(map[actions.ID]bool)
		}
		p.visible[status][id] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range session.Known() {
		if len(p.visible[s]) == 0 {
			return nil, fmt.Errorf("policy shows no action for status %q", s)
		}
	}
	return p, nil
}

// Visible returns the actions shown for status, in catalog order. Unknown or unmapped
// statuses get the single fallback action.
func (p *Policy) Visible(status session.Status) []actions.ID {
	set, ok := p.visible[status]
	if !ok || len(set) == 0 {
		return []actions.ID{p.fallback}
	}
	out := make([]actions.ID, 0, len(set))
	for _, id := range p.order {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

// IsVisible reports whether id is shown for status.
func (p *Policy) IsVisible(status session.Status, id actions.ID) bool {
	for _, v := range p.Visible(status) {
		if v == id {
			return true
		}
	}
	return false
}

// catalogFacts renders the action table as Mangle facts.
func catalogFacts(catalog *actions.Catalog) string {
	var b bytes.Buffer
	for _, s := range session.Known() {
		fmt.Fprintf(&b, "status(%q).\n", string(s))
	}
	for _, def := range catalog.All() {
		for _, s := range def.VisibleIn {
			fmt.Fprintf(&b, "shown_in(%q, %q).\n", string(def.ID), string(s))
		}
	}
	return b.String()
}

func stringArg(atom ast.Atom, i int) (string, error) {
	if i >= len(atom.Args) {
		return "", fmt.Errorf("%s: missing argument %d", atom.Predicate.Symbol, i)
	}
	c, ok := atom.Args[i].(ast.Constant)
	if !ok || c.Type != ast.StringType {
		return "", fmt.Errorf("%s: argument %d is not a string", atom.Predicate.Symbol, i)
	}
	return c.StringValue()
}
