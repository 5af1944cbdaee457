// Package deps discovers the third-party modules a generated program imports.
//
// Discovery is purely static: the source is parsed with tree-sitter and never
// executed. A source that does not parse yields an empty set so the caller can
// still run the program and let a missing module surface as a runtime error.
package deps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrInvalidSyntax is returned by Scan when the source has syntax errors.
var ErrInvalidSyntax = errors.New("invalid python syntax")

// Set is a deduplicated set of top-level module names. Order is irrelevant.
type Set map[string]struct{}

// NewSet builds a Set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts a name, ignoring empty strings.
func (s Set) Add(name string) {
	if name != "" {
		s[name] = struct{}{}
	}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of names.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the names in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Scanner collects import roots from Python source.
type Scanner struct {
	language *sitter.Language
}

// NewScanner creates a Scanner for Python 3 source.
func NewScanner() *Scanner {
	return &Scanner{language: python.GetLanguage()}
}

// Scan returns the root module name of every import in src: `import a.b`
// yields "a" and `from d.e import f` yields "d". Relative and __future__
// imports are skipped. On a syntax error Scan returns an empty set and an
// error wrapping ErrInvalidSyntax.
func (s *Scanner) Scan(src string) (Set, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(s.language)

	code := []byte(src)
	tree, err := parser.ParseCtx(context.Background(), nil, code)
	if err != nil {
		return Set{}, fmt.Errorf("failed to parse source: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		return Set{}, fmt.Errorf("%w: parse tree contains errors", ErrInvalidSyntax)
	}

	set := Set{}
	collectImports(root, code, set)
	return set, nil
}

func collectImports(n *sitter.Node, code []byte, set Set) {
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				set.Add(rootName(child.Content(code)))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					set.Add(rootName(name.Content(code)))
				}
			}
		}
		return
	case "import_from_statement":
		// relative_import modules are local to the program.
		if module := n.ChildByFieldName("module_name"); module != nil && module.Type() == "dotted_name" {
			set.Add(rootName(module.Content(code)))
		}
		return
	case "future_import_statement":
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectImports(n.NamedChild(i), code, set)
	}
}

func rootName(dotted string) string {
	dotted = strings.Join(strings.Fields(dotted), "")
	root, _, _ := strings.Cut(dotted, ".")
	return root
}
