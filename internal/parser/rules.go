package parser

import (
	"strings"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// CollectFunc pulls names out of a matched node. When consumed is true the
// walker does not descend into the node's children.
type CollectFunc func(n *sitter.Node, src []byte) (names []string, consumed bool)

// Rules is the extraction rule table for one language. The walker is shared;
// only the tables differ between languages.
type Rules struct {
	Language types.Language
	Grammar  func() *sitter.Language

	// Calls maps a call node kind to the field holding its callee
	Calls map[string]string
	// TypeRefs lists leaf node kinds that name a type
	TypeRefs map[string]bool
	// Declarations lists node kinds whose "name" field is a declaration,
	// not a reference
	Declarations map[string]bool

	Types    map[string]CollectFunc
	Imports  map[string]CollectFunc
	Heritage map[string]CollectFunc
}

var (
	goGrammar         = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_go.Language()) })
	pythonGrammar     = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_python.Language()) })
	javascriptGrammar = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_javascript.Language()) })
	typescriptGrammar = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()) })
	tsxGrammar        = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()) })
	javaGrammar       = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(tree_sitter_java.Language()) })
)

func builtinRules() []*Rules {
	return []*Rules{
		goRules(),
		pythonRules(),
		javascriptRules(),
		typescriptRules(types.LangTypeScript, typescriptGrammar),
		typescriptRules(types.LangTSX, tsxGrammar),
		javaRules(),
	}
}

func goRules() *Rules {
	return &Rules{
		Language:     types.LangGo,
		Grammar:      goGrammar,
		Calls:        map[string]string{"call_expression": "function"},
		TypeRefs:     map[string]bool{"type_identifier": true},
		Declarations: map[string]bool{"type_spec": true, "type_alias": true},
		Imports: map[string]CollectFunc{
			"import_spec": func(n *sitter.Node, src []byte) ([]string, bool) {
				return fieldText(n, "path", src), true
			},
		},
		Heritage: map[string]CollectFunc{
			// A struct field without a name is an embedded type.
			"field_declaration": func(n *sitter.Node, src []byte) ([]string, bool) {
				if n.ChildByFieldName("name") != nil {
					return nil, false
				}
				return collect(n.ChildByFieldName("type"), src, "type_identifier", "qualified_type"), true
			},
			"type_elem": func(n *sitter.Node, src []byte) ([]string, bool) {
				return collect(n, src, "type_identifier", "qualified_type"), true
			},
		},
	}
}

func pythonRules() *Rules {
	return &Rules{
		Language: types.LangPython,
		Grammar:  pythonGrammar,
		Calls:    map[string]string{"call": "function"},
		Types: map[string]CollectFunc{
			"type": func(n *sitter.Node, src []byte) ([]string, bool) {
				return collect(n, src, "identifier", "attribute"), true
			},
		},
		Imports: map[string]CollectFunc{
			"import_statement": func(n *sitter.Node, src []byte) ([]string, bool) {
				var names []string
				for i := uint(0); i < n.NamedChildCount(); i++ {
					child := n.NamedChild(i)
					switch child.Kind() {
					case "dotted_name":
						names = append(names, text(child, src))
					case "aliased_import":
						names = append(names, fieldText(child, "name", src)...)
					}
				}
				return names, true
			},
			"import_from_statement": func(n *sitter.Node, src []byte) ([]string, bool) {
				return fieldText(n, "module_name", src), true
			},
		},
		Heritage: map[string]CollectFunc{
			"class_definition": func(n *sitter.Node, src []byte) ([]string, bool) {
				supers := n.ChildByFieldName("superclasses")
				if supers == nil {
					return nil, false
				}
				var names []string
				for i := uint(0); i < supers.NamedChildCount(); i++ {
					child := supers.NamedChild(i)
					if k := child.Kind(); k == "identifier" || k == "attribute" {
						names = append(names, text(child, src))
					}
				}
				return names, false
			},
		},
	}
}

func javascriptRules() *Rules {
	return &Rules{
		Language: types.LangJavaScript,
		Grammar:  javascriptGrammar,
		Calls:    map[string]string{"call_expression": "function"},
		Types: map[string]CollectFunc{
			"new_expression": constructorRef,
		},
		Imports: map[string]CollectFunc{
			"import_statement": moduleSource,
		},
		Heritage: map[string]CollectFunc{
			"class_heritage": func(n *sitter.Node, src []byte) ([]string, bool) {
				return collect(n, src, "identifier", "member_expression"), true
			},
		},
	}
}

func typescriptRules(lang types.Language, grammar func() *sitter.Language) *Rules {
	heritage := func(n *sitter.Node, src []byte) ([]string, bool) {
		return collect(n, src, "identifier", "type_identifier", "member_expression", "nested_type_identifier"), true
	}
	return &Rules{
		Language: lang,
		Grammar:  grammar,
		Calls:    map[string]string{"call_expression": "function"},
		TypeRefs: map[string]bool{"type_identifier": true},
		Declarations: map[string]bool{
			"class_declaration":          true,
			"abstract_class_declaration": true,
			"interface_declaration":      true,
			"type_alias_declaration":     true,
		},
		Types: map[string]CollectFunc{
			"new_expression": constructorRef,
		},
		Imports: map[string]CollectFunc{
			"import_statement": moduleSource,
		},
		Heritage: map[string]CollectFunc{
			"class_heritage":      heritage,
			"extends_type_clause": heritage,
		},
	}
}

func javaRules() *Rules {
	heritage := func(n *sitter.Node, src []byte) ([]string, bool) {
		return collect(n, src, "type_identifier", "scoped_type_identifier"), true
	}
	return &Rules{
		Language: types.LangJava,
		Grammar:  javaGrammar,
		Calls:    map[string]string{"method_invocation": "name"},
		TypeRefs: map[string]bool{"type_identifier": true},
		Types: map[string]CollectFunc{
			"object_creation_expression": func(n *sitter.Node, src []byte) ([]string, bool) {
				return collect(n.ChildByFieldName("type"), src, "type_identifier", "scoped_type_identifier"), false
			},
		},
		Imports: map[string]CollectFunc{
			"import_declaration": func(n *sitter.Node, src []byte) ([]string, bool) {
				return collect(n, src, "scoped_identifier", "identifier"), true
			},
		},
		Heritage: map[string]CollectFunc{
			"superclass":         heritage,
			"super_interfaces":   heritage,
			"extends_interfaces": heritage,
		},
	}
}

func constructorRef(n *sitter.Node, src []byte) ([]string, bool) {
	return collect(n.ChildByFieldName("constructor"), src, "identifier", "member_expression", "type_identifier"), false
}

func moduleSource(n *sitter.Node, src []byte) ([]string, bool) {
	return fieldText(n, "source", src), true
}

// collect returns the text of the outermost descendants of n (n included)
// whose kind is one of kinds.
func collect(n *sitter.Node, src []byte, kinds ...string) []string {
	if n == nil {
		return nil
	}
	var names []string
	walk(n, func(c *sitter.Node) bool {
		for _, k := range kinds {
			if c.Kind() == k {
				names = append(names, text(c, src))
				return false
			}
		}
		return true
	})
	return names
}

// fieldText returns the unquoted text of n's field, or nil when absent
func fieldText(n *sitter.Node, field string, src []byte) []string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return nil
	}
	s := strings.Trim(text(child, src), "\"'`")
	if s == "" {
		return nil
	}
	return []string{s}
}
