package parser

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dshills/gocontext-graph/pkg/types"
)

var (
	// ErrUnsupportedLanguage is returned for a language with no rule table
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrParseFailed is returned when tree-sitter produces no tree
	ErrParseFailed = errors.New("parse failed")
)

// Refs holds the symbol references found in one chunk of source. Every list
// is sorted and free of duplicates.
type Refs struct {
	Calls   []string
	Types   []string
	Imports []string
	Extends []string
}

// Empty reports whether no references were found
func (r Refs) Empty() bool {
	return len(r.Calls) == 0 && len(r.Types) == 0 && len(r.Imports) == 0 && len(r.Extends) == 0
}

// Extractor derives references from a chunk's source text
type Extractor interface {
	Supports(lang types.Language) bool
	Extract(lang types.Language, content string) (Refs, error)
}

// Registry dispatches extraction to a per-language rule table
type Registry struct {
	mu    sync.RWMutex
	rules map[types.Language]*Rules
}

// NewRegistry returns a registry loaded with every built-in rule table
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[types.Language]*Rules)}
	for _, rules := range builtinRules() {
		r.Register(rules)
	}
	return r
}

// Register adds or replaces the rule table for rules.Language
func (r *Registry) Register(rules *Rules) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rules.Language] = rules
}

// Supports reports whether a rule table exists for lang
func (r *Registry) Supports(lang types.Language) bool {
	_, ok := r.lookup(lang)
	return ok
}

// Languages returns the registered language tags in sorted order
func (r *Registry) Languages() []types.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]types.Language, 0, len(r.rules))
	for l := range r.rules {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

func (r *Registry) lookup(lang types.Language) (*Rules, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[lang]
	return rules, ok
}

// Extract parses content with the grammar for lang and collects references.
// Syntax errors are tolerated: tree-sitter recovers and whatever parsed is used.
func (r *Registry) Extract(lang types.Language, content string) (Refs, error) {
	rules, ok := r.lookup(lang)
	if !ok {
		return Refs{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	// Parsers are not safe for concurrent use, so each call gets its own.
	p := sitter.NewParser()
	defer p.Close()
	if err := p.SetLanguage(rules.Grammar()); err != nil {
		return Refs{}, fmt.Errorf("set language %s: %w", lang, err)
	}

	src := []byte(content)
	tree := p.Parse(src, nil)
	if tree == nil {
		return Refs{}, fmt.Errorf("%w: %s", ErrParseFailed, lang)
	}
	defer tree.Close()

	c := &collector{rules: rules, src: src}
	walk(tree.RootNode(), c.visit)
	return c.refs(), nil
}

// walk visits n and its named descendants depth-first.
// Returning false from fn skips the node's children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		walk(n.NamedChild(i), fn)
	}
}

type collector struct {
	rules *Rules
	src   []byte

	calls, typeRefs, imports, extends []string
}

func (c *collector) visit(n *sitter.Node) bool {
	kind := n.Kind()
	r := c.rules
	descend := true

	if f, ok := r.Heritage[kind]; ok {
		names, consumed := f(n, c.src)
		c.extends = append(c.extends, names...)
		descend = descend && !consumed
	}
	if f, ok := r.Imports[kind]; ok {
		names, consumed := f(n, c.src)
		c.imports = append(c.imports, names...)
		descend = descend && !consumed
	}
	if f, ok := r.Types[kind]; ok {
		names, consumed := f(n, c.src)
		c.typeRefs = append(c.typeRefs, names...)
		descend = descend && !consumed
	}
	if !descend {
		return false
	}

	if field, ok := r.Calls[kind]; ok {
		if name := calleeName(n, field, c.src); name != "" {
			c.calls = append(c.calls, name)
		}
	}
	if r.TypeRefs[kind] && !c.isDeclaredName(n) {
		c.typeRefs = append(c.typeRefs, text(n, c.src))
	}
	return true
}

// isDeclaredName reports whether n is the name being declared by its parent,
// such as the identifier in "type User struct".
func (c *collector) isDeclaredName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || !c.rules.Declarations[parent.Kind()] {
		return false
	}
	name := parent.ChildByFieldName("name")
	return name != nil && name.StartByte() == n.StartByte() && name.EndByte() == n.EndByte()
}

func (c *collector) refs() Refs {
	return Refs{
		Calls:   normalize(c.calls),
		Types:   normalize(c.typeRefs),
		Imports: normalize(c.imports),
		Extends: normalize(c.extends),
	}
}

// calleeName renders the callee of a call node. Member calls are rendered as
// "operand.member" when the operand is a plain identifier and as "member"
// otherwise, so chained calls still resolve by method name.
func calleeName(call *sitter.Node, field string, src []byte) string {
	fn := call.ChildByFieldName(field)
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier", "field_identifier", "property_identifier", "type_identifier":
		name := text(fn, src)
		if object := call.ChildByFieldName("object"); object != nil && object.Kind() == "identifier" {
			return text(object, src) + "." + name
		}
		return name
	case "selector_expression":
		return memberName(fn, "operand", "field", src)
	case "attribute":
		return memberName(fn, "object", "attribute", src)
	case "member_expression":
		return memberName(fn, "object", "property", src)
	case "scoped_identifier", "qualified_type", "scoped_type_identifier":
		return text(fn, src)
	}
	return ""
}

func memberName(n *sitter.Node, operandField, memberField string, src []byte) string {
	member := n.ChildByFieldName(memberField)
	if member == nil {
		return ""
	}
	name := text(member, src)
	if operand := n.ChildByFieldName(operandField); operand != nil && operand.Kind() == "identifier" {
		return text(operand, src) + "." + name
	}
	return name
}

func text(n *sitter.Node, src []byte) string {
	return strings.TrimSpace(n.Utf8Text(src))
}

func normalize(names []string) []string {
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}
