package graph

import (
	"path"
	"strings"
)

// nameSeparators are the qualifier separators recognized in symbol names
var nameSeparators = []string{"::", ".", "#", "/"}

// splitQualifier splits name at its last separator. The qualifier is empty
// for names without one.
func splitQualifier(name string) (qualifier, simple, sep string) {
	best := -1
	for _, s := range nameSeparators {
		if i := strings.LastIndex(name, s); i > best {
			best, sep = i, s
		}
	}
	if best <= 0 {
		return "", name, ""
	}
	return name[:best], name[best+len(sep):], sep
}

// simpleName returns the trailing segment of a qualified name
func simpleName(name string) string {
	_, simple, _ := splitQualifier(name)
	return simple
}

// qualifierChain lists the enclosing scopes of name, innermost first:
// "a.b.c" yields "a.b", "a".
func qualifierChain(name string) []string {
	var chain []string
	for {
		q, _, _ := splitQualifier(name)
		if q == "" {
			return chain
		}
		chain = append(chain, q)
		name = q
	}
}

// stripReceiver drops self/this prefixes from member references
func stripReceiver(ref string) string {
	for _, p := range []string{"self.", "this.", "cls."} {
		if strings.HasPrefix(ref, p) {
			return ref[len(p):]
		}
	}
	return ref
}

// importCandidates lists the names an import path may be registered under,
// most specific first.
func importCandidates(importPath string) []string {
	p := strings.TrimSpace(importPath)
	if p == "" {
		return nil
	}
	out := []string{p}
	if ext := path.Ext(p); ext != "" && strings.Contains(p, "/") {
		p = strings.TrimSuffix(p, ext)
		out = append(out, p)
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexAny(p, "/."); i >= 0 && i < len(p)-1 {
		out = append(out, p[i+1:])
	}
	return out
}
