// Package parser extracts symbol references from chunk source text using
// tree-sitter grammars.
//
// Extraction is table driven. A Registry maps each language tag to a Rules
// value naming the node kinds that represent calls, type references, imports
// and inheritance; one walker serves every language.
//
//	reg := parser.NewRegistry()
//	refs, err := reg.Extract(types.LangGo, chunk.Content)
//	if err != nil {
//	    // unsupported language or no tree; the chunk keeps its node but gets no edges
//	}
//	fmt.Println(refs.Calls, refs.Types)
//
// Built-in grammars: Go, Python, JavaScript, TypeScript, TSX and Java.
//
// Extraction is best effort. Chunks are usually fragments of a file, so
// tree-sitter error recovery is relied upon and references are returned for
// whatever parsed. Resolution against the symbol table happens in the graph
// builder, not here.
//
// # Test Naming Conventions
//
// SubjectNames maps a test symbol to the names of the symbols it likely
// exercises, which the graph builder turns into TestedBy edges:
//
//	parser.SubjectNames("TestUser_Save") // ["User.Save", "User_Save", "User"]
//	parser.SubjectNames("test_parse")    // ["parse"]
package parser
