// Package types provides the data model shared by the graph, fusion,
// assembly and search packages.
//
// Chunk is the unit of indexing: a function, type or other bounded region
// of source with its location and dependency metadata. Chunks come from an
// external extractor and are never mutated after indexing.
//
//	chunk := types.Chunk{
//	    ID:        types.MakeChunkID("store/user.go", 10, 42),
//	    FilePath:  "store/user.go",
//	    StartLine: 10,
//	    EndLine:   42,
//	    Symbol:    "store.UserRepo.Find",
//	    Kind:      types.KindMethod,
//	    Language:  types.LangGo,
//	}
//
// Relationship enumerates the directed edge kinds of the code graph. Its
// numeric order (Calls, Uses, Imports, Contains, Extends, TestedBy) is the
// order edges are visited during traversal, which keeps results reproducible.
//
// RankedResult and EnrichedResult are what callers of the search API receive.
// Batch APIs wrap each position in a BatchItem so one failing query does not
// hide the results of its siblings.
//
// # Errors
//
// Sentinel errors are matched with errors.Is:
//
//	if errors.Is(err, types.ErrEmbeddingFailure) {
//	    // the whole batch failed at the shared embedding step
//	}
package types
