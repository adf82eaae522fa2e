// Package fusion merges ranked candidate lists with weighted Reciprocal Rank
// Fusion.
//
// RRF only looks at positions, so lists with incomparable raw scores (bm25
// and cosine similarity) can be combined without calibration:
//
//	f := fusion.New(fusion.DefaultK)
//	ranked := f.Fuse(
//	    fusion.List{Name: "semantic", Weight: fusion.DefaultSemanticWeight, IDs: semanticIDs},
//	    fusion.List{Name: "lexical", Weight: fusion.DefaultLexicalWeight, IDs: lexicalIDs},
//	)
//
// The order of the lists matters only for tie-breaking.
package fusion
