package types

import "time"

// Freshness describes the graph generation queries are answered from.
// Stale is set when sources changed after the generation was built.
type Freshness struct {
	Generation  uint64
	BuiltAt     time.Time
	Fingerprint uint64
	Stale       bool
}

// Built reports whether any generation has been published
func (f Freshness) Built() bool {
	return f.Generation > 0
}
