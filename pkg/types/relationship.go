package types

import (
	"fmt"
	"strings"
)

// Relationship is the kind of a directed graph edge. The declared order is the
// order edges are iterated in during traversal.
type Relationship uint8

const (
	Calls Relationship = iota
	Uses
	Imports
	Contains
	Extends
	TestedBy
)

// AllRelationships lists every relationship kind in iteration order
var AllRelationships = []Relationship{Calls, Uses, Imports, Contains, Extends, TestedBy}

var relationshipNames = [...]string{
	Calls:    "calls",
	Uses:     "uses",
	Imports:  "imports",
	Contains: "contains",
	Extends:  "extends",
	TestedBy: "tested_by",
}

func (r Relationship) String() string {
	if int(r) < len(relationshipNames) {
		return relationshipNames[r]
	}
	return fmt.Sprintf("relationship(%d)", r)
}

// Valid reports whether r is one of the fixed relationship kinds
func (r Relationship) Valid() bool {
	return int(r) < len(relationshipNames)
}

// MarshalText encodes the relationship by name
func (r Relationship) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid relationship %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a relationship name
func (r *Relationship) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationship(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRelationship resolves a relationship from its name, case-insensitively
func ParseRelationship(s string) (Relationship, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if name == "testedby" {
		name = "tested_by"
	}
	for i, n := range relationshipNames {
		if n == name {
			return Relationship(i), nil
		}
	}
	return 0, fmt.Errorf("unknown relationship %q", s)
}
