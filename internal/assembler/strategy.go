package assembler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// Strategy selects how far enrichment walks the graph. The named presets
// are depths 1, 2 and 3; Custom allows any positive depth. The zero value
// is not a valid strategy.
type Strategy struct {
	depth int
}

// Direct includes immediate neighbors only
func Direct() Strategy { return Strategy{depth: 1} }

// Extended includes neighbors of neighbors
func Extended() Strategy { return Strategy{depth: 2} }

// Deep follows chains three hops out
func Deep() Strategy { return Strategy{depth: 3} }

// Custom walks n hops
func Custom(n int) Strategy { return Strategy{depth: n} }

// Depth returns the maximum traversal depth
func (s Strategy) Depth() int {
	return s.depth
}

// Validate rejects non-positive depths
func (s Strategy) Validate() error {
	if s.depth <= 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidStrategyDepth, s.depth)
	}
	return nil
}

func (s Strategy) String() string {
	switch s.depth {
	case 1:
		return "direct"
	case 2:
		return "extended"
	case 3:
		return "deep"
	}
	return fmt.Sprintf("custom:%d", s.depth)
}

// ParseStrategy parses "direct", "extended", "deep", "custom:N" or a bare
// depth. The result is validated.
func ParseStrategy(s string) (Strategy, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	var st Strategy
	switch v {
	case "direct":
		st = Direct()
	case "extended":
		st = Extended()
	case "deep":
		st = Deep()
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(v, "custom:"))
		if err != nil {
			return Strategy{}, fmt.Errorf("%w: unrecognized strategy %q", types.ErrInvalidStrategyDepth, s)
		}
		st = Custom(n)
	}
	if err := st.Validate(); err != nil {
		return Strategy{}, err
	}
	return st, nil
}
