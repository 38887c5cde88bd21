package validator

// DefaultMaxDepth bounds descent when no explicit maximum is configured
const DefaultMaxDepth = 100

// DepthGuard tracks descent depth for one validation chain as an explicit
// counter, so the same discipline works for recursive and iterative walks.
type DepthGuard struct {
	depth int
	max   int
}

// NewDepthGuard creates a guard with the given maximum depth. A
// non-positive maximum falls back to DefaultMaxDepth.
func NewDepthGuard(max int) *DepthGuard {
	if max <= 0 {
		max = DefaultMaxDepth
	}
	return &DepthGuard{max: max}
}

// Enter increments depth and reports whether the chain is still within the
// configured maximum. The first max entries succeed; entry max+1 reports
// exceeded. The caller must pair every Enter with an Exit regardless of
// the return value.
func (g *DepthGuard) Enter() bool {
	g.depth++
	return g.depth <= g.max
}

// Exit decrements depth, restoring the state prior to the matching Enter
func (g *DepthGuard) Exit() {
	if g.depth > 0 {
		g.depth--
	}
}

// Depth returns the current chain depth
func (g *DepthGuard) Depth() int {
	return g.depth
}

// Max returns the configured maximum depth
func (g *DepthGuard) Max() int {
	return g.max
}
