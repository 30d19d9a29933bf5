package pool

// Strategy selects how a cursor advances through the pool.
//
// Three strategies are implemented:
//   - First:      always prefer the head of the list (primary/fallback setups)
//   - RoundRobin: spread connections evenly across the pool
//   - Random:     uniform random choice, no per-connection ordering
type Strategy int

const (
	First Strategy = iota
	RoundRobin
	Random
)

func (s Strategy) String() string {
	switch s {
	case First:
		return "first"
	case RoundRobin:
		return "round-robin"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

func (s Strategy) valid() bool {
	return s == First || s == RoundRobin || s == Random
}
