package query

import "errors"

// Sentinel errors for the taxonomy in the resolver's error-handling design:
// TransientServer recovers locally (another server is tried, no sentinel
// needed at the RunningQuery boundary); the remainder surface up to the
// Resolver as the reason a query ended in SERVFAIL.
var (
	// ErrLoopOrDepth is returned when MAX_DEPTH is exceeded or the current
	// name/type already appears in the ancestor chain.
	ErrLoopOrDepth = errors.New("query: recursion depth exceeded or loop detected")

	// ErrDelegationExhausted is returned when a delegation point has no
	// more servers to try and no resolvable glueless NS remains.
	ErrDelegationExhausted = errors.New("query: delegation exhausted, no servers left to try")

	// ErrCNAMEChainTooLong is returned when the CNAME chain exceeds
	// MaxCNAMEChain.
	ErrCNAMEChainTooLong = errors.New("query: cname chain too long")

	// ErrCancelled is returned when the per-query deadline elapses or the
	// context is cancelled.
	ErrCancelled = errors.New("query: cancelled or deadline exceeded")
)
