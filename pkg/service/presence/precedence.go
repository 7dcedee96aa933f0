package presence

import "github.com/secmon-lab/briareus/pkg/domain/model"

// Source precedence when two providers disagree about the same identity.
// An agent reporting Available anywhere is reachable, and an explicit
// DoNotDisturb beats the generic busy states. Anything else falls
// through to recency.
var statusPrecedence = []string{
	"Available",
	"DoNotDisturb",
}

// pickPreferred resolves a two-source conflict for one identity. Results
// with an error annotation always lose to clean results.
func pickPreferred(a, b *model.RawPresence) *model.RawPresence {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	if a.Err != "" && b.Err == "" {
		return b
	}
	if b.Err != "" && a.Err == "" {
		return a
	}

	for _, preferred := range statusPrecedence {
		aMatch := a.Status.String() == preferred
		bMatch := b.Status.String() == preferred
		if aMatch && !bMatch {
			return a
		}
		if bMatch && !aMatch {
			return b
		}
	}

	if b.ObservedAt.After(a.ObservedAt) {
		return b
	}
	return a
}
