package session

// Aggregate reduces per-turn scores into an overall session score: the
// arithmetic mean rounded half-up. Returns nil for an empty sequence; a
// session with no scored turns has no score, not a zero. Pure and
// deterministic so repeated Finish calls agree with persisted values.
func Aggregate(scores []int) *int {
	if len(scores) == 0 {
		return nil
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	// round-half-up for non-negative scores
	mean := (2*sum + len(scores)) / (2 * len(scores))
	return &mean
}
