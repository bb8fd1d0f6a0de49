package auction

// SelectWinner picks the winning outcome from a collected set: the highest
// valid bid, with ties broken by better (lower) zone priority, then faster
// response. Returns nil when no outcome carries a valid bid.
//
// Selection is deterministic: outcomes arrive in eligibility order, and
// every comparison is strict, so the same set of bids always yields the
// same winner regardless of response arrival order.
func SelectWinner(outcomes []PingOutcome) *PingOutcome {
	var winner *PingOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if !o.Valid() {
			continue
		}
		if winner == nil || beats(o, winner) {
			winner = o
		}
	}
	return winner
}

func beats(a, b *PingOutcome) bool {
	if a.Result.Bid != b.Result.Bid {
		return a.Result.Bid > b.Result.Bid
	}
	if a.Eligible.Zone.Priority != b.Eligible.Zone.Priority {
		return a.Eligible.Zone.Priority < b.Eligible.Zone.Priority
	}
	return a.Result.Duration < b.Result.Duration
}
