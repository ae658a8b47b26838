package game

// DecisionStrategy produces an action for an automated seat. Implementations
// must be pure with respect to the state they are handed (they may keep
// internal randomness or history) and should only consult the acting seat's
// own cards. Whatever they return is still normalized before it is applied,
// so a buggy strategy cannot corrupt a hand.
type DecisionStrategy interface {
	Decide(s *State, seat int) PlayerAction
}

// RuleStrategy is the default takeover brain: check when free, call cheap
// bets, fold to pressure. It never raises, which keeps a bot-held seat from
// bleeding a disconnected player's stack.
type RuleStrategy struct {
	// CallThresholdBB is the largest price, in big blinds, the strategy
	// will call. Zero means one big blind.
	CallThresholdBB int
}

func (r RuleStrategy) Decide(s *State, seat int) PlayerAction {
	toCall := s.ToCall(seat)
	if toCall == 0 {
		return PlayerAction{Seat: seat, Kind: Check}
	}
	threshold := r.CallThresholdBB
	if threshold <= 0 {
		threshold = 1
	}
	if toCall <= threshold*s.BigBlind && toCall < s.Seats[seat].Chips {
		return PlayerAction{Seat: seat, Kind: Call}
	}
	return PlayerAction{Seat: seat, Kind: Fold}
}
