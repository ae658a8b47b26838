package game

// Normalize re-derives a legal action from whatever the client sent.
// Ambiguity is always resolved by substitution, never by a round-trip
// error: an illegal check becomes a fold, an illegal call becomes a check,
// a bet into an existing wager becomes a raise, undersized bets and raises
// are clamped up to the legal minimum (or down to an all-in when the seat
// lacks the chips), and any amount beyond the stack becomes an all-in.
//
// Normalize is idempotent: feeding its output back in returns it unchanged.
func (s *State) Normalize(a PlayerAction) PlayerAction {
	seat := s.Seats[a.Seat]
	toCall := s.ToCall(a.Seat)
	a.Phase = s.Phase

	switch a.Kind {
	case Fold:
		a.Amount = 0
		return a

	case Check:
		if toCall > 0 {
			a.Kind = Fold
		}
		a.Amount = 0
		return a

	case Call:
		if toCall == 0 {
			a.Kind = Check
			a.Amount = 0
			return a
		}
		if toCall >= seat.Chips {
			a.Kind = AllIn
		}
		a.Amount = 0
		return a

	case Bet, Raise:
		// Bets and raises are the same transition; only the label
		// depends on whether there is a wager to beat.
		if s.CurrentBet > 0 {
			a.Kind = Raise
		} else {
			a.Kind = Bet
		}

		maxTotal := seat.Chips + seat.RoundBet
		minTotal := s.CurrentBet + s.MinRaise

		if a.Amount >= maxTotal {
			a.Kind = AllIn
			a.Amount = 0
			return a
		}
		if a.Amount < minTotal {
			if minTotal >= maxTotal {
				a.Kind = AllIn
				a.Amount = 0
				return a
			}
			a.Amount = minTotal
		}
		return a

	case AllIn:
		if seat.Chips == 0 {
			// Nothing left to push. Degrade to the free action if
			// one exists.
			if toCall > 0 {
				a.Kind = Fold
			} else {
				a.Kind = Check
			}
		}
		a.Amount = 0
		return a
	}

	a.Kind = Fold
	a.Amount = 0
	return a
}
