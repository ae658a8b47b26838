// Package game implements the per-hand betting state machine: blind posting,
// street progression, action validation by substitution, showdown ranking
// and settlement. The package is pure state with no I/O and no locking;
// the orchestrator in internal/server is its sole writer.
package game

import (
	"fmt"

	"github.com/feltpoker/felt/internal/deck"
)

// State is the authoritative state of one hand in progress.
type State struct {
	HandID     string
	Seats      []*Seat
	Dealer     int
	SBIndex    int
	BBIndex    int
	Phase      Phase
	Board      []deck.Card
	Pot        int
	CurrentBet int
	MinRaise   int
	SmallBlind int
	BigBlind   int
	Turn       int // seat index due to act, -1 when none
	Actions    []PlayerAction

	// bbOption is set while the big blind is still owed its preflop
	// option: preflop never closes before the big blind has acted, even
	// with no raise in front of it.
	bbOption bool

	deck *deck.Deck
}

// NewHand deals a fresh hand. Seats carry chips across hands; eliminated
// seats are skipped for dealing and blinds but stay in the slice so seat
// indices remain stable for the whole game.
func NewHand(handID string, seats []*Seat, dealer, smallBlind, bigBlind int, d *deck.Deck) (*State, error) {
	s := &State{
		HandID:     handID,
		Seats:      seats,
		Dealer:     dealer,
		Phase:      Blinds,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		MinRaise:   bigBlind,
		Turn:       -1,
		deck:       d,
	}

	live := 0
	for _, seat := range seats {
		seat.HoleCards = nil
		seat.Folded = false
		seat.AllIn = false
		seat.RoundBet = 0
		seat.TotalBet = 0
		seat.Acted = false
		if !seat.Eliminated && seat.Chips > 0 {
			live++
		}
	}
	if live < 2 {
		return nil, fmt.Errorf("game: need at least 2 seats with chips, have %d", live)
	}

	for _, seat := range seats {
		if !seat.Eliminated && seat.Chips > 0 {
			seat.HoleCards = d.Deal(2)
		}
	}

	s.postBlinds(live)
	s.Phase = PreFlop
	s.bbOption = true
	s.Turn = s.nextActor(s.BBIndex + 1)
	return s, nil
}

// postBlinds assigns blind positions and takes the forced bets. Heads-up
// the dealer posts the small blind and acts first preflop.
func (s *State) postBlinds(live int) {
	if live == 2 {
		s.SBIndex = s.dealtFrom(s.Dealer)
		s.BBIndex = s.dealtFrom(s.SBIndex + 1)
	} else {
		s.SBIndex = s.dealtFrom(s.Dealer + 1)
		s.BBIndex = s.dealtFrom(s.SBIndex + 1)
	}

	s.post(s.Seats[s.SBIndex], s.SmallBlind)
	s.post(s.Seats[s.BBIndex], s.BigBlind)
	s.CurrentBet = s.BigBlind
}

// post takes up to amount from the seat as a forced bet.
func (s *State) post(seat *Seat, amount int) {
	paid := min(amount, seat.Chips)
	seat.Chips -= paid
	seat.RoundBet += paid
	seat.TotalBet += paid
	if seat.Chips == 0 {
		seat.AllIn = true
	}
}

// dealtFrom returns the first seat index at or after from (wrapping) that
// was dealt into this hand.
func (s *State) dealtFrom(from int) int {
	n := len(s.Seats)
	for i := 0; i < n; i++ {
		idx := ((from + i) % n + n) % n
		if len(s.Seats[idx].HoleCards) > 0 {
			return idx
		}
	}
	return -1
}

// nextActor returns the first seat index at or after from (wrapping) that
// can still act, or -1.
func (s *State) nextActor(from int) int {
	n := len(s.Seats)
	for i := 0; i < n; i++ {
		idx := ((from + i) % n + n) % n
		if s.Seats[idx].CanAct() {
			return idx
		}
	}
	return -1
}

// ToCall returns what the seat owes to match the current bet.
func (s *State) ToCall(seat int) int {
	return s.CurrentBet - s.Seats[seat].RoundBet
}

// Apply mutates state with an already-normalized action. It must only be
// called with the action of the seat whose turn it is; Normalize guarantees
// the action itself is legal.
func (s *State) Apply(a PlayerAction) {
	seat := s.Seats[a.Seat]
	seat.Acted = true
	if s.Phase == PreFlop && a.Seat == s.BBIndex {
		s.bbOption = false
	}

	switch a.Kind {
	case Fold:
		seat.Folded = true

	case Check:
		// No chips move.

	case Call:
		s.pay(seat, min(s.ToCall(a.Seat), seat.Chips))

	case Bet, Raise:
		prev := s.CurrentBet
		s.pay(seat, a.Amount-seat.RoundBet)
		s.CurrentBet = seat.RoundBet
		s.MinRaise = s.CurrentBet - prev
		s.reopenAction(a.Seat)

	case AllIn:
		s.pay(seat, seat.Chips)
		if seat.RoundBet > s.CurrentBet {
			s.MinRaise = seat.RoundBet - s.CurrentBet
			s.CurrentBet = seat.RoundBet
			s.reopenAction(a.Seat)
		}
	}

	s.Actions = append(s.Actions, a)

	if s.foldedOut() {
		s.collectRound()
		s.Turn = -1
		return
	}
	if s.roundComplete() {
		s.advancePhase()
		return
	}
	s.Turn = s.nextActor(a.Seat + 1)
}

func (s *State) pay(seat *Seat, amount int) {
	seat.Chips -= amount
	seat.RoundBet += amount
	seat.TotalBet += amount
	if seat.Chips == 0 {
		seat.AllIn = true
	}
}

// reopenAction clears acted flags after a raise so every other live seat
// gets another decision.
func (s *State) reopenAction(raiser int) {
	for i, seat := range s.Seats {
		if i != raiser {
			seat.Acted = false
		}
	}
}

// foldedOut reports whether at most one seat remains in the hand.
func (s *State) foldedOut() bool {
	in := 0
	for _, seat := range s.Seats {
		if seat.InHand() {
			in++
		}
	}
	return in <= 1
}

// roundComplete reports whether the current betting round is closed: every
// seat that can still act has acted and matched the current bet, with the
// preflop big-blind option as the one exception.
func (s *State) roundComplete() bool {
	for _, seat := range s.Seats {
		if !seat.CanAct() {
			continue
		}
		if !seat.Acted || seat.RoundBet != s.CurrentBet {
			return false
		}
	}
	if s.Phase == PreFlop && s.bbOption && s.Seats[s.BBIndex].CanAct() {
		return false
	}
	return true
}

// collectRound sweeps round bets into the pot and resets per-round state.
func (s *State) collectRound() {
	for _, seat := range s.Seats {
		s.Pot += seat.RoundBet
		seat.RoundBet = 0
		seat.Acted = false
	}
	s.CurrentBet = 0
	s.MinRaise = s.BigBlind
}

// advancePhase collects the round and deals the next street. When no seat
// can act (everyone left is all-in) it cascades straight through to
// showdown so the board is always complete when hands are ranked.
func (s *State) advancePhase() {
	s.collectRound()

	switch s.Phase {
	case PreFlop:
		s.Phase = Flop
		s.Board = append(s.Board, s.deck.Deal(3)...)
	case Flop:
		s.Phase = Turn
		s.Board = append(s.Board, s.deck.Deal(1)...)
	case Turn:
		s.Phase = River
		s.Board = append(s.Board, s.deck.Deal(1)...)
	case River, Showdown:
		s.Phase = Showdown
		s.Turn = -1
		return
	}

	s.Turn = s.nextActor(s.Dealer + 1)
	if s.Turn == -1 {
		s.advancePhase()
	}
}

// Complete reports whether the hand is over: showdown reached or everyone
// but one seat folded.
func (s *State) Complete() bool {
	return s.Phase == Showdown || s.foldedOut()
}

// ShowCards reports whether viewer may see seat's hole cards: own cards
// always, everyone's at showdown. This is the single redaction rule for
// every per-client view.
func (s *State) ShowCards(viewer, seat int) bool {
	return viewer == seat || s.Phase == Showdown
}
