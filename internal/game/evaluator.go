package game

import (
	"fmt"
	"sort"

	"github.com/paulhankin/poker"

	"github.com/feltpoker/felt/internal/deck"
)

// HandValue is a totally-ordered hand strength: higher Score wins,
// Description is human text for showdown output.
type HandValue struct {
	Score       int16
	Description string
}

// Evaluator ranks a seven-card hand (two hole cards plus the full board).
// Implementations must define a total order over Score.
type Evaluator interface {
	Evaluate(hole, board []deck.Card) (HandValue, error)
}

// LibEvaluator evaluates hands with the paulhankin/poker lookup tables.
type LibEvaluator struct{}

func (LibEvaluator) Evaluate(hole, board []deck.Card) (HandValue, error) {
	if len(hole) != 2 || len(board) != 5 {
		return HandValue{}, fmt.Errorf("game: evaluate wants 2+5 cards, got %d+%d", len(hole), len(board))
	}
	var all [7]poker.Card
	for i, c := range append(append([]deck.Card{}, hole...), board...) {
		pc, err := libCard(c)
		if err != nil {
			return HandValue{}, err
		}
		all[i] = pc
	}
	score := poker.Eval7(&all)
	desc, err := poker.Describe(all[:])
	if err != nil {
		desc = ""
	}
	return HandValue{Score: score, Description: desc}, nil
}

// libCard maps a deck.Card onto the library's representation. The library
// counts aces low (rank 1); ours are high (14).
func libCard(c deck.Card) (poker.Card, error) {
	var s poker.Suit
	switch c.Suit {
	case deck.Clubs:
		s = poker.Club
	case deck.Diamonds:
		s = poker.Diamond
	case deck.Hearts:
		s = poker.Heart
	case deck.Spades:
		s = poker.Spade
	}
	r := poker.Rank(c.Rank)
	if c.Rank == deck.Ace {
		r = poker.Rank(1)
	}
	return poker.MakeCard(s, r)
}

// Settle ends the hand and moves the pot. With one seat left in the hand it
// takes everything without a showdown; otherwise the evaluator ranks the
// remaining seats and ties split the pot evenly, any indivisible remainder
// deliberately left undistributed. There are no side pots: this service
// keeps the single-pot simplification, so an uneven all-in never loses more
// than its own commitment but may win more than a side-pot scheme would
// award.
func (s *State) Settle(ev Evaluator) (Result, error) {
	s.collectRound()
	res := Result{Pot: s.Pot}

	var in []int
	for i, seat := range s.Seats {
		if seat.InHand() {
			in = append(in, i)
		}
	}

	switch len(in) {
	case 0:
		return res, fmt.Errorf("game: settle with no seats in hand")
	case 1:
		winner := in[0]
		s.Seats[winner].Chips += s.Pot
		res.Winners = []Winner{{Seat: winner, Amount: s.Pot}}
	default:
		res.Showdown = true
		s.Phase = Showdown

		values := make(map[int]HandValue, len(in))
		best := int16(-1)
		for _, i := range in {
			v, err := ev.Evaluate(s.Seats[i].HoleCards, s.Board)
			if err != nil {
				return res, fmt.Errorf("evaluate seat %d: %w", i, err)
			}
			values[i] = v
			if v.Score > best {
				best = v.Score
			}
		}

		var winners []int
		for _, i := range in {
			if values[i].Score == best {
				winners = append(winners, i)
			}
		}
		sort.Ints(winners)

		share := s.Pot / len(winners)
		for _, i := range winners {
			s.Seats[i].Chips += share
			res.Winners = append(res.Winners, Winner{
				Seat:        i,
				Amount:      share,
				Description: values[i].Description,
			})
		}
	}

	s.Pot = 0
	for _, seat := range s.Seats {
		if !seat.Eliminated && seat.Chips == 0 {
			seat.Eliminated = true
		}
	}
	return res, nil
}
