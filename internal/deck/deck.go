package deck

import rand "math/rand/v2"

// Deck is an ordered set of cards dealt from the top.
type Deck struct {
	cards []Card
	next  int
}

// New returns a full 52-card deck shuffled with rng. A nil rng leaves the
// deck unshuffled, which tests use for deterministic deals.
func New(rng *rand.Rand) *Deck {
	cards := make([]Card, 0, 52)
	for s := Clubs; s <= Spades; s++ {
		for r := Two; r <= Ace; r++ {
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	d := &Deck{cards: cards}
	if rng != nil {
		rng.Shuffle(len(d.cards), func(i, j int) {
			d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
		})
	}
	return d
}

// Stacked returns a deck that deals the given cards in order, then the
// remainder of the pack. For deterministic tests.
func Stacked(cards ...Card) *Deck {
	d := New(nil)
	seen := make(map[Card]bool, len(cards))
	for _, c := range cards {
		seen[c] = true
	}
	rest := make([]Card, 0, 52-len(cards))
	for _, c := range d.cards {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	d.cards = append(append([]Card{}, cards...), rest...)
	return d
}

// Deal removes and returns the next n cards.
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		n = len(d.cards) - d.next
	}
	out := d.cards[d.next : d.next+n]
	d.next += n
	return out
}

// Remaining reports how many cards are left to deal.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}
