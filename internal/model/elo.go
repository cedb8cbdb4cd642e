package model

import "math"

// eloK is the Elo K-factor applied to every rating update.
const eloK = 32

// Result identifies the outcome of a finished game, in the shape
// PostResult expects it: 0 = draw, 1 = p1 (the first-named player) won,
// 2 = p2 won.
type Result uint8

const (
	ResultDraw      Result = 0
	ResultFirstWon  Result = 1
	ResultSecondWon Result = 2
)

// PostResult applies the Elo rating update to p1 and p2 for the outcome r,
// and returns both players' ratings after the update (for callers that log
// or record the result). Each player's rating is updated atomically with
// respect to concurrent readers via Player.setRating; p1 and p2 are locked
// independently and in an arbitrary order since a single PostResult call
// is always the sole writer for both.
func PostResult(p1, p2 *Player, r Result) (r1After, r2After float64) {
	r1 := p1.Rating()
	r2 := p2.Rating()

	var s1, s2 float64
	switch r {
	case ResultFirstWon:
		s1, s2 = 1, 0
	case ResultSecondWon:
		s1, s2 = 0, 1
	default:
		s1, s2 = 0.5, 0.5
	}

	e1 := expectedScore(r1, r2)
	e2 := expectedScore(r2, r1)

	r1After = r1 + eloK*(s1-e1)
	r2After = r2 + eloK*(s2-e2)
	p1.setRating(r1After)
	p2.setRating(r2After)
	return r1After, r2After
}

// expectedScore is the standard Elo expectation of the player rated ra
// against one rated rb.
func expectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}
