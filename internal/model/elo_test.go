package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostResultEqualRatingsWinLoss(t *testing.T) {
	p1 := NewPlayer("alice")
	p2 := NewPlayer("bob")

	PostResult(p1, p2, ResultFirstWon)

	assert.InDelta(t, 1516, p1.Rating(), 0.001)
	assert.InDelta(t, 1484, p2.Rating(), 0.001)
}

func TestPostResultDrawPreservesSum(t *testing.T) {
	p1 := NewPlayer("alice")
	p2 := NewPlayer("bob")
	before := p1.Rating() + p2.Rating()

	PostResult(p1, p2, ResultDraw)

	assert.InDelta(t, before, p1.Rating()+p2.Rating(), 0.001)
}

func TestExpectedScoresSumToOne(t *testing.T) {
	e1 := expectedScore(1600, 1400)
	e2 := expectedScore(1400, 1600)
	assert.InDelta(t, 1.0, e1+e2, 1e-9)
}

func TestPostResultSecondWon(t *testing.T) {
	p1 := NewPlayer("alice")
	p2 := NewPlayer("bob")

	PostResult(p1, p2, ResultSecondWon)

	assert.InDelta(t, 1484, p1.Rating(), 0.001)
	assert.InDelta(t, 1516, p2.Rating(), 0.001)
}
