package merge

import (
	"math"
	"time"
)

// maxAgeBonus caps how much a stale item's score can grow from waiting,
// so an ancient low-priority item still can't outrank a fresh critical
// one indefinitely.
const maxAgeBonus = 5.0

// ageHalfLife is how long it takes the age bonus to reach half of
// maxAgeBonus — a gentle decay curve rather than a hard cutoff.
const ageHalfLife = 2 * time.Hour

// Rank scores an item for merge-queue ordering: higher runs first.
// It is a pure function of ScoreInput: issue priority dominates
// (lower numbers are more urgent) and waiting time contributes a
// bounded bonus.
func Rank(in ScoreInput) float64 {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	priorityScore := 0.0
	if in.Priority > 0 {
		priorityScore = 10.0 / float64(in.Priority)
	}

	ageScore := 0.0
	if !in.CreatedAt.IsZero() {
		if age := now.Sub(in.CreatedAt); age > 0 {
			halfLives := age.Seconds() / ageHalfLife.Seconds()
			ageScore = maxAgeBonus * (1 - math.Pow(2, -halfLives))
		}
	}

	return priorityScore + ageScore
}
