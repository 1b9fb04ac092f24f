// Package score grades answers and turns answer streaks into points.
package score

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/trivia/internal/domain"
)

// Multiplier returns the point multiplier for a run of consecutive correct answers,
// counting the answer being graded.
func Multiplier(consecutiveCorrect int) float64 {
	switch {
	case consecutiveCorrect >= 10:
		return 3.0
	case consecutiveCorrect >= 7:
		return 2.5
	case consecutiveCorrect >= 5:
		return 2.0
	case consecutiveCorrect >= 3:
		return 1.5
	default:
		return 1.0
	}
}

// AwardPoints returns floor(base * multiplier).
func AwardPoints(base int, multiplier float64) int {
	return int(decimal.NewFromInt(int64(base)).
		Mul(decimal.NewFromFloat(multiplier)).
		Floor().
		IntPart())
}

// Streak counts consecutive correct answers. The zero value is an empty streak.
type Streak int

// Next returns the streak after grading one answer. A wrong answer or a timeout resets it.
func (s Streak) Next(correct bool) Streak {
	if !correct {
		return 0
	}

	return s + 1
}

// Policy awards points for a correct answer given the streak that includes it.
type Policy interface {
	Award(base int, streak Streak) int
	Multiplier(streak Streak) float64
}

// StreakPolicy scales points with the streak multiplier.
type StreakPolicy struct{}

func (StreakPolicy) Multiplier(streak Streak) float64 {
	return Multiplier(int(streak))
}

func (p StreakPolicy) Award(base int, streak Streak) int {
	return AwardPoints(base, p.Multiplier(streak))
}

// FlatPolicy awards the base points regardless of streak.
type FlatPolicy struct{}

func (FlatPolicy) Multiplier(Streak) float64 { return 1.0 }

func (FlatPolicy) Award(base int, _ Streak) int { return base }

// PolicyFor returns the point policy used by a session mode.
func PolicyFor(mode domain.SessionMode) Policy {
	if mode == domain.ModeFlashcard {
		return FlatPolicy{}
	}

	return StreakPolicy{}
}

// Grade applies one answer to the streak and returns the new streak with the points awarded.
func Grade(p Policy, streak Streak, base int, correct bool) (Streak, int) {
	next := streak.Next(correct)
	if !correct {
		return next, 0
	}

	return next, p.Award(base, next)
}

// RoundedMean returns sum/n rounded half up. It is zero when n is not positive.
func RoundedMean(sum, n int) int {
	if n <= 0 {
		return 0
	}

	return int(decimal.NewFromInt(int64(sum)).
		Div(decimal.NewFromInt(int64(n))).
		Round(0).
		IntPart())
}

// Percentage returns round(100 * part / whole), or zero for an empty whole.
func Percentage(part, whole int) int {
	return RoundedMean(100*part, whole)
}
