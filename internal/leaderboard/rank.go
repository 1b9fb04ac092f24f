package leaderboard

import (
	"slices"
	"sort"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/score"
)

// Rank builds the leaderboard for the given profiles. Profiles without attempts, or left without
// attempts once the filters apply, are excluded.
func Rank(profiles []domain.UserProfile, f domain.LeaderboardFilters) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		if len(p.QuizHistory) == 0 {
			continue
		}

		e := Entry(p, f)
		if e.TotalQuizzes == 0 {
			continue
		}

		entries = append(entries, e)
	}

	Sort(entries)
	return entries
}

// Sort orders entries by total score, then average score, then number of quizzes, all descending.
// Ties keep their relative order.
func Sort(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.AverageScore != b.AverageScore {
			return a.AverageScore > b.AverageScore
		}
		return a.TotalQuizzes > b.TotalQuizzes
	})
}

// Entry aggregates one profile's filtered attempts. Categories always reflect the full history.
func Entry(p domain.UserProfile, f domain.LeaderboardFilters) domain.LeaderboardEntry {
	e := domain.LeaderboardEntry{
		ID:           p.ID,
		Username:     p.Username,
		LastActivity: p.JoinDate,
		Categories:   categories(p.QuizHistory),
	}

	var (
		questions, correct int
		latest             domain.QuizAttempt
	)

	for _, a := range p.QuizHistory {
		if !matches(a, f) {
			continue
		}

		e.TotalQuizzes++
		e.TotalScore += a.Score
		e.BestScore = max(e.BestScore, a.Score)
		questions += a.TotalQuestions
		correct += a.CorrectAnswers

		if a.Date.After(latest.Date) {
			latest = a
		}
	}

	if e.TotalQuizzes > 0 {
		e.LastActivity = latest.Date
	}

	e.AverageScore = score.RoundedMean(e.TotalScore, e.TotalQuizzes)
	e.Accuracy = score.Percentage(correct, questions)
	return e
}

// Position returns the 1-based rank of userID, or -1 when the user is not ranked.
func Position(entries []domain.LeaderboardEntry, userID string) int {
	i := slices.IndexFunc(entries, func(e domain.LeaderboardEntry) bool {
		return e.ID == userID
	})
	if i < 0 {
		return -1
	}

	return i + 1
}

// matches reports whether an attempt passes the filters. Attempts recorded before difficulty was
// tracked pass any difficulty filter.
func matches(a domain.QuizAttempt, f domain.LeaderboardFilters) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}

	if f.Difficulty != "" && a.Difficulty != "" && a.Difficulty != f.Difficulty {
		return false
	}

	return true
}

func categories(history []domain.QuizAttempt) []string {
	cs := []string{}
	for _, a := range history {
		if !slices.Contains(cs, a.Category) {
			cs = append(cs, a.Category)
		}
	}

	return cs
}
