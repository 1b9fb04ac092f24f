package leaderboard

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/profile"
)

const sampleSeed = 42

type sampleUser struct {
	id, username, email string
	joinedDaysAgo       int
	attempts            int
	difficulty          domain.Difficulty
	minScore, scoreSpan int
	minCorrect          int
	correctSpan         int
	everyHours          int
	minTime, timeSpan   int
}

var sampleUsers = []sampleUser{
	{
		id: "sample1", username: "Alex Johnson", email: "alex@example.com",
		joinedDaysAgo: 30, attempts: 12, difficulty: domain.DifficultyHard,
		minScore: 90, scoreSpan: 10, minCorrect: 9, correctSpan: 2, everyHours: 48, minTime: 180, timeSpan: 60,
	},
	{
		id: "sample2", username: "Morgan Smith", email: "morgan@example.com",
		joinedDaysAgo: 25, attempts: 15, difficulty: domain.DifficultyMedium,
		minScore: 85, scoreSpan: 15, minCorrect: 8, correctSpan: 3, everyHours: 36, minTime: 150, timeSpan: 90,
	},
}

// SeedSample fills an empty collection with demo players. It does nothing when profiles exist.
func (s *Service) SeedSample(ctx context.Context) error {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return err
	}

	if len(profiles) > 0 {
		return nil
	}

	for _, p := range SampleProfiles(s.now()) {
		if err := s.Upsert(ctx, p); err != nil {
			return fmt.Errorf("leaderboard: seed %s: %w", p.ID, err)
		}
	}

	return nil
}

// SampleProfiles builds the demo players relative to now. The output is deterministic.
func SampleProfiles(now time.Time) []domain.UserProfile {
	r := rand.New(rand.NewSource(sampleSeed))

	profiles := make([]domain.UserProfile, 0, len(sampleUsers))
	for _, u := range sampleUsers {
		name := fmt.Sprintf("General Knowledge Quiz (%s)", u.difficulty.Title())
		p := domain.UserProfile{
			ID:       u.id,
			Username: u.username,
			Email:    u.email,
			JoinDate: now.AddDate(0, 0, -u.joinedDaysAgo),
		}

		attempts := make([]domain.QuizAttempt, 0, u.attempts)
		for i := 0; i < u.attempts; i++ {
			attempts = append(attempts, domain.QuizAttempt{
				ID:             fmt.Sprintf("q%d", i+1),
				QuizID:         "gk-" + string(u.difficulty),
				QuizName:       name,
				Category:       domain.GeneralCategory,
				Score:          u.minScore + r.Intn(u.scoreSpan),
				TotalQuestions: 10,
				CorrectAnswers: u.minCorrect + r.Intn(u.correctSpan),
				Date:           now.Add(-time.Duration(i*u.everyHours) * time.Hour),
				TimeTaken:      u.minTime + r.Intn(u.timeSpan),
				Difficulty:     u.difficulty,
				Mode:           domain.ModeQuiz,
			})
		}

		// Oldest first, so the history ends up newest first.
		for i := len(attempts) - 1; i >= 0; i-- {
			profile.Apply(&p, attempts[i])
		}

		profiles = append(profiles, p)
	}

	return profiles
}
