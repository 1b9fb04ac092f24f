package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/questionbank"
)

// Draw picks the questions for one run of a session. Questions of difficulty d are taken from
// category when one is given, falling back to every category when it cannot supply n of them.
// Over-supplied sets keep the first n in catalog order. n <= 0 keeps every match.
// The result is permuted by shuffle.
func Draw(bank *questionbank.Bank, category string, d domain.Difficulty, n int, shuffle func([]domain.Question)) []domain.Question {
	qs := bank.ByDifficulty(d)
	if category != "" {
		if byCategory := bank.ByCategoryAndDifficulty(category, d); len(byCategory) > 0 && (n <= 0 || len(byCategory) >= n) {
			qs = byCategory
		}
	}

	if n > 0 && len(qs) > n {
		qs = qs[:n]
	}

	if shuffle != nil {
		shuffle(qs)
	}

	return qs
}

// NewShuffler returns a uniform in-place shuffle driven by r. It is safe for concurrent use.
func NewShuffler(r *rand.Rand) func([]domain.Question) {
	var mu sync.Mutex

	return func(qs []domain.Question) {
		mu.Lock()
		defer mu.Unlock()

		r.Shuffle(len(qs), func(i, j int) {
			qs[i], qs[j] = qs[j], qs[i]
		})
	}
}

var defaultShuffle = NewShuffler(rand.New(rand.NewSource(time.Now().UnixNano())))
