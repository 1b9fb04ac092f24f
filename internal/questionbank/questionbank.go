// Package questionbank serves the static question catalog.
package questionbank

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/victornm/trivia/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const defaultTimer = 30 * time.Second

var timers = map[domain.Difficulty]time.Duration{
	domain.DifficultyEasy:   45 * time.Second,
	domain.DifficultyMedium: 30 * time.Second,
	domain.DifficultyHard:   20 * time.Second,
}

// Bank is an immutable question catalog. Queries return copies in catalog order.
type Bank struct {
	questions []domain.Question
	byID      map[string]int
}

type catalog struct {
	Questions []domain.Question `yaml:"questions"`
}

// Default returns the bank built from the embedded catalog.
func Default() (*Bank, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML catalog from path. An empty path loads the embedded catalog.
func Load(path string) (*Bank, error) {
	if path == "" {
		return Default()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("questionbank: read %s: %w", path, err)
	}

	return Parse(b)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Bank, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("questionbank: decode catalog: %w", err)
	}

	return New(c.Questions)
}

// New validates questions and builds a bank from them.
func New(questions []domain.Question) (*Bank, error) {
	b := &Bank{
		questions: make([]domain.Question, 0, len(questions)),
		byID:      make(map[string]int, len(questions)),
	}

	for _, q := range questions {
		if err := validate(q); err != nil {
			return nil, fmt.Errorf("questionbank: %w", err)
		}
		if _, ok := b.byID[q.ID]; ok {
			return nil, fmt.Errorf("questionbank: duplicate question id %q", q.ID)
		}

		b.byID[q.ID] = len(b.questions)
		b.questions = append(b.questions, clone(q))
	}

	return b, nil
}

func validate(q domain.Question) error {
	switch {
	case q.ID == "":
		return fmt.Errorf("question without id")
	case q.Text == "":
		return fmt.Errorf("question %s: empty text", q.ID)
	case len(q.Options) < 2:
		return fmt.Errorf("question %s: needs at least 2 options, got %d", q.ID, len(q.Options))
	case q.Points <= 0:
		return fmt.Errorf("question %s: points must be positive", q.ID)
	case !q.Difficulty.Valid():
		return fmt.Errorf("question %s: invalid difficulty %q", q.ID, q.Difficulty)
	case q.Category == "":
		return fmt.Errorf("question %s: empty category", q.ID)
	}

	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("question %s: option ids must be unique and non-empty", q.ID)
		}
		seen[o.ID] = true
	}

	if !seen[q.CorrectAnswer] {
		return fmt.Errorf("question %s: correct answer %q is not an option", q.ID, q.CorrectAnswer)
	}

	return nil
}

func (b *Bank) Len() int {
	return len(b.questions)
}

func (b *Bank) Get(id string) (domain.Question, bool) {
	i, ok := b.byID[id]
	if !ok {
		return domain.Question{}, false
	}

	return clone(b.questions[i]), true
}

func (b *Bank) All() []domain.Question {
	return b.filter(func(domain.Question) bool { return true })
}

func (b *Bank) ByDifficulty(d domain.Difficulty) []domain.Question {
	return b.filter(func(q domain.Question) bool { return q.Difficulty == d })
}

func (b *Bank) ByCategory(category string) []domain.Question {
	return b.filter(func(q domain.Question) bool { return q.Category == category })
}

func (b *Bank) ByCategoryAndDifficulty(category string, d domain.Difficulty) []domain.Question {
	return b.filter(func(q domain.Question) bool { return q.Category == category && q.Difficulty == d })
}

// Categories returns the distinct categories, sorted.
func (b *Bank) Categories() []string {
	var cs []string
	for _, q := range b.questions {
		if !slices.Contains(cs, q.Category) {
			cs = append(cs, q.Category)
		}
	}

	slices.Sort(cs)
	return cs
}

// TimerDuration returns the per-question time limit for a difficulty.
func TimerDuration(d domain.Difficulty) time.Duration {
	if t, ok := timers[d]; ok {
		return t
	}

	return defaultTimer
}

func (b *Bank) filter(keep func(domain.Question) bool) []domain.Question {
	var out []domain.Question
	for _, q := range b.questions {
		if keep(q) {
			out = append(out, clone(q))
		}
	}

	return out
}

func clone(q domain.Question) domain.Question {
	q.Options = slices.Clone(q.Options)
	return q
}
