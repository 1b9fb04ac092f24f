package level

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/store"
)

type Config struct {
	EventBus *event.Bus
	Store    store.KV
	Keys     store.Keys
	// Catalog defaults to DefaultCatalog.
	Catalog Catalog
	// UnlockAll starts new users with every level unlocked instead of only the first.
	UnlockAll bool
}

type Service struct {
	eb        *event.Bus
	kv        store.KV
	keys      store.Keys
	catalog   Catalog
	unlockAll bool

	mu sync.Mutex
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		kv:        c.Store,
		keys:      c.Keys,
		catalog:   c.Catalog,
		unlockAll: c.UnlockAll,
	}

	if len(s.catalog) == 0 {
		s.catalog = DefaultCatalog()
	}

	return s
}

func (s *Service) Catalog() Catalog {
	return slices.Clone(s.catalog)
}

// Progress returns the user's progress, creating the default one when none exists.
func (s *Service) Progress(ctx context.Context, userID string) (domain.LevelProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, userID)
}

// Levels returns the catalog with Unlocked derived from the user's progress.
func (s *Service) Levels(ctx context.Context, userID string) ([]domain.Level, error) {
	p, err := s.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.withUnlocked(p), nil
}

func (s *Service) CurrentLevel(ctx context.Context, userID string) (domain.Level, error) {
	p, err := s.Progress(ctx, userID)
	if err != nil {
		return domain.Level{}, err
	}

	if l, ok := s.catalog.Get(p.CurrentLevel); ok {
		l.Unlocked = true
		return l, nil
	}

	l := s.catalog[0]
	l.Unlocked = p.IsUnlocked(l.ID)
	return l, nil
}

// SetCurrentLevel switches the user's active level. Only unlocked levels can be selected.
func (s *Service) SetCurrentLevel(ctx context.Context, userID string, levelID int) (domain.LevelProgress, error) {
	if _, ok := s.catalog.Get(levelID); !ok {
		return domain.LevelProgress{}, errors.New(errors.CodeNotFound, errors.WithMessagef("level not found: %d", levelID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return domain.LevelProgress{}, err
	}

	if !p.IsUnlocked(levelID) {
		return domain.LevelProgress{}, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("level %d is locked", levelID))
	}

	if p.CurrentLevel == levelID {
		return p, nil
	}

	p.CurrentLevel = levelID
	return p, s.save(ctx, userID, p)
}

// Unlock adds levelID to the unlocked set. Unlocking is never undone.
func (s *Service) Unlock(ctx context.Context, userID string, levelID int) (domain.LevelProgress, error) {
	if _, ok := s.catalog.Get(levelID); !ok {
		return domain.LevelProgress{}, errors.New(errors.CodeNotFound, errors.WithMessagef("level not found: %d", levelID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return domain.LevelProgress{}, err
	}

	if p.IsUnlocked(levelID) {
		return p, nil
	}

	p.UnlockedLevels = union(p.UnlockedLevels, levelID)
	return p, s.save(ctx, userID, p)
}

func (s *Service) Reset(ctx context.Context, userID string) (domain.LevelProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.defaultProgress()
	return p, s.save(ctx, userID, p)
}

type CheckAdvancementRequest struct {
	UserID string
	// Score is the percentage achieved in the attempt just recorded.
	Score   int
	LevelID int
	// History is the user's full attempt history, newest first.
	History []domain.QuizAttempt
}

type Advancement struct {
	Advanced   bool                 `json:"advanced"`
	NewLevel   *domain.Level        `json:"newLevel,omitempty"`
	Progress   domain.LevelProgress `json:"progress"`
	Message    string               `json:"message"`
	Experience decimal.Decimal      `json:"experience"`
}

// CheckAdvancement evaluates the recent attempts at a level and either advances the user
// to the next level or accrues partial experience. An unknown level is a no-op.
func (s *Service) CheckAdvancement(ctx context.Context, req CheckAdvancementRequest) (Advancement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, req.UserID)
	if err != nil {
		return Advancement{}, err
	}

	current, ok := s.catalog.Get(req.LevelID)
	if !ok {
		return Advancement{Progress: p}, nil
	}

	recent := Attributed(req.History, current, p.CurrentLevel)
	if len(recent) > current.RequiredQuizzes {
		recent = recent[:current.RequiredQuizzes]
	}

	avg := average(recent)
	met := len(recent) >= current.RequiredQuizzes && avg.GreaterThanOrEqual(decimal.NewFromInt(int64(current.RequiredScore)))

	if next, ok := s.catalog.Next(current.ID); met && ok {
		gained := decimal.NewFromInt(int64(req.Score * current.PointsPerQuestion))
		p.CurrentLevel = next.ID
		p.UnlockedLevels = union(p.UnlockedLevels, next.ID)
		p.TotalExperience = p.TotalExperience.Add(gained)

		if err := s.save(ctx, req.UserID, p); err != nil {
			return Advancement{}, err
		}

		next.Unlocked = true
		if s.eb != nil {
			s.eb.Publish(ctx, domain.EventLevelAdvanced{
				UserID: req.UserID,
				From:   current,
				To:     next,
			})
		}

		return Advancement{
			Advanced:   true,
			NewLevel:   &next,
			Progress:   p,
			Message:    fmt.Sprintf("Congratulations! You've advanced to %s level!", next.Name),
			Experience: gained,
		}, nil
	}

	gained := decimal.NewFromInt(int64(req.Score * current.PointsPerQuestion)).Div(decimal.NewFromInt(100))
	p.TotalExperience = p.TotalExperience.Add(gained)

	if err := s.save(ctx, req.UserID, p); err != nil {
		return Advancement{}, err
	}

	return Advancement{
		Progress:   p,
		Message:    progressMessage(current, len(recent), avg, met),
		Experience: gained,
	}, nil
}

func progressMessage(l domain.Level, count int, avg decimal.Decimal, met bool) string {
	if met {
		return "You have reached the highest level!"
	}

	if left := l.RequiredQuizzes - count; left > 0 {
		noun := "quizzes"
		if left == 1 {
			noun = "quiz"
		}
		return fmt.Sprintf("Complete %d more %s to advance.", left, noun)
	}

	needed := decimal.NewFromInt(int64(l.RequiredScore)).Sub(avg)
	return fmt.Sprintf("Improve your average by %s%% to advance.", needed.StringFixed(1))
}

// Attributed returns the attempts that count toward level l, most recent first.
// Attempts carrying a level id match on it. Older attempts without one match when their quiz
// name mentions the level, or when they are generic attempts and l is the user's current level.
func Attributed(history []domain.QuizAttempt, l domain.Level, currentLevelID int) []domain.QuizAttempt {
	var out []domain.QuizAttempt
	for _, a := range history {
		switch {
		case a.LevelID != 0:
			if a.LevelID == l.ID {
				out = append(out, a)
			}
		case strings.Contains(a.QuizName, l.Name):
			out = append(out, a)
		case a.Category == domain.GeneralCategory && l.ID == currentLevelID:
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})

	return out
}

func average(attempts []domain.QuizAttempt) decimal.Decimal {
	if len(attempts) == 0 {
		return decimal.Zero
	}

	sum := 0
	for _, a := range attempts {
		sum += a.Score
	}

	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(attempts))))
}

func union(ids []int, id int) []int {
	if slices.Contains(ids, id) {
		return ids
	}

	out := append(slices.Clone(ids), id)
	slices.Sort(out)
	return out
}

func (s *Service) withUnlocked(p domain.LevelProgress) []domain.Level {
	levels := s.Catalog()
	for i := range levels {
		levels[i].Unlocked = p.IsUnlocked(levels[i].ID)
	}

	return levels
}

func (s *Service) defaultProgress() domain.LevelProgress {
	unlocked := []int{s.catalog[0].ID}
	if s.unlockAll {
		unlocked = s.catalog.IDs()
	}

	return domain.LevelProgress{
		CurrentLevel:    s.catalog[0].ID,
		TotalExperience: decimal.Zero,
		UnlockedLevels:  unlocked,
	}
}

func (s *Service) load(ctx context.Context, userID string) (domain.LevelProgress, error) {
	var p domain.LevelProgress
	err := store.GetJSON(ctx, s.kv, s.keys.Progress(userID), &p)
	if stderrors.Is(err, store.ErrNotFound) {
		p = s.defaultProgress()
		return p, s.save(ctx, userID, p)
	}
	if err != nil {
		return domain.LevelProgress{}, errors.Unavailable(fmt.Errorf("level: load progress %s: %w", userID, err))
	}

	if !p.IsUnlocked(p.CurrentLevel) {
		p.UnlockedLevels = union(p.UnlockedLevels, p.CurrentLevel)
	}

	return p, nil
}

func (s *Service) save(ctx context.Context, userID string, p domain.LevelProgress) error {
	if err := store.SetJSON(ctx, s.kv, s.keys.Progress(userID), p); err != nil {
		return errors.Unavailable(fmt.Errorf("level: save progress %s: %w", userID, err))
	}

	return nil
}
