package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/store"
)

const defaultTopLimit = 10

type Config struct {
	EventBus *event.Bus
	Store    store.KV
	Keys     store.Keys
	Now      func() time.Time
}

// Service keeps every known profile and serves leaderboards computed from them.
// The unfiltered leaderboard is cached in the store and regenerated on every update.
type Service struct {
	eb   *event.Bus
	kv   store.KV
	keys store.Keys
	now  func() time.Time

	mu    sync.Mutex
	group singleflight.Group
}

func NewService(c Config) *Service {
	s := &Service{
		eb:   c.EventBus,
		kv:   c.Store,
		keys: c.Keys,
		now:  c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.eb != nil {
		s.eb.Subscribe(domain.EventNameAttemptRecorded, func(ctx context.Context, e event.Event) error {
			return s.upsert(ctx, e.(domain.EventAttemptRecorded).Profile, keepLonger)
		})
	}

	return s
}

// Upsert adds or replaces a profile in the collection and regenerates the cached leaderboard.
func (s *Service) Upsert(ctx context.Context, p domain.UserProfile) error {
	return s.upsert(ctx, p, nil)
}

// keepLonger keeps the stored profile when it already holds more attempts. Attempt events
// are delivered concurrently, so an older snapshot may arrive after a newer one.
func keepLonger(stored, incoming domain.UserProfile) bool {
	return stored.TotalQuizzesTaken > incoming.TotalQuizzesTaken
}

func (s *Service) upsert(ctx context.Context, p domain.UserProfile, keep func(stored, incoming domain.UserProfile) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.profiles(ctx)
	if err != nil {
		return err
	}

	if i := slices.IndexFunc(profiles, func(u domain.UserProfile) bool { return u.ID == p.ID }); i >= 0 {
		if keep != nil && keep(profiles[i], p) {
			return nil
		}
		profiles[i] = p
	} else {
		profiles = append(profiles, p)
	}

	if err := s.saveProfiles(ctx, profiles); err != nil {
		return err
	}

	entries, err := s.regenerate(ctx, profiles)
	if err != nil {
		return err
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
			Entries: entries,
		})
	}

	return nil
}

// Leaderboard returns the ranked entries. Without filters the cached leaderboard is served.
func (s *Service) Leaderboard(ctx context.Context, f domain.LeaderboardFilters) ([]domain.LeaderboardEntry, error) {
	if !f.IsZero() {
		profiles, err := s.profiles(ctx)
		if err != nil {
			return nil, err
		}

		return Rank(profiles, f), nil
	}

	var entries []domain.LeaderboardEntry
	err := store.GetJSON(ctx, s.kv, s.keys.Leaderboard(), &entries)
	if err == nil {
		return entries, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Unavailable(fmt.Errorf("leaderboard: load cache: %w", err))
	}

	v, err, _ := s.group.Do(s.keys.Leaderboard(), func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		profiles, err := s.profiles(ctx)
		if err != nil {
			return nil, err
		}

		return s.regenerate(ctx, profiles)
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.LeaderboardEntry), nil
}

type UserRankRequest struct {
	UserID  string
	Filters domain.LeaderboardFilters
}

// UserRank returns the user's 1-based position, or -1 when the user is not ranked.
func (s *Service) UserRank(ctx context.Context, req UserRankRequest) (int, error) {
	entries, err := s.Leaderboard(ctx, req.Filters)
	if err != nil {
		return 0, err
	}

	return Position(entries, req.UserID), nil
}

type TopRequest struct {
	Limit   int
	Filters domain.LeaderboardFilters
}

func (s *Service) Top(ctx context.Context, req TopRequest) ([]domain.LeaderboardEntry, error) {
	entries, err := s.Leaderboard(ctx, req.Filters)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}

	return entries[:min(limit, len(entries))], nil
}

// Categories returns every category any known user has played, sorted.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}

	cs := []string{}
	for _, p := range profiles {
		for _, a := range p.QuizHistory {
			if !slices.Contains(cs, a.Category) {
				cs = append(cs, a.Category)
			}
		}
	}

	slices.Sort(cs)
	return cs, nil
}

func (s *Service) regenerate(ctx context.Context, profiles []domain.UserProfile) ([]domain.LeaderboardEntry, error) {
	entries := Rank(profiles, domain.LeaderboardFilters{})
	if err := store.SetJSON(ctx, s.kv, s.keys.Leaderboard(), entries); err != nil {
		return nil, errors.Unavailable(fmt.Errorf("leaderboard: save cache: %w", err))
	}

	return entries, nil
}

func (s *Service) profiles(ctx context.Context) ([]domain.UserProfile, error) {
	var profiles []domain.UserProfile
	err := store.GetJSON(ctx, s.kv, s.keys.Profiles(), &profiles)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("leaderboard: load profiles: %w", err))
	}

	return profiles, nil
}

func (s *Service) saveProfiles(ctx context.Context, profiles []domain.UserProfile) error {
	if err := store.SetJSON(ctx, s.kv, s.keys.Profiles(), profiles); err != nil {
		return errors.Unavailable(fmt.Errorf("leaderboard: save profiles: %w", err))
	}

	return nil
}
