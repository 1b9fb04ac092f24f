package profile

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/score"
	"github.com/victornm/trivia/internal/store"
)

const (
	DefaultUserID   = "1"
	DefaultUsername = "QuizMaster"
	DefaultEmail    = "quizmaster@example.com"

	recentActivity = 5
)

type Config struct {
	EventBus *event.Bus
	Store    store.KV
	Keys     store.Keys
	Now      func() time.Time
	NewID    func() (string, error)
}

// Service owns user profiles and their attempt history.
type Service struct {
	eb    *event.Bus
	kv    store.KV
	keys  store.Keys
	now   func() time.Time
	newID func() (string, error)

	mu sync.Mutex
}

func NewService(c Config) *Service {
	s := &Service{
		eb:    c.EventBus,
		kv:    c.Store,
		keys:  c.Keys,
		now:   c.Now,
		newID: c.NewID,
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.newID == nil {
		s.newID = func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}

	return s
}

// Get returns the user's profile, creating and saving the default profile when none exists.
func (s *Service) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, userID)
}

type RecordAttemptRequest struct {
	UserID  string
	Attempt domain.QuizAttempt
}

// RecordAttempt normalizes the attempt, prepends it to the history and recomputes the aggregates.
func (s *Service) RecordAttempt(ctx context.Context, req RecordAttemptRequest) (domain.UserProfile, domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, req.UserID)
	if err != nil {
		return domain.UserProfile{}, domain.QuizAttempt{}, err
	}

	id, err := s.newID()
	if err != nil {
		return domain.UserProfile{}, domain.QuizAttempt{}, errors.Internal(fmt.Errorf("profile: generate attempt id: %w", err))
	}

	a := req.Attempt
	a.ID = id
	if a.Date.IsZero() {
		a.Date = s.now()
	}
	a = Apply(&p, a)

	if err := s.save(ctx, p); err != nil {
		return domain.UserProfile{}, domain.QuizAttempt{}, err
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventAttemptRecorded{
			Profile: p,
			Attempt: a,
		})
	}

	return p, a, nil
}

// Normalize clamps the score to [0, 100] and forces 100 for a perfect run.
func Normalize(a domain.QuizAttempt) domain.QuizAttempt {
	a.Score = min(max(a.Score, 0), 100)
	if a.CorrectAnswers == a.TotalQuestions {
		a.Score = 100
	}

	return a
}

// Apply normalizes a, prepends it to the history and refreshes the aggregates derived from
// it. It returns the attempt as stored.
func Apply(p *domain.UserProfile, a domain.QuizAttempt) domain.QuizAttempt {
	a = Normalize(a)
	p.QuizHistory = append([]domain.QuizAttempt{a}, p.QuizHistory...)
	recompute(p)
	updateBestScore(p, a)

	return a
}

func recompute(p *domain.UserProfile) {
	sum := 0
	for _, a := range p.QuizHistory {
		sum += a.Score
	}

	p.TotalQuizzesTaken = len(p.QuizHistory)
	p.AverageScore = score.RoundedMean(sum, len(p.QuizHistory))
}

func updateBestScore(p *domain.UserProfile, a domain.QuizAttempt) {
	if p.BestScores == nil {
		p.BestScores = make(map[string]domain.BestScore)
	}

	if best, ok := p.BestScores[a.Category]; ok && a.Score <= best.Score {
		return
	}

	p.BestScores[a.Category] = domain.BestScore{
		Score:    a.Score,
		QuizName: a.QuizName,
		Date:     a.Date,
	}
}

func (s *Service) History(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return p.QuizHistory, nil
}

func (s *Service) BestScores(ctx context.Context, userID string) (map[string]domain.BestScore, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return p.BestScores, nil
}

type Stats struct {
	TotalQuizzes     int                  `json:"totalQuizzes"`
	AverageScore     int                  `json:"averageScore"`
	HighestScore     int                  `json:"highestScore"`
	CategoriesPlayed []string             `json:"categoriesPlayed"`
	RecentActivity   []domain.QuizAttempt `json:"recentActivity"`
}

// Stats summarizes a profile for display.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalQuizzes:     p.TotalQuizzesTaken,
		AverageScore:     p.AverageScore,
		CategoriesPlayed: []string{},
		RecentActivity:   p.QuizHistory[:min(recentActivity, len(p.QuizHistory))],
	}

	for _, a := range p.QuizHistory {
		st.HighestScore = max(st.HighestScore, a.Score)
		if !slices.Contains(st.CategoriesPlayed, a.Category) {
			st.CategoriesPlayed = append(st.CategoriesPlayed, a.Category)
		}
	}

	slices.Sort(st.CategoriesPlayed)
	return st, nil
}

type UpdateInfoRequest struct {
	UserID   string
	Username *string
	Email    *string
}

// UpdateInfo overwrites the username and email fields that are set on the request.
func (s *Service) UpdateInfo(ctx context.Context, req UpdateInfoRequest) (domain.UserProfile, error) {
	if req.Username != nil && *req.Username == "" {
		return domain.UserProfile{}, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("username must not be empty"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, req.UserID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if req.Username != nil {
		p.Username = *req.Username
	}
	if req.Email != nil {
		p.Email = *req.Email
	}

	if err := s.save(ctx, p); err != nil {
		return domain.UserProfile{}, err
	}

	return p, nil
}

// Reset replaces the user's profile with a fresh default one.
func (s *Service) Reset(ctx context.Context, userID string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.defaultProfile(userID)
	if err := s.save(ctx, p); err != nil {
		return domain.UserProfile{}, err
	}

	return p, nil
}

func (s *Service) defaultProfile(userID string) domain.UserProfile {
	return domain.UserProfile{
		ID:          userID,
		Username:    DefaultUsername,
		Email:       DefaultEmail,
		JoinDate:    s.now(),
		QuizHistory: []domain.QuizAttempt{},
		BestScores:  map[string]domain.BestScore{},
	}
}

func (s *Service) load(ctx context.Context, userID string) (domain.UserProfile, error) {
	if userID == "" {
		userID = DefaultUserID
	}

	var p domain.UserProfile
	err := store.GetJSON(ctx, s.kv, s.keys.Profile(userID), &p)
	if stderrors.Is(err, store.ErrNotFound) {
		p = s.defaultProfile(userID)
		return p, s.save(ctx, p)
	}
	if err != nil {
		return domain.UserProfile{}, errors.Unavailable(fmt.Errorf("profile: load %s: %w", userID, err))
	}

	if p.QuizHistory == nil {
		p.QuizHistory = []domain.QuizAttempt{}
	}
	if p.BestScores == nil {
		p.BestScores = map[string]domain.BestScore{}
	}

	return p, nil
}

func (s *Service) save(ctx context.Context, p domain.UserProfile) error {
	if err := store.SetJSON(ctx, s.kv, s.keys.Profile(p.ID), p); err != nil {
		return errors.Unavailable(fmt.Errorf("profile: save %s: %w", p.ID, err))
	}

	return nil
}
