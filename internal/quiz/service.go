// Package quiz runs sessions for players and feeds their results into profiles and level progression.
package quiz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/level"
	"github.com/victornm/trivia/internal/profile"
	"github.com/victornm/trivia/internal/questionbank"
	"github.com/victornm/trivia/internal/session"
)

type Config struct {
	EventBus *event.Bus
	Bank     *questionbank.Bank
	Profile  *profile.Service
	Level    *level.Service
	// NewTickerFunc enables server side question timers.
	NewTickerFunc func(d time.Duration) session.Ticker
	Shuffle       func([]domain.Question)
	Now           func() time.Time
}

type Service struct {
	eb        *event.Bus
	bank      *questionbank.Bank
	profile   *profile.Service
	level     *level.Service
	newTicker func(d time.Duration) session.Ticker
	shuffle   func([]domain.Question)
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session.Machine
}

func NewService(c Config) *Service {
	return &Service{
		eb:        c.EventBus,
		bank:      c.Bank,
		profile:   c.Profile,
		level:     c.Level,
		newTicker: c.NewTickerFunc,
		shuffle:   c.Shuffle,
		now:       c.Now,
		sessions:  make(map[string]*session.Machine),
	}
}

type StartRequest struct {
	UserID string
	// OnTimeUp observes transitions made by server side timers.
	OnTimeUp func(session.Snapshot)
}

// Start opens a new session for the user.
func (s *Service) Start(ctx context.Context, req StartRequest) (session.Snapshot, error) {
	userID := req.UserID
	if userID == "" {
		userID = profile.DefaultUserID
	}

	id, err := uuid.NewV7()
	if err != nil {
		return session.Snapshot{}, errors.Internal(err)
	}

	m := session.New(session.Config{
		ID:            id.String(),
		UserID:        userID,
		Bank:          s.bank,
		Completer:     s,
		EventBus:      s.eb,
		Shuffle:       s.shuffle,
		Now:           s.now,
		NewTickerFunc: s.newTicker,
		OnTimeUp:      req.OnTimeUp,
	})

	s.mu.Lock()
	s.sessions[m.ID()] = m
	s.mu.Unlock()

	slog.InfoContext(ctx, "quiz: session started", "session", m.ID(), "user", userID)

	return m.Snapshot(), nil
}

// Session returns a running session.
func (s *Service) Session(id string) (*session.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.sessions[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", id))
	}

	return m, nil
}

// End stops and forgets a session. Nothing is recorded for an unfinished session.
func (s *Service) End(id string) error {
	s.mu.Lock()
	m, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", id))
	}

	m.Close()
	return nil
}

type StartLevelRequest struct {
	SessionID string
	LevelID   int
	Category  string
}

// StartLevel makes the level the player's current one and draws its questions.
// Only unlocked levels can be played.
func (s *Service) StartLevel(ctx context.Context, req StartLevelRequest) (session.Snapshot, error) {
	m, err := s.Session(req.SessionID)
	if err != nil {
		return session.Snapshot{}, err
	}

	if m.Snapshot().Phase != session.PhaseSelectingLevel {
		return m.Snapshot(), nil
	}

	prev, err := s.level.Progress(ctx, m.UserID())
	if err != nil {
		return m.Snapshot(), err
	}

	if _, err := s.level.SetCurrentLevel(ctx, m.UserID(), req.LevelID); err != nil {
		return m.Snapshot(), err
	}

	l, _ := s.level.Catalog().Get(req.LevelID)
	snap, err := m.SelectLevel(l, req.Category)
	if err != nil && prev.CurrentLevel != req.LevelID {
		if _, rerr := s.level.SetCurrentLevel(ctx, m.UserID(), prev.CurrentLevel); rerr != nil {
			slog.ErrorContext(ctx, "quiz: restore current level failed", "error", rerr)
		}
	}

	return snap, err
}

type StartDifficultyRequest struct {
	SessionID  string
	Difficulty domain.Difficulty
	Category   string
}

// StartDifficulty plays every question of a difficulty outside level progression.
func (s *Service) StartDifficulty(_ context.Context, req StartDifficultyRequest) (session.Snapshot, error) {
	m, err := s.Session(req.SessionID)
	if err != nil {
		return session.Snapshot{}, err
	}

	return m.SelectDifficulty(req.Difficulty, req.Category)
}

// Complete records the attempt and, when the level played is the player's current level,
// checks for advancement. A failed advancement check is only logged: the attempt stays recorded
// and the next completion re-derives progress from it.
func (s *Service) Complete(ctx context.Context, req session.CompleteRequest) (session.Result, error) {
	p, a, err := s.profile.RecordAttempt(ctx, profile.RecordAttemptRequest{
		UserID:  req.UserID,
		Attempt: req.Attempt,
	})
	if err != nil {
		return session.Result{}, err
	}

	res := session.Result{
		Attempt: a,
		Profile: &p,
	}

	if req.Level == nil {
		return res, nil
	}

	progress, err := s.level.Progress(ctx, req.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "quiz: load level progress failed", "user", req.UserID, "error", err)
		return res, nil
	}

	if progress.CurrentLevel != req.Level.ID {
		return res, nil
	}

	adv, err := s.level.CheckAdvancement(ctx, level.CheckAdvancementRequest{
		UserID:  req.UserID,
		Score:   a.Score,
		LevelID: req.Level.ID,
		History: p.QuizHistory,
	})
	if err != nil {
		slog.ErrorContext(ctx, "quiz: check advancement failed", "user", req.UserID, "error", err)
		return res, nil
	}

	res.Advancement = &adv
	return res, nil
}
