// Package session runs one player's quiz as a state machine.
//
// Every transition returns the observable Snapshot. Transitions that are not legal in the
// current phase leave the machine untouched and return the unchanged snapshot.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/level"
	"github.com/victornm/trivia/internal/questionbank"
	"github.com/victornm/trivia/internal/score"
)

type Phase string

const (
	PhaseSelectingMode  Phase = "selecting_mode"
	PhaseSelectingLevel Phase = "selecting_level"
	PhaseAnswering      Phase = "answering"
	PhaseSubmitted      Phase = "submitted"
	PhaseShowingResults Phase = "showing_results"
	PhaseReviewing      Phase = "reviewing"
	PhaseTerminal       Phase = "terminal"
)

// ErrNoQuestions is returned when a level or difficulty has nothing to draw.
var ErrNoQuestions = errors.New(errors.CodeNotFound, errors.WithMessagef("no questions available"))

// Completer persists a finished session. It is called at most once per drawn question set.
type Completer interface {
	Complete(ctx context.Context, req CompleteRequest) (Result, error)
}

type CompleteRequest struct {
	SessionID string
	UserID    string
	Attempt   domain.QuizAttempt
	// Level is nil for sessions played by difficulty only.
	Level *domain.Level
}

type Result struct {
	Attempt     domain.QuizAttempt  `json:"attempt"`
	Profile     *domain.UserProfile `json:"profile,omitempty"`
	Advancement *level.Advancement  `json:"advancement,omitempty"`
}

// Outcome is the completion state shown with the results. A failed save keeps the
// attempt and the error so it can be retried.
type Outcome struct {
	Result
	Saved bool   `json:"saved"`
	Error string `json:"error,omitempty"`
}

type Snapshot struct {
	ID             string               `json:"id"`
	UserID         string               `json:"userId"`
	Phase          Phase                `json:"phase"`
	Mode           domain.SessionMode   `json:"mode,omitempty"`
	Level          *domain.Level        `json:"level,omitempty"`
	Category       string               `json:"category,omitempty"`
	Question       *domain.Question     `json:"question,omitempty"`
	Index          int                  `json:"index"`
	Total          int                  `json:"total"`
	Score          int                  `json:"score"`
	Streak         int                  `json:"streak"`
	Multiplier     float64              `json:"multiplier"`
	Selected       string               `json:"selected,omitempty"`
	Submitted      bool                 `json:"submitted"`
	ShowingResults bool                 `json:"showingResults"`
	Correct        int                  `json:"correct"`
	LastAward      int                  `json:"lastAward"`
	WrongAnswers   []domain.WrongAnswer `json:"wrongAnswers"`
	Outcome        *Outcome             `json:"outcome,omitempty"`
	Token          uint64               `json:"token"`
	TimeLimit      int                  `json:"timeLimit,omitempty"`
	Remaining      int                  `json:"remaining,omitempty"`
	Paused         bool                 `json:"paused,omitempty"`
}

type Config struct {
	ID        string
	UserID    string
	Bank      *questionbank.Bank
	Completer Completer
	EventBus  *event.Bus
	// Shuffle permutes a drawn set in place. Defaults to a time-seeded Fisher-Yates shuffle.
	Shuffle func([]domain.Question)
	Now     func() time.Time
	// NewTickerFunc enables a server side countdown per question. Without it the
	// caller reports timeouts through TimeUp.
	NewTickerFunc func(d time.Duration) Ticker
	// OnTimeUp observes transitions made by the countdown.
	OnTimeUp func(Snapshot)
}

type Machine struct {
	id        string
	userID    string
	bank      *questionbank.Bank
	completer Completer
	eb        *event.Bus
	shuffle   func([]domain.Question)
	now       func() time.Time
	countdown *Countdown
	onTimeUp  func(Snapshot)

	mu        sync.Mutex
	phase     Phase
	mode      domain.SessionMode
	policy    score.Policy
	level     *domain.Level
	adHoc     bool
	category  string
	questions []domain.Question
	index     int
	selected  string
	score     int
	streak    score.Streak
	correct   int
	lastAward int
	wrong     []domain.WrongAnswer
	startedAt time.Time
	token     uint64
	completed bool
	attempt   domain.QuizAttempt
	outcome   *Outcome
	saveErr   error
}

func New(c Config) *Machine {
	m := &Machine{
		id:        c.ID,
		userID:    c.UserID,
		bank:      c.Bank,
		completer: c.Completer,
		eb:        c.EventBus,
		shuffle:   c.Shuffle,
		now:       c.Now,
		onTimeUp:  c.OnTimeUp,
		phase:     PhaseSelectingMode,
		policy:    score.PolicyFor(domain.ModeQuiz),
	}

	if m.shuffle == nil {
		m.shuffle = defaultShuffle
	}

	if m.now == nil {
		m.now = time.Now
	}

	if c.NewTickerFunc != nil {
		m.countdown = NewCountdown(CountdownConfig{
			NewTickerFunc: c.NewTickerFunc,
			Expire:        m.expire,
		})
	}

	return m
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) UserID() string { return m.userID }

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshot()
}

// SelectMode picks quiz or flashcard play and moves on to level selection.
func (m *Machine) SelectMode(mode domain.SessionMode) (Snapshot, error) {
	if !mode.Valid() {
		return m.Snapshot(), errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid mode: %q", mode))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseSelectingMode && m.phase != PhaseSelectingLevel {
		return m.snapshot(), nil
	}

	m.mode = mode
	m.policy = score.PolicyFor(mode)
	m.phase = PhaseSelectingLevel
	return m.snapshot(), nil
}

// SelectLevel draws the level's questions, restricted to category when given, and starts answering.
func (m *Machine) SelectLevel(l domain.Level, category string) (Snapshot, error) {
	if !l.Difficulty.Valid() {
		return m.Snapshot(), errors.New(errors.CodeInvalidArgument, errors.WithMessagef("level %d has invalid difficulty %q", l.ID, l.Difficulty))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseSelectingLevel {
		return m.snapshot(), nil
	}

	if err := m.start(&l, false, category); err != nil {
		return m.snapshot(), err
	}

	return m.snapshot(), nil
}

// SelectDifficulty starts a session over every question of difficulty d, restricted to category when given.
func (m *Machine) SelectDifficulty(d domain.Difficulty, category string) (Snapshot, error) {
	if !d.Valid() {
		return m.Snapshot(), errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid difficulty: %q", d))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseSelectingLevel {
		return m.snapshot(), nil
	}

	name := category
	if name == "" {
		name = domain.GeneralCategory
	}

	l := domain.Level{
		Name:            name,
		Difficulty:      d,
		TimePerQuestion: int(questionbank.TimerDuration(d) / time.Second),
	}

	if err := m.start(&l, true, category); err != nil {
		return m.snapshot(), err
	}

	return m.snapshot(), nil
}

// Answer records a tentative selection for the current question.
func (m *Machine) Answer(optionID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseAnswering {
		return m.snapshot(), nil
	}

	if q := m.questions[m.index]; !q.HasOption(optionID) {
		return m.snapshot(), errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question %s has no option %q", q.ID, optionID))
	}

	m.selected = optionID
	return m.snapshot(), nil
}

// Submit grades the current selection. A missing selection is graded as wrong.
func (m *Machine) Submit(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseAnswering {
		return m.snapshot()
	}

	m.grade(ctx, m.selected == m.questions[m.index].CorrectAnswer, false)
	return m.snapshot()
}

// SelfGrade grades a flashcard by the player's own judgement.
func (m *Machine) SelfGrade(ctx context.Context, correct bool) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseAnswering || m.mode != domain.ModeFlashcard {
		return m.snapshot()
	}

	m.grade(ctx, correct, false)
	return m.snapshot()
}

// TimeUp ends the question identified by token. A pending selection is submitted; without one
// the question is forfeited and the session moves straight on. Stale tokens are ignored.
func (m *Machine) TimeUp(ctx context.Context, token uint64) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseAnswering || token != m.token {
		return m.snapshot()
	}

	if m.selected != "" {
		m.grade(ctx, m.selected == m.questions[m.index].CorrectAnswer, false)
		return m.snapshot()
	}

	m.grade(ctx, false, true)
	if m.phase == PhaseSubmitted {
		m.advance()
	}

	return m.snapshot()
}

// Next moves to the following question. It is a no-op on the last question.
func (m *Machine) Next() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseSubmitted || m.index >= len(m.questions)-1 {
		return m.snapshot()
	}

	m.advance()
	return m.snapshot()
}

// Restart redraws and reshuffles the same level and starts over.
func (m *Machine) Restart() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseAnswering, PhaseSubmitted, PhaseShowingResults, PhaseReviewing:
	default:
		return m.snapshot(), nil
	}

	l := *m.level
	if err := m.start(&l, m.adHoc, m.category); err != nil {
		return m.snapshot(), err
	}

	return m.snapshot(), nil
}

// ChangeLevel abandons the current run and returns to level selection. Nothing is recorded.
func (m *Machine) ChangeLevel() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseSelectingMode || m.phase == PhaseTerminal {
		return m.snapshot()
	}

	m.abandon()
	m.phase = PhaseSelectingLevel
	return m.snapshot()
}

// ChangeMode abandons the current run and returns to mode selection. Nothing is recorded.
func (m *Machine) ChangeMode() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseTerminal {
		return m.snapshot()
	}

	m.abandon()
	m.mode = ""
	m.policy = score.PolicyFor(domain.ModeQuiz)
	m.phase = PhaseSelectingMode
	return m.snapshot()
}

func (m *Machine) Review() Snapshot {
	return m.move(PhaseShowingResults, PhaseReviewing)
}

func (m *Machine) BackToResults() Snapshot {
	return m.move(PhaseReviewing, PhaseShowingResults)
}

// Finish closes the session after its results were shown.
func (m *Machine) Finish() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseShowingResults && m.phase != PhaseReviewing {
		return m.snapshot()
	}

	m.phase = PhaseTerminal
	return m.snapshot()
}

// RetrySave saves a completed attempt again after a failed save. It never records twice.
func (m *Machine) RetrySave(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if (m.phase != PhaseShowingResults && m.phase != PhaseReviewing) || m.saveErr == nil {
		return m.snapshot()
	}

	m.save(ctx)
	return m.snapshot()
}

func (m *Machine) PauseTimer() Snapshot {
	if m.countdown != nil {
		m.countdown.Pause()
	}

	return m.Snapshot()
}

func (m *Machine) ResumeTimer() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.countdown != nil && m.phase == PhaseAnswering {
		m.countdown.Resume()
	}

	return m.snapshot()
}

// Close stops the countdown. The machine must not be used afterwards.
func (m *Machine) Close() {
	if m.countdown != nil {
		m.countdown.Stop()
	}
}

func (m *Machine) expire(token uint64) {
	s := m.TimeUp(context.Background(), token)
	if m.onTimeUp != nil {
		m.onTimeUp(s)
	}
}

func (m *Machine) move(from, to Phase) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == from {
		m.phase = to
	}

	return m.snapshot()
}

func (m *Machine) start(l *domain.Level, adHoc bool, category string) error {
	n := l.QuestionsPerQuiz
	if adHoc {
		n = 0
	}

	qs := Draw(m.bank, category, l.Difficulty, n, m.shuffle)
	if len(qs) == 0 {
		return ErrNoQuestions
	}

	m.abandon()
	m.level = l
	m.adHoc = adHoc
	m.category = category
	m.questions = qs
	m.startedAt = m.now()
	m.phase = PhaseAnswering
	m.startQuestion()
	return nil
}

func (m *Machine) abandon() {
	m.stopTimer()
	m.level = nil
	m.adHoc = false
	m.category = ""
	m.questions = nil
	m.index = 0
	m.selected = ""
	m.score = 0
	m.streak = 0
	m.correct = 0
	m.lastAward = 0
	m.wrong = nil
	m.completed = false
	m.attempt = domain.QuizAttempt{}
	m.outcome = nil
	m.saveErr = nil
}

func (m *Machine) advance() {
	m.index++
	m.selected = ""
	m.phase = PhaseAnswering
	m.startQuestion()
}

func (m *Machine) startQuestion() {
	m.token++
	if m.countdown != nil && m.mode != domain.ModeFlashcard && m.level.TimePerQuestion > 0 {
		m.countdown.Start(m.token, time.Duration(m.level.TimePerQuestion)*time.Second)
	}
}

func (m *Machine) stopTimer() {
	if m.countdown != nil {
		m.countdown.Stop()
	}
}

func (m *Machine) grade(ctx context.Context, correct, timedOut bool) {
	q := m.questions[m.index]

	var awarded int
	m.streak, awarded = score.Grade(m.policy, m.streak, q.Points, correct)
	m.score += awarded
	m.lastAward = awarded
	if correct {
		m.correct++
	} else if m.selected != "" {
		m.wrong = append(m.wrong, domain.WrongAnswer{
			Question:       q,
			SelectedAnswer: m.selected,
			CorrectAnswer:  q.CorrectAnswer,
		})
	}

	m.stopTimer()

	if m.eb != nil {
		m.eb.Publish(ctx, domain.EventAnswerGraded{
			SessionID:  m.id,
			UserID:     m.userID,
			QuestionID: q.ID,
			Selected:   m.selected,
			Correct:    correct,
			TimedOut:   timedOut,
			Awarded:    awarded,
			Streak:     int(m.streak),
		})
	}

	if m.index < len(m.questions)-1 {
		m.phase = PhaseSubmitted
		return
	}

	m.phase = PhaseShowingResults
	m.complete(ctx)
}

func (m *Machine) complete(ctx context.Context) {
	if m.completed {
		return
	}
	m.completed = true

	m.attempt = m.buildAttempt()

	if m.eb != nil {
		m.eb.Publish(ctx, domain.EventSessionCompleted{
			SessionID: m.id,
			UserID:    m.userID,
			Attempt:   m.attempt,
		})
	}

	m.save(ctx)
}

func (m *Machine) save(ctx context.Context) {
	if m.completer == nil {
		m.outcome = &Outcome{Result: Result{Attempt: m.attempt}}
		return
	}

	var l *domain.Level
	if !m.adHoc {
		lv := *m.level
		l = &lv
	}

	res, err := m.completer.Complete(ctx, CompleteRequest{
		SessionID: m.id,
		UserID:    m.userID,
		Attempt:   m.attempt,
		Level:     l,
	})
	if err != nil {
		slog.ErrorContext(ctx, "session: save attempt failed", "session", m.id, "error", err)
		m.saveErr = err
		m.outcome = &Outcome{
			Result: Result{Attempt: m.attempt},
			Error:  errors.Convert(err).Message,
		}
		return
	}

	m.saveErr = nil
	m.outcome = &Outcome{Result: res, Saved: true}
}

func (m *Machine) buildAttempt() domain.QuizAttempt {
	now := m.now()
	d := m.level.Difficulty

	a := domain.QuizAttempt{
		QuizID:         fmt.Sprintf("%s-quiz", d),
		QuizName:       fmt.Sprintf("%s Quiz (%s)", m.level.Name, d.Title()),
		Category:       m.category,
		Score:          score.Percentage(m.correct, len(m.questions)),
		TotalQuestions: len(m.questions),
		CorrectAnswers: m.correct,
		Date:           now,
		TimeTaken:      int(now.Sub(m.startedAt) / time.Second),
		Difficulty:     d,
		Mode:           m.mode,
	}

	if a.Category == "" {
		a.Category = domain.GeneralCategory
	}

	if a.Mode == "" {
		a.Mode = domain.ModeQuiz
	}

	if !m.adHoc {
		a.QuizID = fmt.Sprintf("level-%d", m.level.ID)
		a.LevelID = m.level.ID
	}

	return a
}

func (m *Machine) snapshot() Snapshot {
	s := Snapshot{
		ID:             m.id,
		UserID:         m.userID,
		Phase:          m.phase,
		Mode:           m.mode,
		Category:       m.category,
		Index:          m.index,
		Total:          len(m.questions),
		Score:          m.score,
		Streak:         int(m.streak),
		Multiplier:     m.policy.Multiplier(m.streak),
		Selected:       m.selected,
		Submitted:      m.phase == PhaseSubmitted,
		ShowingResults: m.phase == PhaseShowingResults,
		Correct:        m.correct,
		LastAward:      m.lastAward,
		WrongAnswers:   slices.Clone(m.wrong),
		Token:          m.token,
	}

	if m.level != nil {
		l := *m.level
		s.Level = &l
		s.TimeLimit = l.TimePerQuestion
	}

	if m.phase == PhaseAnswering || m.phase == PhaseSubmitted {
		q := m.questions[m.index]
		q.Options = slices.Clone(q.Options)
		s.Question = &q
	}

	if m.outcome != nil {
		o := *m.outcome
		s.Outcome = &o
	}

	if m.countdown != nil && m.phase == PhaseAnswering {
		s.Remaining = int(m.countdown.Remaining() / time.Second)
		s.Paused = m.countdown.Paused()
	}

	return s
}
