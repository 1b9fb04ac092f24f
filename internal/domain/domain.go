package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}

	return false
}

// Title returns the capitalized difficulty used in quiz names, e.g. "Easy".
func (d Difficulty) Title() string {
	if d == "" {
		return ""
	}

	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// SessionMode selects how a session awards points.
type SessionMode string

const (
	ModeQuiz      SessionMode = "quiz"
	ModeFlashcard SessionMode = "flashcard"
)

func (m SessionMode) Valid() bool {
	return m == ModeQuiz || m == ModeFlashcard
}

// GeneralCategory is recorded on attempts played without a category filter.
const GeneralCategory = "General Knowledge"

type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

type Question struct {
	ID            string     `json:"id" yaml:"id"`
	Text          string     `json:"question" yaml:"question"`
	Options       []Option   `json:"options" yaml:"options"`
	CorrectAnswer string     `json:"correctAnswer" yaml:"correct_answer"`
	Points        int        `json:"points" yaml:"points"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
	Category      string     `json:"category" yaml:"category"`
	Hint          string     `json:"hint,omitempty" yaml:"hint"`
}

// HasOption reports whether id names one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}

	return false
}

// Level is a progression tier. Unlocked is derived per user and never stored with the catalog.
type Level struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	Difficulty        Difficulty `json:"difficulty"`
	RequiredScore     int        `json:"requiredScore"`
	RequiredQuizzes   int        `json:"requiredQuizzes"`
	QuestionsPerQuiz  int        `json:"questionsPerQuiz"`
	TimePerQuestion   int        `json:"timePerQuestion"`
	PointsPerQuestion int        `json:"pointsPerQuestion"`
	Unlocked          bool       `json:"unlocked"`
	Badge             string     `json:"badge"`
	Description       string     `json:"description"`
}

// QuizAttempt is one completed session. LevelID is zero for attempts that were not played on a level.
type QuizAttempt struct {
	ID             string      `json:"id"`
	QuizID         string      `json:"quizId"`
	QuizName       string      `json:"quizName"`
	Category       string      `json:"category"`
	Score          int         `json:"score"`
	TotalQuestions int         `json:"totalQuestions"`
	CorrectAnswers int         `json:"correctAnswers"`
	Date           time.Time   `json:"date"`
	TimeTaken      int         `json:"timeTaken"`
	LevelID        int         `json:"levelId,omitempty"`
	Difficulty     Difficulty  `json:"difficulty,omitempty"`
	Mode           SessionMode `json:"mode,omitempty"`
}

type BestScore struct {
	Score    int       `json:"score"`
	QuizName string    `json:"quizName"`
	Date     time.Time `json:"date"`
}

// UserProfile aggregates a user's attempt history, newest attempt first.
type UserProfile struct {
	ID                string               `json:"id"`
	Username          string               `json:"username"`
	Email             string               `json:"email"`
	JoinDate          time.Time            `json:"joinDate"`
	TotalQuizzesTaken int                  `json:"totalQuizzesTaken"`
	AverageScore      int                  `json:"averageScore"`
	QuizHistory       []QuizAttempt        `json:"quizHistory"`
	BestScores        map[string]BestScore `json:"bestScores"`
}

type LevelProgress struct {
	CurrentLevel    int             `json:"currentLevel"`
	TotalExperience decimal.Decimal `json:"totalExperience"`
	UnlockedLevels  []int           `json:"unlockedLevels"`
}

// IsUnlocked reports whether level id is in the unlocked set.
func (p LevelProgress) IsUnlocked(id int) bool {
	for _, u := range p.UnlockedLevels {
		if u == id {
			return true
		}
	}

	return false
}

type LeaderboardEntry struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	TotalScore   int       `json:"totalScore"`
	TotalQuizzes int       `json:"totalQuizzes"`
	AverageScore int       `json:"averageScore"`
	Accuracy     int       `json:"accuracy"`
	BestScore    int       `json:"bestScore"`
	LastActivity time.Time `json:"lastActivity"`
	Categories   []string  `json:"categories"`
}

// LeaderboardFilters narrows the attempts that count toward an entry. Empty fields match everything.
type LeaderboardFilters struct {
	Category   string     `json:"category,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

func (f LeaderboardFilters) IsZero() bool {
	return f.Category == "" && f.Difficulty == ""
}

type WrongAnswer struct {
	Question       Question `json:"question"`
	SelectedAnswer string   `json:"selectedAnswer"`
	CorrectAnswer  string   `json:"correctAnswer"`
}
