package domain

const (
	EventNameAnswerGraded       = "answer.graded"
	EventNameSessionCompleted   = "session.completed"
	EventNameAttemptRecorded    = "attempt.recorded"
	EventNameLevelAdvanced      = "level.advanced"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventAnswerGraded is emitted once per graded question, including timeouts.
type EventAnswerGraded struct {
	SessionID  string
	UserID     string
	QuestionID string
	Selected   string
	Correct    bool
	TimedOut   bool
	Awarded    int
	Streak     int
}

func (EventAnswerGraded) Name() string { return EventNameAnswerGraded }

type EventSessionCompleted struct {
	SessionID string
	UserID    string
	Attempt   QuizAttempt
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventAttemptRecorded struct {
	Profile UserProfile
	Attempt QuizAttempt
}

func (EventAttemptRecorded) Name() string { return EventNameAttemptRecorded }

type EventLevelAdvanced struct {
	UserID string
	From   Level
	To     Level
}

func (EventLevelAdvanced) Name() string { return EventNameLevelAdvanced }

type EventLeaderboardUpdated struct {
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
