package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
)

// Metrics counts gameplay events from the event bus.
type Metrics struct {
	AnswersGraded      *prometheus.CounterVec
	SessionsCompleted  *prometheus.CounterVec
	AttemptsRecorded   *prometheus.CounterVec
	LevelAdvancements  *prometheus.CounterVec
	LeaderboardUpdates prometheus.Counter
	LeaderboardEntries prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnswersGraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "answers_graded_total",
			Help:      "Graded answers by correctness and timeout.",
		}, []string{"correct", "timed_out"}),
		SessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "sessions_completed_total",
			Help:      "Completed sessions by mode.",
		}, []string{"mode"}),
		AttemptsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "attempts_recorded_total",
			Help:      "Attempts saved to profiles by difficulty.",
		}, []string{"difficulty"}),
		LevelAdvancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "level_advancements_total",
			Help:      "Level advancements by the level reached.",
		}, []string{"level"}),
		LeaderboardUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "leaderboard_updates_total",
			Help:      "Leaderboard regenerations.",
		}),
		LeaderboardEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trivia",
			Name:      "leaderboard_entries",
			Help:      "Ranked users on the latest leaderboard.",
		}),
	}

	reg.MustRegister(
		m.AnswersGraded,
		m.SessionsCompleted,
		m.AttemptsRecorded,
		m.LevelAdvancements,
		m.LeaderboardUpdates,
		m.LeaderboardEntries,
	)

	return m
}

// Subscribe feeds the counters from the bus.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameAnswerGraded, func(_ context.Context, e event.Event) error {
		ev := e.(domain.EventAnswerGraded)
		m.AnswersGraded.WithLabelValues(strconv.FormatBool(ev.Correct), strconv.FormatBool(ev.TimedOut)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionCompleted, func(_ context.Context, e event.Event) error {
		m.SessionsCompleted.WithLabelValues(string(e.(domain.EventSessionCompleted).Attempt.Mode)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAttemptRecorded, func(_ context.Context, e event.Event) error {
		d := string(e.(domain.EventAttemptRecorded).Attempt.Difficulty)
		if d == "" {
			d = "unknown"
		}
		m.AttemptsRecorded.WithLabelValues(d).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameLevelAdvanced, func(_ context.Context, e event.Event) error {
		m.LevelAdvancements.WithLabelValues(strconv.Itoa(e.(domain.EventLevelAdvanced).To.ID)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
		m.LeaderboardUpdates.Inc()
		m.LeaderboardEntries.Set(float64(len(e.(domain.EventLeaderboardUpdated).Entries)))
		return nil
	})
}
