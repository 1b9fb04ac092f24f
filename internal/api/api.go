package api

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/level"
	"github.com/victornm/trivia/internal/profile"
	"github.com/victornm/trivia/internal/questionbank"
	"github.com/victornm/trivia/internal/quiz"
)

type Config struct {
	EventBus    *event.Bus
	Quiz        *quiz.Service
	Profile     *profile.Service
	Level       *level.Service
	Leaderboard *leaderboard.Service
	Bank        *questionbank.Bank
	// Redis receives user notifications. Notifications are not published when nil.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// API exposes the quiz over HTTP, WebSocket and gRPC, and forwards domain events to
// subscribed clients.
type API struct {
	qs   *quiz.Service
	ps   *profile.Service
	lvs  *level.Service
	lbs  *leaderboard.Service
	bank *questionbank.Bank

	redis  Redis
	prefix string

	hub *hub
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		ps:     c.Profile,
		lvs:    c.Level,
		lbs:    c.Leaderboard,
		bank:   c.Bank,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		hub:    newHub(),
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventLeaderboardUpdated)
		if err := a.hub.broadcast(newNotification(ev.Name(), rankedEntries(ev.Entries))); err != nil {
			slog.ErrorContext(ctx, "api: broadcast leaderboard failed", "error", err)
		}

		return a.PublishLeaderboardUpdated(ctx, ev)
	})

	c.EventBus.Subscribe(domain.EventNameLevelAdvanced, func(ctx context.Context, e event.Event) error {
		return a.PublishLevelAdvanced(ctx, e.(domain.EventLevelAdvanced))
	})

	return a
}
