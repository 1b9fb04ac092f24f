package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/trivia/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	RankedEntry struct {
		Rank int `json:"rank"`
		domain.LeaderboardEntry
	}

	LevelAdvanced struct {
		From domain.Level `json:"from"`
		To   domain.Level `json:"to"`
	}
)

func newNotification(event string, data any) Notification {
	return Notification{
		Event: event,
		Data:  data,
	}
}

func rankedEntries(entries []domain.LeaderboardEntry) []RankedEntry {
	out := make([]RankedEntry, 0, len(entries))
	for i, e := range entries {
		out = append(out, RankedEntry{
			Rank:             i + 1,
			LeaderboardEntry: e,
		})
	}

	return out
}

// PublishLeaderboardUpdated notifies every ranked user of the new leaderboard.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	if a.redis == nil {
		return nil
	}

	data := rankedEntries(e.Entries)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.ID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) PublishLevelAdvanced(ctx context.Context, e domain.EventLevelAdvanced) error {
	if a.redis == nil {
		return nil
	}

	return a.publishNotification(ctx, e.UserID, e.Name(), LevelAdvanced{
		From: e.From,
		To:   e.To,
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	b, err := json.Marshal(newNotification(event, data))
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, UserChannel(a.prefix, user), b).Err()
}

// UserChannel is the pub/sub channel carrying a user's notifications.
func UserChannel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}
