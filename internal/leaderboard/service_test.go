package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/store"
	redisstore "github.com/victornm/trivia/internal/store/redis"
	"github.com/victornm/trivia/internal/store/storetest"
)

func TestService_Upsert(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 80, 4, 5, 1))))
	require.NoError(t, s.Upsert(ctx, user("u2", attempt("Science", 90, 4, 5, 1))))

	entries, err := s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u1"}, ids(entries))

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 80, 4, 5, 1), attempt("History", 70, 3, 5, 2))))

	entries, err = s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(entries), "a replaced profile is ranked with its new history")
	assert.Equal(t, 150, entries[0].TotalScore)
}

func TestService_Leaderboard_Filtered(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 80, 4, 5, 1), attempt("History", 100, 5, 5, 2))))
	require.NoError(t, s.Upsert(ctx, user("u2", attempt("History", 60, 3, 5, 1))))

	entries, err := s.Leaderboard(ctx, domain.LeaderboardFilters{Category: "History"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(entries))
	assert.Equal(t, 100, entries[0].TotalScore)

	rank, err := s.UserRank(ctx, leaderboard.UserRankRequest{UserID: "u2", Filters: domain.LeaderboardFilters{Category: "Science"}})
	require.NoError(t, err)
	assert.Equal(t, -1, rank)
}

func TestService_Leaderboard_RegeneratesMissingCache(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := makeService(t, withStore(kv))

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 80, 4, 5, 1))))
	require.NoError(t, kv.Delete(ctx, store.Keys{}.Leaderboard()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := s.Leaderboard(ctx, domain.LeaderboardFilters{})
			assert.NoError(t, err)
			assert.Equal(t, []string{"u1"}, ids(entries))
		}()
	}
	wg.Wait()

	_, err := kv.Get(ctx, store.Keys{}.Leaderboard())
	require.NoError(t, err, "the regenerated leaderboard should be cached")
}

func TestService_Leaderboard_RegenerationKeepsNewerCache(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := makeService(t, withStore(kv))

	history := []domain.QuizAttempt{attempt("Science", 80, 4, 5, 0)}
	require.NoError(t, s.Upsert(ctx, user("u1", history...)))

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		require.NoError(t, kv.Delete(ctx, store.Keys{}.Leaderboard()))
		history = append(history, attempt("Science", 80, 4, 5, i))
		p := user("u1", history...)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Leaderboard(ctx, domain.LeaderboardFilters{})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, p))
		}()
		wg.Wait()

		var cached []domain.LeaderboardEntry
		require.NoError(t, store.GetJSON(ctx, kv, store.Keys{}.Leaderboard(), &cached))
		require.Len(t, cached, 1)
		require.Equal(t, i+1, cached[0].TotalQuizzes, "round %d", i)
	}
}

func TestService_AttemptEventsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb), withStore(store.NewMemory()))

	var history []domain.QuizAttempt
	for i := 1; i <= 10; i++ {
		history = append(history, attempt("Science", 80, 4, 5, i))
		eb.Publish(ctx, domain.EventAttemptRecorded{Profile: user("u1", history...)})
	}
	eb.Stop()

	entries, err := s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 10, entries[0].TotalQuizzes, "an older snapshot must not replace a newer one")
	assert.Equal(t, 800, entries[0].TotalScore)

	// A direct upsert is authoritative, e.g. after a profile reset.
	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 50, 2, 5, 1))))
	entries, err = s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, entries[0].TotalQuizzes)
}

func TestService_UserRankAndTop(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	for i, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.Upsert(ctx, user(id, attempt("Science", 50+i*10, 3, 5, 1))))
	}

	rank, err := s.UserRank(ctx, leaderboard.UserRankRequest{UserID: "u3"})
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = s.UserRank(ctx, leaderboard.UserRankRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	rank, err = s.UserRank(ctx, leaderboard.UserRankRequest{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, -1, rank)

	top, err := s.Top(ctx, leaderboard.TopRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2"}, ids(top))

	top, err = s.Top(ctx, leaderboard.TopRequest{})
	require.NoError(t, err)
	assert.Len(t, top, 3)
}

func TestService_Categories(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	cs, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs)

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Sports", 80, 4, 5, 1), attempt("History", 80, 4, 5, 2))))
	require.NoError(t, s.Upsert(ctx, user("u2", attempt("Science", 80, 4, 5, 1), attempt("History", 80, 4, 5, 2))))

	cs, err = s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"History", "Science", "Sports"}, cs)
}

func TestService_SeedSample(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	require.NoError(t, s.SeedSample(ctx))
	entries, err := s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.Upsert(ctx, user("u1", attempt("Science", 80, 4, 5, 1))))
	require.NoError(t, s.SeedSample(ctx), "seeding a populated collection is a no-op")

	entries, err = s.Leaderboard(ctx, domain.LeaderboardFilters{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestService_PersistenceFailure(t *testing.T) {
	kv := storetest.NewFaulty(store.NewMemory())
	s := makeService(t, withStore(kv))

	kv.FailWrites(true)
	err := s.Upsert(context.Background(), user("u1", attempt("Science", 80, 4, 5, 1)))
	require.True(t, errors.HasCode(err, errors.CodeUnavailable))

	kv.FailReads(true)
	_, err = s.Leaderboard(context.Background(), domain.LeaderboardFilters{})
	require.True(t, errors.HasCode(err, errors.CodeUnavailable))
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventAttemptRecorded
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish leaderboard.updated after receiving attempt.recorded": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventAttemptRecorded{
						{Profile: user("u1", attempt("Science", 80, 4, 5, 1))},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, []string{"u1"}, ids(out.publishedEvents[0].Entries))
			},
		},

		"should publish one event per recorded attempt": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventAttemptRecorded{
						{Profile: user("u1", attempt("Science", 80, 4, 5, 1))},
						{Profile: user("u2", attempt("Science", 90, 4, 5, 1))},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus(event.WithPoolSize(1))

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			makeService(t, withEventBus(eb))

			for _, e := range in.receivedEvents {
				eb.Publish(context.Background(), e)
			}

			// Handlers publish in turn; wait until the cascade settles.
			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(out.publishedEvents) == len(in.receivedEvents)
			}, time.Second, 5*time.Millisecond)
			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Store:    redisstore.New(redisstore.Config{Redis: rc}),
		Now:      func() time.Time { return day },
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withStore(kv store.KV) options {
	return func(c *leaderboard.Config) {
		c.Store = kv
	}
}
