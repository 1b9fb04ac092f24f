package level_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/level"
	"github.com/victornm/trivia/internal/store"
	"github.com/victornm/trivia/internal/store/storetest"
)

var day = time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)

func TestDefaultCatalog(t *testing.T) {
	c := level.DefaultCatalog()
	require.Len(t, c, 7)

	for i, l := range c {
		assert.Equal(t, i+1, l.ID, "ids are contiguous from 1")
		assert.False(t, l.Unlocked)
	}

	_, ok := c.Next(7)
	assert.False(t, ok, "the last level has no successor")

	next, ok := c.Next(1)
	require.True(t, ok)
	assert.Equal(t, "Explorer", next.Name)
}

func TestService_CheckAdvancement(t *testing.T) {
	type (
		inputs struct {
			progress *domain.LevelProgress
			req      level.CheckAdvancementRequest
		}

		outputs struct {
			adv    level.Advancement
			stored domain.LevelProgress
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"average exactly at threshold advances": {
			arrange: func() inputs {
				return inputs{
					progress: progressAt(5, 5),
					req: level.CheckAdvancementRequest{
						Score:   72,
						LevelID: 5,
						History: []domain.QuizAttempt{at(5, 72, 2), at(5, 68, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.adv.Advanced)
				require.NotNil(t, out.adv.NewLevel)
				assert.Equal(t, 6, out.adv.NewLevel.ID)
				assert.True(t, out.adv.NewLevel.Unlocked)
				assert.Equal(t, "Congratulations! You've advanced to Master level!", out.adv.Message)
				assert.Equal(t, 6, out.stored.CurrentLevel)
				assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, out.stored.UnlockedLevels)
				assert.Equal(t, "1080", out.stored.TotalExperience.String(), "72 * 15 points")
			},
		},

		"average below threshold does not advance": {
			arrange: func() inputs {
				return inputs{
					progress: progressAt(5, 5),
					req: level.CheckAdvancementRequest{
						Score:   72,
						LevelID: 5,
						History: []domain.QuizAttempt{at(5, 72, 2), at(5, 60, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced)
				assert.Nil(t, out.adv.NewLevel)
				assert.Equal(t, "Improve your average by 4.0% to advance.", out.adv.Message)
				assert.Equal(t, 5, out.stored.CurrentLevel)
				assert.Equal(t, "10.8", out.stored.TotalExperience.String(), "72 * 15 / 100")
			},
		},

		"too few attempts asks for more quizzes": {
			arrange: func() inputs {
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   100,
						LevelID: 1,
						History: []domain.QuizAttempt{at(1, 100, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced)
				assert.Equal(t, "Complete 1 more quiz to advance.", out.adv.Message)
				assert.Equal(t, "5", out.stored.TotalExperience.String())
			},
		},

		"quizzes remaining takes priority over the score gap": {
			arrange: func() inputs {
				return inputs{
					progress: progressAt(2, 2),
					req: level.CheckAdvancementRequest{
						Score:   10,
						LevelID: 2,
						History: []domain.QuizAttempt{at(2, 10, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, "Complete 2 more quizzes to advance.", out.adv.Message)
			},
		},

		"only the most recent attempts count": {
			arrange: func() inputs {
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   100,
						LevelID: 1,
						History: []domain.QuizAttempt{at(1, 100, 1), at(1, 100, 3), at(1, 10, 2)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced, "the window holds the attempts at hours 3 and 2")
				assert.Equal(t, "Improve your average by 5.0% to advance.", out.adv.Message)
			},
		},

		"attempts of other levels are ignored": {
			arrange: func() inputs {
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   100,
						LevelID: 1,
						History: []domain.QuizAttempt{at(1, 100, 3), at(2, 100, 2)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced)
				assert.Equal(t, "Complete 1 more quiz to advance.", out.adv.Message)
			},
		},

		"legacy generic attempts count toward the current level": {
			arrange: func() inputs {
				legacy := func(score, d int) domain.QuizAttempt {
					return domain.QuizAttempt{
						QuizName: "General Knowledge Quiz (Easy)",
						Category: domain.GeneralCategory,
						Score:    score,
						Date:     day.Add(time.Duration(d) * time.Hour),
					}
				}
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   80,
						LevelID: 1,
						History: []domain.QuizAttempt{legacy(80, 2), legacy(60, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.adv.Advanced)
				assert.Equal(t, 2, out.stored.CurrentLevel)
			},
		},

		"legacy attempts naming the level count": {
			arrange: func() inputs {
				named := domain.QuizAttempt{QuizName: "Beginner Quiz (Easy)", Category: "Science", Score: 90, Date: day}
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   90,
						LevelID: 1,
						History: []domain.QuizAttempt{named, named},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.adv.Advanced)
			},
		},

		"meeting the last level requirements caps progression": {
			arrange: func() inputs {
				return inputs{
					progress: progressAt(7, 7),
					req: level.CheckAdvancementRequest{
						Score:   100,
						LevelID: 7,
						History: []domain.QuizAttempt{at(7, 100, 5), at(7, 100, 4), at(7, 100, 3), at(7, 100, 2), at(7, 100, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced)
				assert.Equal(t, "You have reached the highest level!", out.adv.Message)
				assert.Equal(t, 7, out.stored.CurrentLevel)
				assert.Equal(t, "20", out.stored.TotalExperience.String())
			},
		},

		"unknown level is a no-op": {
			arrange: func() inputs {
				return inputs{
					req: level.CheckAdvancementRequest{
						Score:   100,
						LevelID: 42,
						History: []domain.QuizAttempt{at(42, 100, 1)},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.adv.Advanced)
				assert.Empty(t, out.adv.Message)
				assert.Equal(t, 1, out.stored.CurrentLevel)
				assert.True(t, out.stored.TotalExperience.IsZero())
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			in, out := tt.arrange(), outputs{}

			kv := store.NewMemory()
			if in.progress != nil {
				require.NoError(t, store.SetJSON(ctx, kv, store.Keys{}.Progress("u1"), in.progress))
			}

			s := makeService(t, withStore(kv))
			in.req.UserID = "u1"

			var err error
			out.adv, err = s.CheckAdvancement(ctx, in.req)
			require.NoError(t, err)

			out.stored, err = s.Progress(ctx, "u1")
			require.NoError(t, err)

			tt.assert(t, out)
		})
	}
}

func TestService_CheckAdvancement_PublishesLevelAdvanced(t *testing.T) {
	eb := event.NewBus()

	var (
		mu       sync.Mutex
		received []domain.EventLevelAdvanced
	)
	eb.Subscribe(domain.EventNameLevelAdvanced, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received = append(received, e.(domain.EventLevelAdvanced))
		mu.Unlock()
		return nil
	})

	s := makeService(t, withEventBus(eb))
	_, err := s.CheckAdvancement(context.Background(), level.CheckAdvancementRequest{
		UserID:  "u1",
		Score:   100,
		LevelID: 1,
		History: []domain.QuizAttempt{at(1, 100, 2), at(1, 100, 1)},
	})
	require.NoError(t, err)
	eb.Stop()

	require.Len(t, received, 1)
	assert.Equal(t, "u1", received[0].UserID)
	assert.Equal(t, 1, received[0].From.ID)
	assert.Equal(t, 2, received[0].To.ID)
}

func TestService_UnlockedSetOnlyGrows(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	p, err := s.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, p.UnlockedLevels)

	p, err = s.Unlock(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, p.UnlockedLevels)

	p, err = s.Unlock(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, p.UnlockedLevels)

	p, err = s.SetCurrentLevel(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.CurrentLevel)

	p, err = s.SetCurrentLevel(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, p.UnlockedLevels, "switching levels never locks one")

	_, err = s.Unlock(ctx, "u1", 99)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestService_SetCurrentLevel_Locked(t *testing.T) {
	s := makeService(t)

	_, err := s.SetCurrentLevel(context.Background(), "u1", 4)
	require.True(t, errors.HasCode(err, errors.CodeFailedPrecondition))

	_, err = s.SetCurrentLevel(context.Background(), "u1", 0)
	require.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestService_Levels(t *testing.T) {
	ctx := context.Background()

	s := makeService(t, withUnlockAll())
	levels, err := s.Levels(ctx, "u1")
	require.NoError(t, err)
	for _, l := range levels {
		assert.True(t, l.Unlocked, "level %d", l.ID)
	}

	s = makeService(t)
	levels, err = s.Levels(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, levels[0].Unlocked)
	assert.False(t, levels[1].Unlocked)

	cur, err := s.CurrentLevel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Beginner", cur.Name)
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	_, err := s.CheckAdvancement(ctx, level.CheckAdvancementRequest{
		UserID:  "u1",
		Score:   100,
		LevelID: 1,
		History: []domain.QuizAttempt{at(1, 100, 2), at(1, 100, 1)},
	})
	require.NoError(t, err)

	p, err := s.Reset(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentLevel)
	assert.Equal(t, []int{1}, p.UnlockedLevels)
	assert.True(t, p.TotalExperience.IsZero())
}

func TestService_PersistenceFailure(t *testing.T) {
	kv := storetest.NewFaulty(store.NewMemory())
	s := makeService(t, withStore(kv))

	_, err := s.Progress(context.Background(), "u1")
	require.NoError(t, err)

	kv.FailWrites(true)
	_, err = s.CheckAdvancement(context.Background(), level.CheckAdvancementRequest{
		UserID:  "u1",
		Score:   100,
		LevelID: 1,
		History: []domain.QuizAttempt{at(1, 100, 2), at(1, 100, 1)},
	})
	require.True(t, errors.HasCode(err, errors.CodeUnavailable))

	kv.FailWrites(false)
	p, err := s.Progress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentLevel, "a failed save leaves stored progress untouched")
}

func at(levelID, score, hour int) domain.QuizAttempt {
	return domain.QuizAttempt{
		QuizID:   "level",
		QuizName: "Level Quiz",
		Category: "Science",
		Score:    score,
		LevelID:  levelID,
		Date:     day.Add(time.Duration(hour) * time.Hour),
	}
}

func progressAt(current, maxUnlocked int) *domain.LevelProgress {
	p := &domain.LevelProgress{CurrentLevel: current}
	for i := 1; i <= maxUnlocked; i++ {
		p.UnlockedLevels = append(p.UnlockedLevels, i)
	}
	return p
}

func makeService(t *testing.T, opts ...options) *level.Service {
	t.Helper()

	c := level.Config{
		EventBus: event.NewBus(),
		Store:    store.NewMemory(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return level.NewService(c)
}

type options func(c *level.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *level.Config) {
		c.EventBus = eb
	}
}

func withStore(kv store.KV) options {
	return func(c *level.Config) {
		c.Store = kv
	}
}

func withUnlockAll() options {
	return func(c *level.Config) {
		c.UnlockAll = true
	}
}
