package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/profile"
	"github.com/victornm/trivia/internal/quiz"
	"github.com/victornm/trivia/internal/session"
)

// RegisterHTTP mounts the JSON API on r.
func (a *API) RegisterHTTP(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/api")

	ss := g.Group("/sessions")
	ss.POST("", a.startSession)
	ss.GET("/:id", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Snapshot(), nil
	}))
	ss.DELETE("/:id", a.endSession)
	ss.POST("/:id/mode", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		var req struct {
			Mode domain.SessionMode `json:"mode"`
		}
		if err := bind(c, &req); err != nil {
			return session.Snapshot{}, err
		}
		return m.SelectMode(req.Mode)
	}))
	ss.POST("/:id/level", a.selectLevel)
	ss.POST("/:id/difficulty", a.selectDifficulty)
	ss.POST("/:id/answer", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		var req struct {
			OptionID string `json:"optionId"`
		}
		if err := bind(c, &req); err != nil {
			return session.Snapshot{}, err
		}
		return m.Answer(req.OptionID)
	}))
	ss.POST("/:id/submit", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Submit(c.Request.Context()), nil
	}))
	ss.POST("/:id/grade", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		var req struct {
			Correct bool `json:"correct"`
		}
		if err := bind(c, &req); err != nil {
			return session.Snapshot{}, err
		}
		return m.SelfGrade(c.Request.Context(), req.Correct), nil
	}))
	ss.POST("/:id/timeup", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		var req struct {
			Token uint64 `json:"token"`
		}
		if err := bind(c, &req); err != nil {
			return session.Snapshot{}, err
		}
		return m.TimeUp(c.Request.Context(), req.Token), nil
	}))
	ss.POST("/:id/next", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Next(), nil
	}))
	ss.POST("/:id/restart", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Restart()
	}))
	ss.POST("/:id/change-level", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.ChangeLevel(), nil
	}))
	ss.POST("/:id/change-mode", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.ChangeMode(), nil
	}))
	ss.POST("/:id/review", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Review(), nil
	}))
	ss.POST("/:id/back-to-results", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.BackToResults(), nil
	}))
	ss.POST("/:id/finish", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.Finish(), nil
	}))
	ss.POST("/:id/retry-save", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.RetrySave(c.Request.Context()), nil
	}))
	ss.POST("/:id/pause", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.PauseTimer(), nil
	}))
	ss.POST("/:id/resume", a.withSession(func(c *gin.Context, m *session.Machine) (session.Snapshot, error) {
		return m.ResumeTimer(), nil
	}))

	us := g.Group("/users/:user")
	us.GET("/profile", a.getProfile)
	us.PATCH("/profile", a.updateProfile)
	us.DELETE("/profile", a.resetProfile)
	us.GET("/stats", a.getStats)
	us.GET("/history", a.getHistory)
	us.GET("/levels", a.getLevels)
	us.GET("/progress", a.getProgress)
	us.PUT("/progress/current", a.setCurrentLevel)
	us.DELETE("/progress", a.resetProgress)

	lb := g.Group("/leaderboard")
	lb.GET("", a.getLeaderboard)
	lb.GET("/rank/:user", a.getUserRank)
	lb.GET("/categories", a.getLeaderboardCategories)
	lb.GET("/stream", a.streamLeaderboard)

	g.GET("/questions/categories", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.bank.Categories())
	})
}

func (a *API) startSession(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	s, err := a.qs.Start(c.Request.Context(), quiz.StartRequest{UserID: req.UserID})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s)
}

func (a *API) endSession(c *gin.Context) {
	if err := a.qs.End(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) selectLevel(c *gin.Context) {
	var req struct {
		LevelID  int    `json:"levelId"`
		Category string `json:"category"`
	}
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	s, err := a.qs.StartLevel(c.Request.Context(), quiz.StartLevelRequest{
		SessionID: c.Param("id"),
		LevelID:   req.LevelID,
		Category:  req.Category,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s)
}

func (a *API) selectDifficulty(c *gin.Context) {
	var req struct {
		Difficulty domain.Difficulty `json:"difficulty"`
		Category   string            `json:"category"`
	}
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	s, err := a.qs.StartDifficulty(c.Request.Context(), quiz.StartDifficultyRequest{
		SessionID:  c.Param("id"),
		Difficulty: req.Difficulty,
		Category:   req.Category,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s)
}

func (a *API) withSession(f func(c *gin.Context, m *session.Machine) (session.Snapshot, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := a.qs.Session(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		s, err := f(c, m)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, s)
	}
}

func (a *API) getProfile(c *gin.Context) {
	p, err := a.ps.Get(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) updateProfile(c *gin.Context) {
	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
	}
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	p, err := a.ps.UpdateInfo(ctx, profile.UpdateInfoRequest{
		UserID:   c.Param("user"),
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	a.syncLeaderboard(c, p)
	c.JSON(http.StatusOK, p)
}

func (a *API) resetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := a.ps.Reset(ctx, c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	a.syncLeaderboard(c, p)
	c.JSON(http.StatusOK, p)
}

// syncLeaderboard pushes profile changes that were not made through a recorded attempt.
func (a *API) syncLeaderboard(c *gin.Context, p domain.UserProfile) {
	ctx := c.Request.Context()
	if err := a.lbs.Upsert(ctx, p); err != nil {
		slog.ErrorContext(ctx, "api: sync leaderboard failed", "user", p.ID, "error", err)
	}
}

func (a *API) getStats(c *gin.Context) {
	st, err := a.ps.Stats(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) getHistory(c *gin.Context) {
	h, err := a.ps.History(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h)
}

func (a *API) getLevels(c *gin.Context) {
	ls, err := a.lvs.Levels(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ls)
}

func (a *API) getProgress(c *gin.Context) {
	p, err := a.lvs.Progress(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) setCurrentLevel(c *gin.Context) {
	var req struct {
		LevelID int `json:"levelId"`
	}
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	p, err := a.lvs.SetCurrentLevel(c.Request.Context(), c.Param("user"), req.LevelID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) resetProgress(c *gin.Context) {
	p, err := a.lvs.Reset(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) getLeaderboard(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit: %q", s)))
			return
		}
		limit = n
	}

	f, err := filters(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var entries []domain.LeaderboardEntry
	if limit > 0 {
		entries, err = a.lbs.Top(c.Request.Context(), leaderboard.TopRequest{Limit: limit, Filters: f})
	} else {
		entries, err = a.lbs.Leaderboard(c.Request.Context(), f)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rankedEntries(entries))
}

func (a *API) getUserRank(c *gin.Context) {
	f, err := filters(c)
	if err != nil {
		writeError(c, err)
		return
	}

	rank, err := a.lbs.UserRank(c.Request.Context(), leaderboard.UserRankRequest{
		UserID:  c.Param("user"),
		Filters: f,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": c.Param("user"), "rank": rank})
}

func (a *API) getLeaderboardCategories(c *gin.Context) {
	cs, err := a.lbs.Categories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cs)
}

func filters(c *gin.Context) (domain.LeaderboardFilters, error) {
	f := domain.LeaderboardFilters{
		Category:   c.Query("category"),
		Difficulty: domain.Difficulty(c.Query("difficulty")),
	}

	if f.Difficulty != "" && !f.Difficulty.Valid() {
		return f, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid difficulty: %q", f.Difficulty))
	}

	return f, nil
}

// bind decodes an optional JSON body.
func bind(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}

	if err := c.ShouldBindJSON(v); err != nil {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err))
	}

	return nil
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
