package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/quiz"
	"github.com/victornm/trivia/internal/server"
	"github.com/victornm/trivia/internal/session"
)

type playOptions struct {
	user       string
	mode       string
	levelID    int
	difficulty string
	category   string
}

func newPlayCmd(configPath *string) *cobra.Command {
	var (
		o       playOptions
		noTimer bool
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c.Quiz.ServerTimer = !noTimer

			s, err := server.Init(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer s.Close()

			return newPlayer(s, os.Stdin, cmd.OutOrStdout()).play(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.user, "user", "", "user id, defaults to the local player")
	f.StringVar(&o.mode, "mode", string(domain.ModeQuiz), "quiz or flashcard")
	f.IntVar(&o.levelID, "level", 0, "level to play, asks when neither --level nor --difficulty is set")
	f.StringVar(&o.difficulty, "difficulty", "", "play a difficulty instead of a level: easy, medium or hard")
	f.StringVar(&o.category, "category", "", "only draw questions from this category")
	f.BoolVar(&noTimer, "no-timer", false, "disable the per question countdown")
	return cmd
}

type player struct {
	s      *server.Server
	lines  <-chan string
	out    io.Writer
	timeUp chan session.Snapshot
}

func newPlayer(s *server.Server, in io.Reader, out io.Writer) *player {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	return &player{
		s:      s,
		lines:  lines,
		out:    out,
		timeUp: make(chan session.Snapshot, 1),
	}
}

func (p *player) play(ctx context.Context, o playOptions) error {
	qs := p.s.Quiz()

	snap, err := qs.Start(ctx, quiz.StartRequest{
		UserID: o.user,
		OnTimeUp: func(s session.Snapshot) {
			select {
			case p.timeUp <- s:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = qs.End(snap.ID) }()

	m, err := qs.Session(snap.ID)
	if err != nil {
		return err
	}

	if _, err := m.SelectMode(domain.SessionMode(o.mode)); err != nil {
		return err
	}

	snap, err = p.start(ctx, m, o)
	if err != nil {
		return err
	}

	for snap.Phase == session.PhaseAnswering || snap.Phase == session.PhaseSubmitted {
		if snap.Phase == session.PhaseSubmitted {
			snap = m.Next()
			continue
		}

		if snap, err = p.ask(ctx, m, snap); err != nil {
			return err
		}
	}

	p.results(snap)
	m.Finish()
	return nil
}

func (p *player) start(ctx context.Context, m *session.Machine, o playOptions) (session.Snapshot, error) {
	qs := p.s.Quiz()

	if o.difficulty != "" {
		return qs.StartDifficulty(ctx, quiz.StartDifficultyRequest{
			SessionID:  m.ID(),
			Difficulty: domain.Difficulty(o.difficulty),
			Category:   o.category,
		})
	}

	levelID := o.levelID
	if levelID == 0 {
		ls, err := p.s.Level().Levels(ctx, m.UserID())
		if err != nil {
			return session.Snapshot{}, err
		}

		p.printf("Levels:\n")
		for _, l := range ls {
			lock := "locked"
			if l.Unlocked {
				lock = "unlocked"
			}
			p.printf("  %d) %s %s (%s, %s)\n", l.ID, l.Badge, l.Name, l.Difficulty, lock)
		}

		p.printf("Pick a level: ")
		line, err := p.read()
		if err != nil {
			return session.Snapshot{}, err
		}

		if levelID, err = strconv.Atoi(line); err != nil {
			return session.Snapshot{}, fmt.Errorf("play: level %q is not a number", line)
		}
	}

	return qs.StartLevel(ctx, quiz.StartLevelRequest{
		SessionID: m.ID(),
		LevelID:   levelID,
		Category:  o.category,
	})
}

// ask shows the current question and grades the player's reply.
func (p *player) ask(ctx context.Context, m *session.Machine, snap session.Snapshot) (session.Snapshot, error) {
	q := snap.Question

	p.printf("\nQuestion %d/%d  [%s, %d pts, streak %d, x%.1f]\n", snap.Index+1, snap.Total, q.Category, q.Points, snap.Streak, snap.Multiplier)
	p.printf("%s\n", q.Text)

	if snap.Mode == domain.ModeFlashcard {
		return p.flashcard(ctx, m, q)
	}

	for i, o := range q.Options {
		p.printf("  %d) %s\n", i+1, o.Text)
	}
	if snap.TimeLimit > 0 {
		p.printf("You have %d seconds. ", snap.TimeLimit)
	}
	p.printf("Answer: ")

	for {
		select {
		case s := <-p.timeUp:
			// Expiries that lost the race against an answer leave the question untouched.
			if s.Token > snap.Token || (s.Token == snap.Token && s.Phase != session.PhaseAnswering) {
				p.printf("\nTime's up! The answer was %s.\n", optionText(q, q.CorrectAnswer))
				return s, nil
			}
		case line, ok := <-p.lines:
			if !ok {
				return snap, io.ErrUnexpectedEOF
			}

			if m.Snapshot().Token != snap.Token {
				continue
			}

			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(q.Options) {
				p.printf("Pick 1 to %d: ", len(q.Options))
				continue
			}

			if _, err := m.Answer(q.Options[n-1].ID); err != nil {
				return snap, err
			}

			s := m.Submit(ctx)
			p.feedback(s, q)
			return s, nil
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (p *player) flashcard(ctx context.Context, m *session.Machine, q *domain.Question) (session.Snapshot, error) {
	p.printf("Press enter to reveal the answer.")
	if _, err := p.read(); err != nil {
		return session.Snapshot{}, err
	}

	p.printf("Answer: %s\n", optionText(q, q.CorrectAnswer))
	if q.Hint != "" {
		p.printf("Hint: %s\n", q.Hint)
	}
	p.printf("Did you know it? [y/n] ")

	line, err := p.read()
	if err != nil {
		return session.Snapshot{}, err
	}

	s := m.SelfGrade(ctx, strings.HasPrefix(strings.ToLower(line), "y"))
	p.feedback(s, q)
	return s, nil
}

func (p *player) feedback(s session.Snapshot, q *domain.Question) {
	if s.LastAward > 0 {
		p.printf("Correct! +%d points\n", s.LastAward)
		return
	}

	p.printf("Wrong. The answer was %s.\n", optionText(q, q.CorrectAnswer))
}

func (p *player) results(s session.Snapshot) {
	p.printf("\nResults: %d/%d correct, %d points\n", s.Correct, s.Total, s.Score)

	if o := s.Outcome; o != nil {
		switch {
		case o.Error != "":
			p.printf("Could not save your attempt: %s\n", o.Error)
		case o.Saved:
			p.printf("Saved with a score of %d%%.\n", o.Attempt.Score)
		}

		if o.Advancement != nil {
			p.printf("%s\n", o.Advancement.Message)
		}
	}

	if len(s.WrongAnswers) > 0 {
		p.printf("\nReview:\n")
		for _, w := range s.WrongAnswers {
			w := w
			picked := "no answer"
			if w.SelectedAnswer != "" {
				picked = optionText(&w.Question, w.SelectedAnswer)
			}
			p.printf("  %s\n    you: %s, correct: %s\n", w.Question.Text, picked, optionText(&w.Question, w.CorrectAnswer))
		}
	}
}

func (p *player) read() (string, error) {
	line, ok := <-p.lines
	if !ok {
		return "", io.ErrUnexpectedEOF
	}

	return line, nil
}

func (p *player) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func optionText(q *domain.Question, id string) string {
	for _, o := range q.Options {
		if o.ID == id {
			return o.Text
		}
	}

	return id
}
