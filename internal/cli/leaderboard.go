package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/server"
)

type leaderboardOptions struct {
	addr       string
	category   string
	difficulty string
	limit      int
}

func newLeaderboardCmd(configPath *string) *cobra.Command {
	var o leaderboardOptions

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboard from a running server or straight from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := &api.GetLeaderboardRequest{
				Category:   o.category,
				Difficulty: domain.Difficulty(o.difficulty),
				Limit:      o.limit,
			}

			if o.addr != "" {
				entries, err := remoteLeaderboard(ctx, o.addr, req)
				if err != nil {
					return err
				}
				return printLeaderboard(cmd.OutOrStdout(), entries)
			}

			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			s, err := server.Init(ctx, c)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := localLeaderboard(ctx, s.Leaderboard(), req)
			if err != nil {
				return err
			}
			return printLeaderboard(cmd.OutOrStdout(), entries)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "", "gRPC address of a running server, e.g. localhost:9090")
	f.StringVar(&o.category, "category", "", "only count attempts in this category")
	f.StringVar(&o.difficulty, "difficulty", "", "only count attempts at this difficulty")
	f.IntVar(&o.limit, "limit", 10, "number of entries to print")
	return cmd
}

func remoteLeaderboard(ctx context.Context, addr string, req *api.GetLeaderboardRequest) ([]api.RankedEntry, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: dial %s: %w", addr, err)
	}
	defer cc.Close()

	resp, err := api.NewClient(cc).GetLeaderboard(ctx, req)
	if err != nil {
		return nil, err
	}

	return resp.Entries, nil
}

func localLeaderboard(ctx context.Context, lbs *leaderboard.Service, req *api.GetLeaderboardRequest) ([]api.RankedEntry, error) {
	entries, err := lbs.Top(ctx, leaderboard.TopRequest{
		Limit: req.Limit,
		Filters: domain.LeaderboardFilters{
			Category:   req.Category,
			Difficulty: req.Difficulty,
		},
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]api.RankedEntry, 0, len(entries))
	for i, e := range entries {
		ranked = append(ranked, api.RankedEntry{Rank: i + 1, LeaderboardEntry: e})
	}

	return ranked, nil
}

func printLeaderboard(w io.Writer, entries []api.RankedEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No ranked players yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tTOTAL\tQUIZZES\tAVG\tACCURACY\tBEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d%%\t%d%%\t%d\n", e.Rank, e.Username, e.TotalScore, e.TotalQuizzes, e.AverageScore, e.Accuracy, e.BestScore)
	}

	return tw.Flush()
}
