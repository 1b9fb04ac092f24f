package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/profile"
)

const (
	serviceName = "trivia.v1.TriviaService"
	codecName   = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries plain Go structs over gRPC.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

type (
	GetLeaderboardRequest struct {
		Category   string            `json:"category,omitempty"`
		Difficulty domain.Difficulty `json:"difficulty,omitempty"`
		Limit      int               `json:"limit,omitempty"`
	}

	GetLeaderboardResponse struct {
		Entries []RankedEntry `json:"entries"`
	}

	GetProfileRequest struct {
		UserID string `json:"userId"`
	}

	GetProfileResponse struct {
		Profile domain.UserProfile `json:"profile"`
		Stats   profile.Stats      `json:"stats"`
	}

	GetLevelProgressRequest struct {
		UserID string `json:"userId"`
	}

	GetLevelProgressResponse struct {
		Progress domain.LevelProgress `json:"progress"`
		Current  domain.Level         `json:"current"`
		Levels   []domain.Level       `json:"levels"`
	}
)

// TriviaServer is the read side of the quiz exposed over gRPC.
type TriviaServer interface {
	GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error)
	GetProfile(ctx context.Context, req *GetProfileRequest) (*GetProfileResponse, error)
	GetLevelProgress(ctx context.Context, req *GetLevelProgressRequest) (*GetLevelProgressResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TriviaServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetLeaderboard", TriviaServer.GetLeaderboard),
		unary("GetProfile", TriviaServer.GetProfile),
		unary("GetLevelProgress", TriviaServer.GetLevelProgress),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trivia/v1/trivia.proto",
}

func unary[Req, Resp any](method string, call func(TriviaServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TriviaServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterGRPC registers the trivia service on s.
func (a *API) RegisterGRPC(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, a)
}

func (a *API) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	if req.Difficulty != "" && !req.Difficulty.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid difficulty: %q", req.Difficulty))
	}

	f := domain.LeaderboardFilters{
		Category:   req.Category,
		Difficulty: req.Difficulty,
	}

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if req.Limit > 0 {
		entries, err = a.lbs.Top(ctx, leaderboard.TopRequest{Limit: req.Limit, Filters: f})
	} else {
		entries, err = a.lbs.Leaderboard(ctx, f)
	}
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResponse{Entries: rankedEntries(entries)}, nil
}

func (a *API) GetProfile(ctx context.Context, req *GetProfileRequest) (*GetProfileResponse, error) {
	p, err := a.ps.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	st, err := a.ps.Stats(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return &GetProfileResponse{Profile: p, Stats: st}, nil
}

func (a *API) GetLevelProgress(ctx context.Context, req *GetLevelProgressRequest) (*GetLevelProgressResponse, error) {
	p, err := a.lvs.Progress(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	cur, err := a.lvs.CurrentLevel(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	ls, err := a.lvs.Levels(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return &GetLevelProgressResponse{Progress: p, Current: cur, Levels: ls}, nil
}

// Client calls TriviaService on a remote server.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	out := new(GetLeaderboardResponse)
	if err := c.invoke(ctx, "GetLeaderboard", req, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) GetProfile(ctx context.Context, req *GetProfileRequest) (*GetProfileResponse, error) {
	out := new(GetProfileResponse)
	if err := c.invoke(ctx, "GetProfile", req, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) GetLevelProgress(ctx context.Context, req *GetLevelProgressRequest) (*GetLevelProgressResponse, error) {
	out := new(GetLevelProgressResponse)
	if err := c.invoke(ctx, "GetLevelProgress", req, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return errors.FromGRPC(err)
	}

	return nil
}
