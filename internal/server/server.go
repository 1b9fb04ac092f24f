package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/level"
	"github.com/victornm/trivia/internal/profile"
	"github.com/victornm/trivia/internal/questionbank"
	"github.com/victornm/trivia/internal/quiz"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/store"
	"github.com/victornm/trivia/internal/telemetry"
)

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		store  store.KV
		pubsub redis.UniversalClient
		bank   *questionbank.Bank
	}

	service struct {
		profile     *profile.Service
		level       *level.Service
		leaderboard *leaderboard.Service
		quiz        *quiz.Service
	}

	registry *prometheus.Registry
	api      *api.API
	http     *http.Server
	grpc     *grpc.Server
}

func Init(ctx context.Context, c Config) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{c: c}

	s.eb = event.NewBus(event.WithLogger(slog.Default().With("component", "event")))

	if err := s.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if c.Quiz.SeedSample {
		if err := s.service.leaderboard.SeedSample(ctx); err != nil {
			slog.ErrorContext(ctx, "server: seed sample leaderboard failed", "error", err)
		}
	}

	s.initTelemetry()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra(ctx context.Context) error {
	var err error

	s.infra.bank, err = loadBank(s.c.Quiz.Catalog)
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}

	s.infra.store, err = OpenStore(ctx, s.c)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if len(s.c.Pubsub.Addrs) > 0 {
		s.infra.pubsub, err = connectRedis(ctx, s.c.Pubsub.Addrs, s.c.Pubsub.Pass)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func loadBank(path string) (*questionbank.Bank, error) {
	if path == "" {
		return questionbank.Default()
	}

	return questionbank.Load(path)
}

func (s *Server) initService() {
	keys := store.Keys{Prefix: s.c.Store.Prefix}

	s.service.profile = profile.NewService(profile.Config{
		EventBus: s.eb,
		Store:    s.infra.store,
		Keys:     keys,
	})

	s.service.level = level.NewService(level.Config{
		EventBus:  s.eb,
		Store:     s.infra.store,
		Keys:      keys,
		UnlockAll: s.c.Quiz.UnlockAll,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Store:    s.infra.store,
		Keys:     keys,
	})

	qc := quiz.Config{
		EventBus: s.eb,
		Bank:     s.infra.bank,
		Profile:  s.service.profile,
		Level:    s.service.level,
	}
	if s.c.Quiz.ServerTimer {
		qc.NewTickerFunc = session.NewTicker
	}
	s.service.quiz = quiz.NewService(qc)
}

func (s *Server) initTelemetry() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	telemetry.NewMetrics(s.registry).Subscribe(s.eb)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(slog.Default()))

	c := api.Config{
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		Profile:      s.service.profile,
		Level:        s.service.level,
		Leaderboard:  s.service.leaderboard,
		Bank:         s.infra.bank,
		PubsubPrefix: s.c.Pubsub.Prefix,
	}
	if s.infra.pubsub != nil {
		c.Redis = s.infra.pubsub
	}

	s.api = api.New(c)
	s.api.RegisterHTTP(e)
	s.api.RegisterGRPC(s.grpc)

	handler := cors.New(cors.Options{
		AllowedOrigins: s.c.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.InfoContext(c.Request.Context(), "http: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

// Handler serves the HTTP API, metrics and profiling endpoints.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Quiz() *quiz.Service { return s.service.quiz }

func (s *Server) Level() *level.Service { return s.service.level }

func (s *Server) Profile() *profile.Service { return s.service.profile }

func (s *Server) Leaderboard() *leaderboard.Service { return s.service.leaderboard }

// Start serves HTTP and gRPC until Shutdown is called or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("server: grpc listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
		return err
	}

	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}

// Close drains the event bus and releases the store and pub/sub connections.
func (s *Server) Close() {
	s.eb.Stop()

	if err := s.infra.store.Close(); err != nil {
		slog.Error("server: close store failed", "error", err)
	}

	if s.infra.pubsub != nil {
		if err := s.infra.pubsub.Close(); err != nil {
			slog.Error("server: close pubsub failed", "error", err)
		}
	}
}
