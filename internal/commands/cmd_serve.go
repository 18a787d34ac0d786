package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/livefir/blogpage"
	"github.com/livefir/blogpage/internal/config"
	"github.com/livefir/blogpage/internal/fixture"
	"github.com/livefir/blogpage/internal/metrics"
	"github.com/livefir/blogpage/internal/session"
)

const metricsPath = "/debug/metrics"

type ServeCmd struct {
	flags *Flags

	// flags
	addr           string
	sessionBackend string
	sessionPath    string
	fixture        string
	fakePosts      int
	seed           uint64
	noWebSocket    bool
	noMinify       bool
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Serve the demo blog with live page interactions",
		UsageText: "blogpage serve [options]",
		Description: `Starts an HTTP server for the demo blog. Pages are rendered server side
and the page script sends clicks back over WebSocket, or over HTTP posts
when WebSocket is disabled. Without a fixture file, posts are generated.

Flags override values from the config file.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Sources:     cli.EnvVars("BLOGPAGE_ADDR"),
				Destination: &cmd.addr,
			},
			&cli.StringFlag{
				Name:        "session-backend",
				Usage:       "page state storage (memory, sqlite)",
				Sources:     cli.EnvVars("BLOGPAGE_SESSION_BACKEND"),
				Destination: &cmd.sessionBackend,
			},
			&cli.StringFlag{
				Name:        "session-path",
				Usage:       "SQLite database path for the sqlite backend",
				Sources:     cli.EnvVars("BLOGPAGE_SESSION_PATH"),
				Destination: &cmd.sessionPath,
			},
			&cli.StringFlag{
				Name:        "fixture",
				Usage:       "YAML file with posts and comments",
				Sources:     cli.EnvVars("BLOGPAGE_FIXTURE"),
				Destination: &cmd.fixture,
			},
			&cli.IntFlag{
				Name:        "fake-posts",
				Usage:       "number of generated posts when no fixture is given",
				Destination: &cmd.fakePosts,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "seed for generated posts (0 picks one)",
				Destination: &cmd.seed,
			},
			&cli.BoolFlag{
				Name:        "no-websocket",
				Usage:       "serve actions over HTTP posts only",
				Destination: &cmd.noWebSocket,
			},
			&cli.BoolFlag{
				Name:        "no-minify",
				Usage:       "send rendered pages unminified",
				Destination: &cmd.noMinify,
			},
		},
		Action: cmd.run,
	})

	return app
}

// settings merges command flags over the loaded config
func (cmd *ServeCmd) settings(c *cli.Command) config.Config {
	cfg := *cmd.flags.config()

	if c.IsSet("addr") {
		cfg.Addr = cmd.addr
	}
	if c.IsSet("session-backend") {
		cfg.Sessions.Backend = cmd.sessionBackend
	}
	if c.IsSet("session-path") {
		cfg.Sessions.Path = cmd.sessionPath
	}
	if c.IsSet("fixture") {
		cfg.Fixture = cmd.fixture
	}
	if c.IsSet("fake-posts") {
		cfg.FakePosts = cmd.fakePosts
	}
	if c.IsSet("seed") {
		cfg.Seed = cmd.seed
	}
	if cmd.noWebSocket {
		cfg.WebSocket = false
	}
	if cmd.noMinify {
		cfg.Minify = false
	}
	return cfg
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.settings(c)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Sessions)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close session store")
		}
	}()

	blog, err := loadBlog(cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	handler, err := newHandler(cfg, blog, store, collector)
	if err != nil {
		return err
	}

	go session.Sweep(ctx, store, cfg.Sessions.CleanupInterval, func(n int) {
		collector.IncrementCleanupOperation(int64(n))
		if n > 0 {
			log.Debug().Int("removed", n).Msg("expired sessions swept")
		}
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("sessions", cfg.Sessions.Backend).
			Bool("websocket", cfg.WebSocket).
			Int("posts", len(blog.Posts)).
			Msg("serving blog")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.SessionBackendSQLite:
		store, err := session.OpenSQLite(ctx, cfg.Path, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		return store, nil
	default:
		return session.NewManager(cfg.TTL), nil
	}
}

func loadBlog(cfg config.Config) (*fixture.Blog, error) {
	if cfg.Fixture != "" {
		blog, err := fixture.Load(cfg.Fixture)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		return blog, nil
	}
	return fixture.Generate(cfg.FakePosts, cfg.Seed), nil
}

// newHandler builds the site's routes on top of the live page handler
func newHandler(cfg config.Config, blog *fixture.Blog, store session.Store, collector *metrics.Collector) (http.Handler, error) {
	logger := log.With().Str("component", "blogpage").Logger()

	site, err := fixture.NewSite(blog, logger)
	if err != nil {
		return nil, err
	}

	opts := []blogpage.Option{
		blogpage.WithSessionStore(store),
		blogpage.WithMetrics(collector),
		blogpage.WithLogger(logger),
	}
	if !cfg.WebSocket {
		opts = append(opts, blogpage.WithWebSocketDisabled())
	}
	if !cfg.Minify {
		opts = append(opts, blogpage.WithMinifyDisabled())
	}

	mux := http.NewServeMux()
	site.Register(mux, blogpage.Mount(site, opts...))
	mux.HandleFunc("GET "+blogpage.ClientLibraryPath, blogpage.ServeClientLibrary)
	mux.HandleFunc("GET "+metricsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collector.Snapshot()); err != nil {
			log.Debug().Err(err).Msg("failed to write metrics")
		}
	})

	return mux, nil
}
