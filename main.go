// Command chat-relay relays YouTube live chat to websocket subscribers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres for session checkpoints and runs migrations.
//   - Runs one poller per requested stream, shared by every subscriber of it,
//     and reclaims pollers left without subscribers.
//   - Exposes websocket attach routes plus /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-relay/adapter"
	"github.com/onnwee/chat-relay/community"
	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/db"
	"github.com/onnwee/chat-relay/relay"
	"github.com/onnwee/chat-relay/server"
	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB (optional)
	var database *sql.DB
	if cfg.CheckpointsEnabled() {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	} else {
		slog.Info("session checkpoints disabled (DB_DSN not set)")
	}

	yt := &youtubeapi.Client{BaseURL: cfg.YouTubeBaseURL, HTTPClient: youtubeapi.NewHTTPClient()}

	relayCfg := relay.Config{
		PollInterval:  cfg.PollInterval,
		DedupWindow:   cfg.DedupWindow,
		SweepInterval: cfg.DedupSweepInterval,
		Adapters: adapter.Options{
			CatalogInterval: cfg.CatalogRefreshInterval,
			ModBadgeURL:     cfg.CommunityModBadgeURL,
		},
	}
	if cfg.CommunityAPIBase != "" {
		relayCfg.Adapters.Community = &community.Client{
			BaseURL:    strings.TrimRight(cfg.CommunityAPIBase, "/"),
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		}
	} else {
		slog.Info("community catalogs disabled (COMMUNITY_API_BASE not set)")
	}
	if database != nil {
		relayCfg.Checkpoint = func(ctx context.Context, c relay.Checkpoint) error {
			return db.UpsertSession(ctx, database, db.Session{
				StreamID:     c.StreamID,
				ChannelID:    c.ChannelID,
				Continuation: c.Continuation,
				State:        c.State,
				UpdatedAt:    c.UpdatedAt,
			})
		}
	}

	hub := relay.NewHub(yt, relayCfg, cfg.RelayIdleTimeout)
	defer hub.Close()
	go hub.Run(ctx, time.Minute)

	var searcher server.LiveSearcher
	if cfg.DataAPIEnabled() {
		s, err := youtubeapi.NewLiveSearcher(ctx, cfg.YouTubeDataAPIKey)
		if err != nil {
			slog.Warn("data api live search disabled", slog.Any("err", err))
		} else {
			searcher = s
		}
	}

	handler := server.NewMux(ctx, server.Deps{
		Hub:      hub,
		YouTube:  yt,
		Searcher: searcher,
		DB:       database,
		Config:   cfg,
	})
	slog.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
	go func() {
		if err := server.Start(ctx, handler, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging installs the default slog handler. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	format = strings.ToLower(format)
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
		format = "text"
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
