package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-guardian/internal/analysis"
	"github.com/mr1hm/go-guardian/internal/api"
	"github.com/mr1hm/go-guardian/internal/broadcast"
	"github.com/mr1hm/go-guardian/internal/cache"
	"github.com/mr1hm/go-guardian/internal/config"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/logging"
	"github.com/mr1hm/go-guardian/internal/monitor"
	"github.com/mr1hm/go-guardian/internal/notify"
	"github.com/mr1hm/go-guardian/internal/repository"
	"github.com/mr1hm/go-guardian/internal/sequencer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Guardian starting", "user_id", cfg.User.ID, "host", cfg.Server.Host, "port", cfg.Server.Port)

	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatalf("Failed to create database directory: %v", err)
		}
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live events for the wearer's device and dashboards
	broadcaster := broadcast.NewBroadcaster()
	inbox := sequencer.NewInbox(cfg.Sequencer.InboxSize)

	dispatcher := notify.NewDispatcher(cfg.User.Name, cfg.Worker.Count, cfg.Worker.BufferSize, buildSinks(ctx, cfg)...)
	dispatcher.Start(ctx)
	slog.Info("notification sinks ready", "sinks", dispatcher.Sinks())

	var analyzer sequencer.Analyzer
	if cfg.Analysis.GeminiAPIKey != "" {
		analyzer = analysis.NewGeminiAnalyzer(cfg.Analysis.GeminiBaseURL, cfg.Analysis.GeminiAPIKey, cfg.Analysis.GeminiModel)
	} else {
		slog.Info("urgency analysis disabled, GEMINI_API_KEY not set")
	}

	seq := sequencer.New(cfg.SequencerConfig(), inbox, monitor.NewBroadcastPrompter(broadcaster), dispatcher, analyzer)

	// Status snapshots go to redis when reachable, otherwise stay in process
	var (
		status      *cache.StatusStore
		closeStatus = func() {}
	)
	if cfg.Redis.Addr != "" {
		client := cache.NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, using in-memory status cache", "addr", cfg.Redis.Addr, "error", err)
			client.Close()
		} else {
			status = cache.NewStatusStore(cache.NewRedisKVStore(client), cfg.Redis.StatusTTL)
			closeStatus = func() { client.Close() }
		}
	}
	if status == nil {
		status = cache.NewStatusStore(cache.NewMemoryKVStore(), cfg.Redis.StatusTTL)
	}

	mon := monitor.New(monitor.Config{
		UserID:     cfg.User.ID,
		Immobility: cfg.ImmobilityConfig(),
		Fall:       cfg.FallConfig(),
		Keywords:   cfg.Detection.Keywords,
		QueueSize:  cfg.Worker.BufferSize,
	}, seq, db, broadcaster, status)
	mon.Start(ctx)

	// Start position sources
	var (
		sources []ingestion.PositionSource
		mqttSrc *ingestion.MQTTSource
	)
	if cfg.Sources.HTTPEnabled {
		sources = append(sources, ingestion.NewHTTPSource(cfg.Sources.HTTPURL))
	}
	if cfg.Sources.MQTTEnabled {
		mqttSrc, err = ingestion.NewMQTTSource(cfg.Sources, func(text string) { inbox.Push(text) })
		if err != nil {
			logging.Fatalf("Failed to connect MQTT source: %v", err)
		}
		sources = append(sources, mqttSrc)
	}
	if cfg.Sources.ReplayEnabled {
		track, err := ingestion.LoadTrack(cfg.Sources.ReplayPath)
		if err != nil {
			logging.Fatalf("Failed to load replay track: %v", err)
		}
		sources = append(sources, ingestion.NewReplaySource(track, true))
	}

	mgr := ingestion.NewManager(cfg.Detection.SamplingPeriod, func(f ingestion.Fix) { mon.SubmitPosition(f) }, sources...)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(db, mon, inbox, broadcaster, status)
	router := api.NewRouter(handler, cfg.Server.RateLimit)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	if mqttSrc != nil {
		mqttSrc.Close()
	}
	mon.Stop()
	seq.Stop()
	dispatcher.Stop()
	broadcaster.Close() // Close all streams gracefully
	closeStatus()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

// buildSinks returns the log sink plus every channel with credentials and
// recipients configured.
func buildSinks(ctx context.Context, cfg *config.Config) []notify.Sink {
	sinks := []notify.Sink{notify.LogSink{}}
	n := cfg.Notify

	if n.TwilioAccountSID != "" && len(cfg.User.ContactPhones) > 0 {
		sinks = append(sinks, notify.NewSMSSink(n.TwilioAccountSID, n.TwilioAuthToken, n.TwilioFromNumber, cfg.User.ContactPhones))
	}
	if n.GmailCredentials != "" && len(cfg.User.ContactEmails) > 0 {
		email, err := notify.NewEmailSink(ctx, n.GmailCredentials, n.GmailSender, cfg.User.ContactEmails)
		if err != nil {
			slog.Error("email notifications disabled", "error", err)
		} else {
			sinks = append(sinks, email)
		}
	}
	if n.FCMCredentials != "" && len(cfg.User.ContactFCMTokens) > 0 {
		push, err := notify.NewPushSink(ctx, n.FCMCredentials, cfg.User.ContactFCMTokens)
		if err != nil {
			slog.Error("push notifications disabled", "error", err)
		} else {
			sinks = append(sinks, push)
		}
	}
	return sinks
}
