package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scorched/ballistics"
	"scorched/internal/observability"
	"scorched/server"
	"scorched/server/application"
	"scorched/server/domain"
	"scorched/terrain"
	"scorched/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := utils.GetEnvDefault("ADDR", "localhost")
	port := utils.GetEnvDefault("PORT", "9090")
	otlpEndpoint := utils.GetEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	terrainNodes := utils.GetEnvIntDefault("TERRAIN_NODES", 64)

	shutdownTelemetry, err := observability.Setup(ctx, "scorched-server", otlpEndpoint)
	if err != nil {
		log.Fatalf("telemetry setup failed: %v", err)
	}

	// 戦場を構築
	heightfield := terrain.NewRollingHills(terrainNodes, terrainNodes, 4, 6, 40)
	field := application.NewField(heightfield)
	scheduler := application.NewTimelineScheduler(field)
	defer scheduler.Close()

	weapons := ballistics.NewWeaponRegistry()
	ballistics.RegisterStandardWeapons(weapons)
	sim := ballistics.NewSimulator(heightfield, weapons)

	app := application.NewArtilleryApplication(sim, field, scheduler)

	// PubSub初期化
	pubsub := domain.NewSimplePubSub()

	// デフォルトマッチ設定
	defaultMatchID := domain.MatchID("default")
	matchManager := domain.NewSimpleMatchManager(defaultMatchID)

	match := domain.NewMatch(defaultMatchID, pubsub, app)
	go func() {
		if err := match.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "match error", "err", err)
		}
	}()

	handler := server.Route(pubsub, matchManager)
	s := server.NewServer(fmt.Sprintf("%s:%s", addr, port), handler)

	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()
	slog.InfoContext(ctx, "server listening", "addr", addr+":"+port)

	<-ctx.Done()
	slog.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "error", err)
		if err := s.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "error", err)
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
	}
	slog.InfoContext(ctx, "server shutdown complete")
}
