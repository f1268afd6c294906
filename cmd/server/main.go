package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"autoeye-traffic-dashboard/internal/alert"
	"autoeye-traffic-dashboard/internal/camera"
	"autoeye-traffic-dashboard/internal/config"
	"autoeye-traffic-dashboard/internal/dashboard"
	"autoeye-traffic-dashboard/internal/handlers"
	"autoeye-traffic-dashboard/internal/livesync"
	"autoeye-traffic-dashboard/internal/snapshot"
	"autoeye-traffic-dashboard/internal/trafficapi"
	"autoeye-traffic-dashboard/internal/transport"
)

const CONFIGS_PATH = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", CONFIGS_PATH, "path to the YAML config")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Root context for the whole app, cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := transport.NewHTTPClient(transport.HTTPClientConfig{
		Timeout:         cfg.API.RequestTimeoutDur,
		UserAgent:       cfg.API.UserAgent,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	})
	api := trafficapi.NewClient(cfg.API.BaseURL, transport.New(httpClient))

	feed := livesync.NewTrafficFeed(api,
		livesync.WithFilter(trafficapi.TrafficFilter{
			Location: cfg.Traffic.Location,
			Status:   trafficapi.Status(cfg.Traffic.Status),
		}),
		livesync.WithApplyPolicy(applyPolicy(cfg.Traffic.ApplyPolicy)),
	)
	health := livesync.NewHealthMonitor(api,
		livesync.WithInterval(cfg.Health.IntervalDur),
		livesync.WithJitter(cfg.Health.Jitter),
	)
	presenter := camera.New(ctx, feed,
		camera.WithHealthRefresh(health.Refresh),
		camera.WithDecoder(camera.ImageDecoder{MaxBytes: cfg.Camera.MaxImageBytes}),
	)
	defer presenter.Close()

	store := snapshot.Default()
	eventsCh := make(chan dashboard.Transition, 50)
	agg := dashboard.NewAggregator(
		dashboard.Config{FollowHeartbeat: cfg.Traffic.FollowHeartbeat},
		feed, health, presenter, store.Publish, eventsCh,
	)
	detach := agg.Start(ctx)
	defer detach()

	notifier, err := alert.NewTelegram(cfg.Alerts.Telegram.Token, cfg.Alerts.Telegram.ChatID, cfg.Alerts.Target)
	if err != nil {
		log.Fatal(err)
	}
	if !notifier.Enabled() {
		log.Printf("telegram alerts disabled (no token)")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	handlers.New(store, presenter).Routes(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		notifier.Run(gctx, eventsCh)
		return nil
	})

	g.Go(func() error {
		feed.Start(gctx)
		if err := health.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		health.Stop()
		return nil
	})

	g.Go(func() error {
		log.Printf("listening on %s (traffic api %s)", cfg.Server.Addr, cfg.API.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("shutdown complete")
}

func applyPolicy(name string) livesync.ApplyPolicy {
	if name == livesync.LastIssuedWins.String() {
		return livesync.LastIssuedWins
	}
	return livesync.LastResolvedWins
}
