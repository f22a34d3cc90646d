package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"nightwatch/presence/internal/cache"
	"nightwatch/presence/internal/config"
	"nightwatch/presence/internal/db"
	internalhttp "nightwatch/presence/internal/http"
	"nightwatch/presence/internal/monitor"
	"nightwatch/presence/internal/notify"
	"nightwatch/presence/internal/session"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis ping failed: %v", err)
	}
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}()

	store := db.NewStore(pool, notify.NewPublisher(redisClient))
	location := cfg.Location()

	participants := cache.New[db.Participant]()
	sessions := session.NewManager(store, participants, cfg.SessionCacheTTL)
	local, err := sessions.Initialize(ctx, cfg.DeviceLabel)
	if err != nil {
		log.Fatalf("participant resolution failed for %q: %v", cfg.DeviceLabel, err)
	}
	log.Printf("resolved participant %s as %s", cfg.DeviceLabel, local.ID)

	penalizer := monitor.NewPenalizer(store)
	mon := monitor.New(store, monitor.DialProber{Addr: cfg.ProbeTargetAddr, Timeout: cfg.ProbeTimeout}, penalizer, monitor.Config{
		ProbeInterval:    cfg.ProbeInterval,
		RecheckInterval:  cfg.RecheckInterval,
		Debounce:         cfg.ProbeDebounce,
		LatencyThreshold: cfg.LatencyThreshold,
		Location:         location,
	})
	mon.Start(ctx, local.ID)
	defer mon.Stop()

	listener := notify.NewListener(redisClient, notify.Handlers{
		LocalParticipantChanged: sessions.ApplyRemote,
		RosterChanged: func() {
			// roster is never cached here; dependents re-fetch on demand
		},
		VerseChanged: func() {
			// submitted-today status is re-derived per request
		},
	})
	if err := listener.Start(ctx, *local); err != nil {
		log.Fatalf("change listener failed: %v", err)
	}
	defer listener.Stop()

	server := internalhttp.NewServer(store, penalizer, location)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("presence http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	if err := sessions.UpdateStatus(context.Background(), false); err != nil {
		log.Printf("offline status write failed: %v", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
