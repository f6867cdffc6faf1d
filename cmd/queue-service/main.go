package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowq/queue-service/internal/analytics"
	"flowq/queue-service/internal/config"
	"flowq/queue-service/internal/httpapi"
	"flowq/queue-service/internal/hub"
	"flowq/queue-service/internal/queue"
	"flowq/queue-service/internal/store"
	"flowq/queue-service/internal/store/memory"
	"flowq/queue-service/internal/store/postgres"
	"flowq/queue-service/internal/telemetry"

	"github.com/go-co-op/gocron/v2"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var ticketStore store.TicketStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		ticketStore = postgres.NewStore(pool)
	} else {
		log.Printf("DB_DSN not set, state is in-memory and lost on restart")
		ticketStore = memory.NewStore()
	}

	broadcaster := hub.New()
	defer broadcaster.Close()

	service := queue.NewService(ticketStore, broadcaster, queue.Options{RecallLimit: cfg.RecallLimit})
	aggregator := analytics.NewAggregator(ticketStore)
	resetScheduler := queue.NewResetScheduler(ticketStore, service, cfg.ResetTime)
	handler := httpapi.NewHandler(ticketStore, service, aggregator, resetScheduler, httpapi.Options{})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		// Displays and kiosks subscribe without auth; the stream carries
		// nothing beyond what the public snapshot already exposes.
		client := broadcaster.Subscribe()
		defer broadcaster.Unsubscribe(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	}))
	mux.Handle("/", limiter.Middleware(handler.Routes()))

	root := otelhttp.NewHandler(httpapi.LoggingMiddleware(mux), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler init: %v", err)
	}
	if cfg.ResetScanInterval > 0 {
		_, err = cron.NewJob(
			gocron.DurationJob(cfg.ResetScanInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				ran, err := resetScheduler.RunIfDue(ctx, time.Now())
				if err != nil {
					log.Printf("daily reset error: %v", err)
					return
				}
				if ran {
					log.Printf("daily reset completed")
				}
			}),
		)
		if err != nil {
			log.Fatalf("scheduler job: %v", err)
		}
	}
	cron.Start()
	defer func() { _ = cron.Shutdown() }()

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
