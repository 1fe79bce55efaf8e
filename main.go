package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/sarwatch/backend/internal/aoi"
	"github.com/sarwatch/backend/internal/config"
	"github.com/sarwatch/backend/internal/db"
	"github.com/sarwatch/backend/internal/detect"
	"github.com/sarwatch/backend/internal/ee"
	"github.com/sarwatch/backend/internal/middleware"
	"github.com/sarwatch/backend/internal/monitor"
	"github.com/sarwatch/backend/internal/notify"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}
	if cfg.WebhookURL == "" {
		log.Println("WARNING: WEBHOOK_URL not configured, notifications disabled")
	}

	db.Connect()
	aoi.Init(cfg)

	client := ee.NewClient(cfg.EEEndpoint, cfg.EEProject, cfg.EEToken,
		cfg.Collection, cfg.InstrumentMode, cfg.Polarization)
	detector := detect.NewDetector(client, cfg)
	notifier := notify.New(cfg.WebhookURL, cfg.BaseURL)

	mon := &monitor.Monitor{
		Store:    monitor.NewStore(db.DB),
		Catalog:  client,
		Detector: detector,
		Notifier: notifier,
		Interval: time.Duration(cfg.CheckIntervalHours) * time.Hour,
	}

	aoi.Catalog = client
	aoi.Thumbs = detector
	aoi.Analyses = mon

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if notifier.Enabled() {
		if err := notifier.TestConnection(ctx); err != nil {
			log.Printf("WARNING: webhook test failed: %v", err)
		} else {
			log.Println("Webhook test successful")
		}
	}

	go mon.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RateLimit(rate.Limit(10), 30))
	r.Get("/", RootHandler)
	r.Mount("/api", aoi.SetupRoutes())

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port :%s...", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: ", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
