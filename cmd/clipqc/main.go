package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clipqc/internal/analysis"
	"clipqc/internal/auth"
	"clipqc/internal/config"
	"clipqc/internal/db"
	"clipqc/internal/dlq"
	httpx "clipqc/internal/http"
	"clipqc/internal/jobs"
)

func main() {
	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, gdb, jwtSvc)

	// worker pool + reaper
	jobsRepo := &jobs.Repo{DB: gdb}
	intake := &jobs.Intake{Repo: jobsRepo, MaxAttempts: cfg.MaxAttempts}
	dlqSvc := &dlq.Service{Repo: &dlq.Repo{DB: gdb}, Jobs: jobsRepo, Intake: intake}
	analyzer := analysis.NewClient(cfg.AnalyzerURL)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	jobs.StartPool(ctx, &wg, cfg.WorkerCount, jobsRepo, analyzer.Execute, dlqSvc, cfg.PollInterval)

	reaper := &jobs.Reaper{Repo: jobsRepo, DLQ: dlqSvc, StaleAfter: cfg.StaleAfter, Interval: 24 * time.Hour}
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	wg.Wait()
	log.Println("workers stopped")
}
