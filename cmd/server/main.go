package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/logger"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/routes"
	"debt-tracker-backend/internal/sweep"

	"go.uber.org/zap"
)

func newSender(cfg *config.Config, log *zap.Logger) mailer.Sender {
	if cfg.SMTP.Host == "" {
		return mailer.LogSender{Log: log.With(zap.String("component", "mailer"))}
	}
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		log.Fatal("smtp setup failed", zap.Error(err))
	}
	return s
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()
	log := logger.Log

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if err := database.Init(cfg, log); err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defaultCategory, err := database.EnsureDefaultCategory(database.DB, cfg.Categories.DefaultName)
	if err != nil {
		log.Fatal("default category", zap.Error(err))
	}

	clk, err := clock.NewCivil(cfg.Timezone)
	if err != nil {
		log.Fatal("timezone", zap.Error(err))
	}
	log.Info("civil clock ready", zap.String("timezone", clk.Location().String()), zap.Time("today", clk.Today()))
	sender := newSender(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var journal *sweep.Journal
	var wg sync.WaitGroup
	if cfg.Sweep.Enabled {
		journal, err = sweep.OpenJournal(cfg.Sweep.JournalPath)
		if err != nil {
			log.Fatal("sweep journal", zap.Error(err))
		}
		defer journal.Close()

		sched := sweep.NewScheduler(&sweep.Sweeper{
			DB:      database.DB,
			Mailer:  sender,
			Clock:   clk,
			Workers: cfg.Sweep.Workers,
			Log:     log.With(zap.String("component", "sweep")),
		}, journal, cfg.Sweep.Interval, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Start(ctx)
		}()
	}

	app := routes.New(routes.Deps{
		Config:            cfg,
		Clock:             clk,
		Mailer:            sender,
		DefaultCategoryID: defaultCategory.ID,
		Journal:           journal,
		Log:               log,
	})

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(":" + cfg.HTTP.Port); err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()

	if err := database.Close(database.DB); err != nil {
		log.Error("db close failed", zap.Error(err))
	} else {
		log.Info("db closed")
	}
	log.Info("server stopped")
}
