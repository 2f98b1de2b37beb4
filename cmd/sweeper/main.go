// Command sweeper runs the overdue / due-soon sweep outside the API server,
// either on the configured interval or once (-once), e.g. from cron.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/logger"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/sweep"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	history := flag.Int("history", 0, "print the last N journaled runs and exit")
	flag.Parse()

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

	journal, err := sweep.OpenJournal(cfg.Sweep.JournalPath)
	if err != nil {
		log.Fatal("sweep journal", zap.Error(err))
	}
	defer journal.Close()

	if *history > 0 {
		runs, err := journal.Recent(*history)
		if err != nil {
			log.Fatal("read journal", zap.Error(err))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			log.Fatal("print runs", zap.Error(err))
		}
		return
	}

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if err := database.Init(cfg, log); err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer database.Close(database.DB)

	clk, err := clock.NewCivil(cfg.Timezone)
	if err != nil {
		log.Fatal("timezone", zap.Error(err))
	}

	log.Info("civil clock ready", zap.String("timezone", clk.Location().String()), zap.Time("today", clk.Today()))

	var sender mailer.Sender = mailer.LogSender{Log: log.With(zap.String("component", "mailer"))}
	if cfg.SMTP.Host != "" {
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
		sender = s
	}

	sched := sweep.NewScheduler(&sweep.Sweeper{
		DB:      database.DB,
		Mailer:  sender,
		Clock:   clk,
		Workers: cfg.Sweep.Workers,
		Log:     log.With(zap.String("component", "sweep")),
	}, journal, cfg.Sweep.Interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		r, err := sched.RunOnce(ctx)
		fmt.Println(r)
		if err != nil {
			log.Error("sweep failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	sched.Start(ctx)
}
