package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/api"
	"github.com/punchamoorthee/offerledger/internal/bot"
	"github.com/punchamoorthee/offerledger/internal/config"
	"github.com/punchamoorthee/offerledger/internal/form"
	"github.com/punchamoorthee/offerledger/internal/service"
	"github.com/punchamoorthee/offerledger/internal/store"
	"github.com/punchamoorthee/offerledger/internal/telegram"
)

const (
	pollWorkers     = 8
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("unable to load configuration")
	}
	log := cfg.NewLogger()
	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.OpenBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("unable to open store backend")
	}
	defer backend.Close()

	// Initialize Layers
	catalog, err := store.NewCatalogStore(ctx, backend)
	if err != nil {
		log.WithError(err).Fatal("unable to load catalog")
	}
	ledger, err := store.NewLedgerStore(ctx, backend)
	if err != nil {
		log.WithError(err).Fatal("unable to load ledger")
	}
	log.WithField("backend", cfg.StoreBackend).
		WithField("offers", len(catalog.List())).
		WithField("accounts", len(ledger.Accounts())).
		Info("store loaded")

	tg, err := telegram.New(cfg.BotToken, pollWorkers, log)
	if err != nil {
		log.WithError(err).Fatal("unable to connect to telegram")
	}
	username := cfg.BotUsername
	if username == "" {
		username = tg.Username()
	}

	notifier := bot.NewNotifier(tg)
	bonus := service.NewBonusScheduler(ledger, notifier, cfg.SignupBonus, cfg.SignupBonusDelay, log)
	accounts := service.NewAccountService(ledger, service.NewReferralResolver(cfg.ReferralBonus, notifier, log), bonus, log)
	forms := form.NewEngine(catalog, cfg.SessionTTL, log)

	sweeper := service.NewSweeper(bonus, forms, cfg.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("unable to schedule sweeps")
	}

	handler := bot.New(tg, catalog, accounts, forms, bot.Options{
		AdminID:     cfg.AdminID,
		BotUsername: username,
		WithdrawURL: cfg.WithdrawURL,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(api.NewHandler(catalog, ledger, cfg.AdminAPIToken, log)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			stop()
		}
	}()

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		tg.Run(ctx, handler.Handle)
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	<-polled
	<-sweeper.Stop().Done()
	bonus.Stop()
}
