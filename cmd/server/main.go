package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"copytrade/internal/config"
	"copytrade/internal/db"
	"copytrade/internal/handlers"
	"copytrade/internal/jobs"
	"copytrade/internal/logger"
	"copytrade/internal/notification"
	"copytrade/internal/notify"
	"copytrade/internal/realtime"
	"copytrade/internal/services"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log := logger.WithComponent("server")

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	users := store.NewUserStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	mentors := store.NewMentorStore(database)
	stocks := store.NewStockStore(database)
	bindings := store.NewCopyTradeStore(database)
	credits := store.NewSettlementCreditStore(database)
	recharges := store.NewRechargeStore(database)
	withdraws := store.NewWithdrawStore(database)
	channels := store.NewChannelStore(database)
	downline := store.NewReferralStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	notifier := notification.New(cfg.TelegramBotToken, cfg.TelegramChatID)

	handler := handlers.New(cfg, handlers.Deps{
		TxRunner:   txRunner,
		Users:      users,
		Admin:      admin,
		Audit:      audit,
		Mentors:    mentors,
		Stocks:     stocks,
		Bindings:   bindings,
		Recharges:  recharges,
		Withdraws:  withdraws,
		Channels:   channels,
		Credits:    credits,
		Accounts:   services.NewAccountService(txRunner, users, admin, audit),
		Settlement: services.NewSettlementService(txRunner, stocks, bindings, credits, users, audit, hub, cfg.BalanceRetryLimit, cfg.SettlementWorkers),
		CopyTrade:  services.NewCopyTradeService(txRunner, bindings, mentors, users, audit, hub, cfg.BalanceRetryLimit),
		Funds:      services.NewFundsService(txRunner, users, recharges, withdraws, channels, audit, hub, notifier),
		Referral:   services.NewReferralService(users, downline),
		Hub:        hub,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, gctx := errgroup.WithContext(ctx)

	feed := notify.NewFeed()
	listener, err := notify.Listen(cfg.DatabaseURL, cfg.NotifyChannel)
	if err != nil {
		log.WithError(err).Warn("change feed unavailable, pushes come from request handlers only")
	} else {
		defer listener.Close()
		group.Go(func() error { return feed.Run(gctx, listener) })
	}
	relay := realtime.NewRelay(feed, hub, 0)
	group.Go(func() error { return relay.Run(gctx) })

	sweeper := jobs.NewSweeper(credits, notifier, cfg.SweepSchedule, cfg.StallAfter)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("failed to schedule settlement sweeper")
	}

	group.Go(func() error {
		log.WithField("addr", server.Addr).Info("copytrade API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sweeper.Stop()
		feed.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server stopped with error")
	}
	log.Info("server stopped")
}
