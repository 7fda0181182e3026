package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/handlers"
	"bankledger/internal/observability"
	"bankledger/internal/services"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "bankledger"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	metrics := observability.NewMetrics()
	txRunner := db.NewTxRunner(database, cfg.TxMaxAttempts, logger)
	hub := websocket.NewHub()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	transactions := store.NewTransactionStore(database)
	loans := store.NewLoanStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)

	ledgerService := services.NewLedgerService(txRunner, accounts, transactions, audit, hub, metrics, logger.Named("ledger"))
	loanService := services.NewLoanService(txRunner, loans, ledgerService, audit, hub, metrics, logger.Named("loans"))

	handler := handlers.New(txRunner, cfg, users, admin, audit, ledgerService, loanService, hub, metrics, logger.Named("http"))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("ledger API listening",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.AppEnv),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serverErr := server.Shutdown(shutdownCtx)
		tracerErr := shutdownTracer(shutdownCtx)
		return errors.Join(serverErr, tracerErr)
	})
	return group.Wait()
}
