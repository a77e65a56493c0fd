package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/db"
	"github.com/consultaplus/carteira/internal/gateway"
	"github.com/consultaplus/carteira/internal/handlers"
	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/mirror"
	"github.com/consultaplus/carteira/internal/repository/postgres"
	"github.com/consultaplus/carteira/internal/service/account"
	"github.com/consultaplus/carteira/internal/service/billing"
	"github.com/consultaplus/carteira/internal/service/coupon"
	"github.com/consultaplus/carteira/internal/service/ledger"
	"github.com/consultaplus/carteira/internal/service/reconciler"
	"github.com/consultaplus/carteira/internal/service/referral"
	"github.com/consultaplus/carteira/internal/service/spend"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	reconciler *reconciler.Reconciler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories and remote clients
	storage := postgres.NewStorage(pool)

	redisMirror, err := mirror.NewRedis(ctx, mirror.Config{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	ledgerClient := ledgerapi.NewClient(c.LedgerAddr, c.LedgerToken, log)
	gatewayClient := gateway.NewClient(c.GatewayAddr, log)

	// Initialize services
	notifier := balance.NewNotifier()
	store := balance.NewStore(ledgerClient, redisMirror, storage, notifier, log)
	ledgerService := ledger.NewService(storage, store, redisMirror, notifier, log)
	authorizer := spend.NewAuthorizer(store, log)

	commissionPercent, err := decimal.NewFromString(c.CommissionPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid commission percent %q: %w", c.CommissionPercent, err)
	}
	welcomeBonus, err := decimal.NewFromString(c.WelcomeBonus)
	if err != nil {
		return nil, fmt.Errorf("invalid welcome bonus %q: %w", c.WelcomeBonus, err)
	}

	referralEngine := referral.NewEngine(storage, store, ledgerClient, redisMirror, referral.Config{
		CommissionPercent: commissionPercent,
		Policy:            c.CommissionPolicy,
		WelcomeBonus:      welcomeBonus,
	}, log)
	referralEngine.Subscribe(notifier)

	tokenManager, err := account.NewTokenManager(account.TokenConfig{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	accountService := account.NewService(storage, referralEngine, tokenManager, log)

	billingService := billing.NewService(storage, store, ledgerService, authorizer, nil, log)
	couponService := coupon.NewService(storage, ledgerClient, store, notifier, log)

	settlement := reconciler.New(reconciler.Config{
		Deadline: c.SettlementDeadline,
	}, gatewayClient, ledgerService, storage.Transaction(), log)

	mux := handlers.NewRouter(
		accountService,
		store,
		ledgerService,
		billingService,
		couponService,
		referralEngine,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		reconciler: settlement,
	}, nil
}

// Run starts the http server and the settlement reconciler, closing both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	reconcilerDone := s.reconciler.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-reconcilerDone

	return err
}
