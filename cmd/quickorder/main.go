// Package main запускает HTTP-сервер сервиса оформления заказов на сертификацию.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/quickorder/internal/config"
	"github.com/mmeshcher/quickorder/internal/handler"
	"github.com/mmeshcher/quickorder/internal/middleware"
	"github.com/mmeshcher/quickorder/internal/orderapi"
	"github.com/mmeshcher/quickorder/internal/payment"
	"github.com/mmeshcher/quickorder/internal/repository"
	"github.com/mmeshcher/quickorder/internal/service"
	"github.com/mmeshcher/quickorder/internal/wizard"
)

// orderBackend объединяет источники данных, нужные обработчикам и мастеру.
type orderBackend interface {
	handler.Service
	wizard.OrderStore
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		local   *service.Service
		api     handler.Service
		backend orderBackend
	)

	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()

		local = service.NewService(repo, cfg.UnpaidOrderTTL, logger)
		defer local.Close()

		api, backend = local, local
	}

	// Мастер работает с удалённым API заказов, если оно задано. Без базы
	// данных то же API обслуживает и собственные маршруты /api.
	if cfg.OrderAPIAddress != "" {
		remote := orderapi.NewClient(cfg.OrderAPIAddress)
		backend = remote
		if api == nil {
			api = remote
		}
		sugar.Infow("using remote order API", "addr", cfg.OrderAPIAddress)
	}

	registry := newRegistry(backend, cfg, logger)
	sessions, err := middleware.NewSessionMiddleware(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		sugar.Fatalw("session initialization error", "error", err.Error())
	}
	h := handler.NewHandler(api, registry, logger, sessions)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая отмена неоплаченных заказов и закрытие неактивных сессий мастера
	if local != nil {
		local.StartUnpaidOrderSweep(ctx)
	}
	registry.StartSweeper(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting quickorder server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRegistry(backend orderBackend, cfg *config.Config, logger *zap.Logger) *wizard.Registry {
	gateway := payment.NewGateway(cfg.PaymentGatewayAddress, cfg.PaymentSecretKey)
	if cfg.PaymentSecretKey == "" {
		logger.Warn("payment secret key is not set, payments are disabled")
	}

	return wizard.NewRegistry(wizard.Dependencies{
		Catalog:   backend,
		Orders:    backend,
		Customers: backend,
		Payments:  gateway,
		Logger:    logger.Named("wizard"),
	}, cfg.SessionTTL)
}
