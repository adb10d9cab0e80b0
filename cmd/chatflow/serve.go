package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"github.com/soochol/chatflow/internal/api"
	"github.com/soochol/chatflow/internal/auth"
	"github.com/soochol/chatflow/internal/chatflow/ports"
	"github.com/soochol/chatflow/internal/config"
	"github.com/soochol/chatflow/internal/crypto"
	"github.com/soochol/chatflow/internal/db"
	"github.com/soochol/chatflow/internal/events"
	"github.com/soochol/chatflow/internal/metrics"
	"github.com/soochol/chatflow/internal/notify"
	"github.com/soochol/chatflow/internal/repository"
	"github.com/soochol/chatflow/internal/runtime"
	"github.com/soochol/chatflow/internal/services"
	"github.com/soochol/chatflow/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow builder API and conversation runtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		setupLogger(cfg.Log)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	bus := events.NewBus()
	m := metrics.New()
	m.Attach(bus)

	flowRepo, closeDB, err := openFlowRepository(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	convStore, locker, closeRedis, err := openConversationStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	quota := services.PlanQuota{MaxFlows: cfg.Quota.MaxFlows, MaxNodesPerFlow: cfg.Quota.MaxNodesPerFlow}
	flowSvc := services.NewFlowService(flowRepo, quota, bus)

	limiter := runtime.NewLimiter(runtime.Limits{GlobalMax: cfg.Runtime.GlobalMax, PerTenant: cfg.Runtime.PerTenant})
	var transport ports.Sender = runtime.LogSender{}
	switch d := cfg.Delivery; {
	case d.WebhookURL != "" && d.TokenURL != "":
		cc := &clientcredentials.Config{ClientID: d.ClientID, ClientSecret: d.ClientSecret, TokenURL: d.TokenURL, Scopes: d.Scopes}
		transport = notify.NewOAuthWebhookSender(ctx, d.WebhookURL, cc, d.Timeout)
	case d.WebhookURL != "":
		transport = notify.NewWebhookSender(d.WebhookURL, d.WebhookToken, d.Timeout)
	}
	sender := runtime.NewRetrySender(transport, runtime.DefaultRetryPolicy())
	exec := runtime.NewExecutor(flowSvc, convStore, locker, sender, runtime.Options{
		MaxSilentHops:     cfg.Runtime.MaxSilentHops,
		MaxStepsPerTurn:   cfg.Runtime.MaxStepsPerTurn,
		UnpublishedPolicy: runtime.UnpublishedPolicy(cfg.Runtime.UnpublishedPolicy),
		LockTTL:           cfg.Runtime.LockTTL,
		HTTPTimeout:       cfg.Runtime.HTTPTimeout,
	}, runtime.WithLimiter(limiter), runtime.WithEvents(bus))

	sweeper := runtime.NewSweeper(convStore, exec, cfg.Runtime.SweepSpec, cfg.Runtime.SweepBatch)

	avatars, err := storage.NewLocalStorage(cfg.Storage.AvatarDir)
	if err != nil {
		return fmt.Errorf("avatar storage: %w", err)
	}

	srv := api.NewServer(flowSvc, exec, tokens)
	srv.SetStorage(avatars)
	srv.SetMetricsHandler(m.Handler())
	srv.SetLimiter(limiter)
	srv.SetCORSOrigins(cfg.Server.CORSOrigins)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting chatflow server", "addr", httpSrv.Addr, "max_conns", cfg.Server.MaxConns)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})
	if cfg.Delivery.HandoffSlackURL != "" {
		handoff := &notify.HandoffNotifier{WebhookURL: cfg.Delivery.HandoffSlackURL}
		ch := bus.Channel(gctx, 64)
		g.Go(func() error {
			handoff.Run(gctx, ch)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down chatflow server")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openFlowRepository returns the SQL-backed repository when a database URL
// is configured, otherwise an in-memory one.
func openFlowRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.FlowRepository, func(), error) {
	mem := repository.NewMemoryFlowRepository()
	if cfg.URL == "" {
		slog.Warn("no database configured, flows are kept in memory")
		return mem, func() {}, nil
	}
	database, err := db.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	slog.Info("database connected", "dialect", database.Dialect)
	return repository.NewPersistentFlowRepository(mem, database), func() { database.Close() }, nil
}

// openConversationStore returns the Redis store and lock when an address is
// configured, otherwise the in-process implementations.
func openConversationStore(ctx context.Context, cfg config.RedisConfig) (ports.ConversationStore, ports.Locker, func(), error) {
	if cfg.Addr == "" {
		slog.Warn("no redis configured, conversations are kept in memory")
		return repository.NewMemoryConversationStore(), repository.NewLocalLocker(), func() {}, nil
	}
	client := backend.NewClient(&backend.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	key, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	slog.Info("redis connected", "addr", cfg.Addr, "encrypted", sealer.Enabled())
	store := repository.NewRedisConversationStore(client,
		repository.WithPrefix(cfg.Prefix), repository.WithTTL(cfg.TTL), repository.WithSealer(sealer))
	return store, repository.NewRedisLocker(client, cfg.Prefix), func() { client.Close() }, nil
}
