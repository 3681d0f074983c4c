package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/profilesync/internal/config"
	"github.com/hitoshi/profilesync/internal/database"
	"github.com/hitoshi/profilesync/internal/handler"
	"github.com/hitoshi/profilesync/internal/identity"
	"github.com/hitoshi/profilesync/internal/logger"
	"github.com/hitoshi/profilesync/internal/metrics"
	"github.com/hitoshi/profilesync/internal/middleware"
	"github.com/hitoshi/profilesync/internal/reconcile"
	"github.com/hitoshi/profilesync/internal/repository"
	"github.com/hitoshi/profilesync/internal/security"
)

// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	if level := logger.ParseLevel(cfg.LogLevel); level != slog.LevelInfo {
		log = logger.SetupDefault(w, level)
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("event_source", cfg.EventSource),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		// SIGINTまたはSIGTERMでコンテキストをキャンセルする
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, log)
	}
}

// service は起動に必要な依存関係を組み立てた結果。
type service struct {
	engine  *reconcile.Engine
	router  http.Handler
	limiter *middleware.RateLimiter
	closers []func() error
}

// close は開いた接続を逆順に閉じる。
func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// redisPinger は*redis.ClientをHealthCheckerに適合させる。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// buildService はストア、イベントソース、同期エンジン、ルーターを組み立てる。
// エラー時はそれまでに開いた接続を閉じる。
func buildService(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	checkers := map[string]handler.HealthChecker{}

	// 1. プロフィールストア
	var store repository.ProfileRepository
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store = repository.NewMemoryProfileRepo()
		log.Warn("using in-memory profile store; profiles are lost on restart")
	default:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		svc.closers = append(svc.closers, db.Close)

		if err := database.CheckSchema(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info("database connection established")

		store = repository.NewPostgresProfileRepo(db)
		checkers["postgres"] = db
	}

	// 2. イベントソースと発行先
	var (
		source    identity.Source
		publisher identity.Publisher
	)
	switch cfg.EventSource {
	case config.EventSourceRedis:
		client, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis: %w", err)
		}
		svc.closers = append(svc.closers, client.Close)
		log.Info("redis connection established", slog.String("channel", cfg.RedisChannel))

		redisCfg := identity.RedisConfig{
			Channel:     cfg.RedisChannel,
			SnapshotKey: cfg.RedisSnapshotKey,
		}
		source = identity.NewRedisSource(client, redisCfg, log)
		publisher = identity.NewRedisPublisher(client, redisCfg)
		checkers["redis"] = redisPinger{client: client}
	default:
		broker := identity.NewBroker(log)
		source = broker
		publisher = broker
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 同期エンジン
	policy := reconcile.NewPolicy(nil, security.NewNameSanitizer())
	svc.engine = reconcile.NewEngine(source, store, policy, log, reconcile.EngineConfig{
		StoreTimeout: cfg.StoreTimeout,
		Metrics:      collector,
	})

	// 5. ルーター
	svc.limiter = middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitDebug))
	deps := &handler.RouterDeps{
		Logger:         log,
		RateLimiter:    svc.limiter,
		HealthCheckers: checkers,
		Readiness:      svc.engine,
		MetricsHandler: metrics.Handler(registry),
	}
	if cfg.IngressEnabled() {
		deps.Publisher = publisher
		deps.IngressToken = cfg.IngressToken
	} else {
		log.Info("HTTP event ingress disabled; set INGRESS_TOKEN to enable it")
	}
	if cfg.DebugEnabled() {
		deps.Introspector = reconcile.NewIntrospector(svc.engine, store, policy, cfg.StoreTimeout, log)
		deps.DebugToken = cfg.DebugToken
		log.Warn("debug routes enabled", slog.String("path", "/debug/auth"))
	}
	svc.router = handler.NewRouter(deps)

	return svc, nil
}

// runServe は同期エンジンとHTTPサーバーを起動する。
// ctxがキャンセルされるとエンジンの購読を解除し、グレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      svc.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 同期エンジン
	g.Go(func() error {
		if err := svc.engine.Start(gctx, nil); err != nil {
			return fmt.Errorf("failed to start reconcile engine: %w", err)
		}
		<-gctx.Done()
		svc.engine.Stop()
		return nil
	})

	// HTTPサーバー
	g.Go(func() error {
		log.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	// シャットダウン
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
