// Package server はCRMパイプラインのHTTPサーバーを組み立てる。
// REST API、WebSocket、メトリクス、保持期間スイープを1つのプロセスで動かす。
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/internal/metrics"
	"github.com/nao1215/crmpipeline/internal/notification"
	"github.com/nao1215/crmpipeline/internal/pipeline"
	"github.com/nao1215/crmpipeline/internal/realtime"
	"github.com/nao1215/crmpipeline/internal/retention"
	"github.com/nao1215/crmpipeline/pkg/middleware"
)

// shutdownTimeout はシャットダウン時に処理中のリクエストと通知処理を待つ上限。
const shutdownTimeout = 15 * time.Second

// Server はCRMパイプラインのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg *config.Config
	// registry はユーザーとリアルタイム接続の対応表。
	registry *realtime.Registry
	// engine は商談のステージ遷移エンジン。
	engine *pipeline.Engine
	// retention は保持期間スイープ。無効化されていればnil。
	retention *retention.Scheduler
	logger    *log.Logger
}

// New は依存を組み立ててServerを生成する。dbはマイグレーション適用済みであること。
func New(cfg *config.Config, db *sqlx.DB) (*Server, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	notifications := notification.NewService(notification.NewSQLStore(db), m)

	registry := realtime.NewRegistry(m)
	hub := realtime.NewHub(m)
	gateway := realtime.NewGateway(registry, hub, middleware.NewVerifier(cfg.JWTSecret), notifications)

	engine := pipeline.NewEngine(pipeline.NewSQLStore(db), notifications, gateway, m, cfg.SideEffectTimeout)

	var sweeper *retention.Scheduler
	if cfg.RetentionEnabled() {
		var err error
		sweeper, err = retention.NewScheduler(notifications, cfg.RetentionDays, cfg.RetentionSchedule)
		if err != nil {
			return nil, err
		}
	}

	rateLimit, err := middleware.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(m.Middleware())

	s := &Server{
		router:    router,
		cfg:       cfg,
		registry:  registry,
		engine:    engine,
		retention: sweeper,
		logger:    log.WithPrefix("server"),
	}

	// ヘルスチェック
	router.GET("/health", s.handleHealth())
	// Prometheusメトリクス
	router.GET("/metrics", gin.WrapH(metrics.Handler(promRegistry)))
	// リアルタイム接続。認証はハンドシェイクで行う
	router.GET("/ws", rateLimit, realtime.NewWSHandler(gateway, cfg.CORSAllowedOrigins, cfg.WSSendBuffer).Handle)

	// 認証必須のAPIエンドポイント
	api := router.Group("/api/v1")
	api.Use(rateLimit)
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	notification.NewHandler(notifications, gateway).RegisterRoutes(api)
	pipeline.NewHandler(engine).RegisterRoutes(api)

	return s, nil
}

// Handler はルーターを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーと保持期間スイープを起動し、ctxが終了するまでブロックする。
// ctx終了後は処理中のリクエストと通知処理の完了を待ってから返る。
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.retention != nil {
		s.retention.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("CRMパイプラインサービスを起動します", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer)
	})
	return g.Wait()
}

// shutdown は新規受付を止め、実行中の処理を待つ。
func (s *Server) shutdown(httpServer *http.Server) error {
	s.logger.Info("シャットダウンを開始します")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	// WebSocketはハイジャック済みのためShutdownの待機対象にならない
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTPサーバーの停止に失敗: %w", err))
	}
	if s.retention != nil {
		if err := s.retention.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// HTTPサーバーの停止後に残った通知処理を待つ。
	// Close後に届いた遷移は通知を開始しない。
	drained := make(chan struct{})
	go func() {
		s.engine.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("通知処理の完了待ちを打ち切りました: %w", ctx.Err()))
	}

	s.logger.Info("シャットダウンが完了しました", "connections", s.registry.Count())
	return errors.Join(errs...)
}

// handleHealth はヘルスチェックのハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "crmpipeline",
			"connections": s.registry.Count(),
		})
	}
}
