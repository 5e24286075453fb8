package app

import (
	"academy_backend/internal/config"
	"academy_backend/internal/controller"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"academy_backend/pkg/configwatcher"
	"academy_backend/pkg/database"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/security"
	"academy_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigPath string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client

	services        *services
	tracer          *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	mu              sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	lesson   *repository.LessonRepository
	response *repository.ResponseRepository
	progress *repository.ProgressRepository
}

type services struct {
	storage  *service.StorageService
	previews service.PreviewCache
	autosave *service.AutosaveScheduler
	progress *service.ProgressService
	overview *service.ModuleOverviewService
	sessions *service.LessonSessionService
}

type controllers struct {
	lesson *controller.LessonController
	module *controller.ModuleController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// applyConfig 热加载时只更新可在运行中调整的项
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		lesson:   repository.NewLessonRepository(db),
		response: repository.NewResponseRepository(db),
		progress: repository.NewProgressRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	rewriter, err := service.NewRewriter(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai gateway: %w", err)
	}

	s.previews = service.NewPreviewCache(rdb, cfg.Storage.PreviewTTL())
	s.storage = service.NewStorageService(cfg, s.previews)
	s.autosave = service.NewAutosaveScheduler(repos.response, cfg.Autosave.QuietPeriod(), cfg.Autosave.SaveTimeout())
	s.progress = service.NewProgressService(repos.lesson, repos.progress)
	s.overview = service.NewModuleOverviewService(repos.lesson, repos.progress)
	s.sessions = service.NewLessonSessionService(service.LessonSessionDeps{
		Lessons:   repos.lesson,
		Responses: repos.response,
		Autosave:  s.autosave,
		Rewriter:  rewriter,
		Locks:     service.NewFieldLock(rdb),
		Progress:  s.progress,
		Uploader:  s.storage,
		LockTTL:   cfg.AI.LockTTL(),
		IdleAfter: cfg.Autosave.SessionIdle(),
	})

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.autosave.SetQuietPeriod(newCfg.Autosave.QuietPeriod())
		logger.Log.Info("Autosave quiet period updated", zap.Duration("quiet_period", newCfg.Autosave.QuietPeriod()))
	})

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client, cfg *config.Config) *controllers {
	return &controllers{
		lesson: controller.NewLessonController(s.sessions, s.previews, cfg.Storage.MaxUploadMB),
		module: controller.NewModuleController(s.overview),
		health: controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定期释放空闲会话
func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				if n := s.sessions.Sweep(); n > 0 {
					logger.Log.Debug("Released idle lesson sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

func NewApp(cfg *config.Config, configPath string) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	// release 模式下由 migrate 命令单独执行迁移
	if cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         db,
		Redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		cancel()
		return nil, err
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb, cfg)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
		app.tracer = tp
	}

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal && cfg.Storage.LocalPath != "" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app, nil
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	if a.ConfigPath != "" {
		go func() {
			if err := configwatcher.WatchConfig(a.ctx, a.ConfigPath, time.Second, a.applyConfig); err != nil {
				logger.Log.Warn("Config hot reload disabled", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("listen: %w", err)
	}
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close()
	logger.Log.Info("Server exiting")
	return nil
}

// Close 写入挂起的保存并释放资源
func (a *App) Close() {
	a.cancel()
	if a.services != nil {
		if err := a.services.sessions.Close(); err != nil {
			logger.Log.Error("Failed to flush pending saves", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	_ = logger.Log.Sync()
}
