package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"notebooker/core"
	"notebooker/core/security"
	"notebooker/models"
)

// appContext 聚合所有处理器依赖
type appContext struct {
	db         *gorm.DB
	dispatcher *core.Dispatcher
	writer     *core.NotebookWriter
	sessions   *core.SessionManager
	auth       *core.AuthManager
	dbLogger   *core.AsyncDBLogger
	hub        *core.ActivityHub
	backups    *core.BackupManager
	logger     *logrus.Logger
}

func main() {
	// .env 不存在时静默跳过
	_ = godotenv.Load()

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{})
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	}

	// 日志同时写 stdout 和带轮转的文件
	rotator, err := core.NewLogRotator("logs/notebooker.log", 20)
	if err != nil {
		log.Warnf("⚠️ 日志文件不可用，仅输出到 stdout: %v", err)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
		defer rotator.Close()
	}

	// 🔇 关闭 Gin Debug 模式输出
	gin.SetMode(gin.ReleaseMode)

	db, err := initDatabase(log)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// 凭证加密: 配置了密钥用 AES-GCM，否则明文直通
	var sp core.SecretProvider = core.NoOpSecretProvider{}
	if secret := os.Getenv("NOTEBOOKER_SECRET_KEY"); secret != "" {
		aes, err := security.NewAESSecretProvider(secret)
		if err != nil {
			log.Fatal("Invalid NOTEBOOKER_SECRET_KEY:", err)
		}
		sp = aes
		log.Info("🔒 Credential encryption enabled")
	}

	cfg, err := core.LoadDispatchConfig("dispatch.toml", log)
	if err != nil {
		log.Fatal("Failed to load dispatch config:", err)
	}

	credentials := core.LoadCredentials(db, sp, log)
	if len(credentials) == 0 {
		log.Warn("⚠️ No API credentials configured, all generations will use template fallback")
	}

	client := core.NewOpenRouterClient(cfg.BaseURL, cfg.MaxTokensCeiling, log)
	dispatcher := core.NewDispatcher(
		cfg,
		core.NewCredentialPool(credentials),
		core.NewModelList(cfg.Models),
		client,
		core.NewDispatchHealth(),
		log,
	)

	sessions := core.NewSessionManager(core.DefaultSessionTTL, log)
	dbLogger := core.NewAsyncDBLogger(db, log)
	hub := core.NewActivityHub(log)

	var settings models.AppSettings
	db.First(&settings)

	app := &appContext{
		db:         db,
		dispatcher: dispatcher,
		writer:     core.NewNotebookWriter(dispatcher, log),
		sessions:   sessions,
		auth:       core.NewAuthManager(db, sessions, log),
		dbLogger:   dbLogger,
		hub:        hub,
		backups:    core.NewBackupManager(db, settings.BackupDir, log),
		logger:     log,
	}

	engine := gin.New()
	engine.Use(gin.RecoveryWithWriter(log.Writer()))
	engine.Use(corsMiddleware())
	setupRoutes(engine, app)

	port := settings.Port
	if port == 0 {
		port = 8000
	}
	if envPort := os.Getenv("NOTEBOOKER_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	go func() {
		log.Infof("🎯 Starting Notebooker on port %d (%d models, %d credentials)",
			port, len(dispatcher.Models()), len(credentials))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 落盘剩余日志，关闭 WebSocket 连接
	hub.Close()
	dbLogger.Close()

	log.Info("Server exited")
}

// initDatabase 初始化数据库
func initDatabase(log *logrus.Logger) (*gorm.DB, error) {
	dsn := os.Getenv("NOTEBOOKER_DB")
	if dsn == "" {
		dsn = "notebooker.db"
	}

	// 只在出错时记录 SQL
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := models.InitializeDefaultData(db); err != nil {
		return nil, fmt.Errorf("failed to initialize default data: %w", err)
	}

	log.Info("Database initialized successfully")
	return db, nil
}

// setupRoutes 设置路由
func setupRoutes(engine *gin.Engine, app *appContext) {
	// 公开路由 - 无需鉴权
	engine.GET("/", handleRoot(app))
	engine.GET("/health", handleHealth(app))

	// 认证路由 - 带限流防爆破
	auth := engine.Group("/api/auth")
	auth.Use(RateLimitMiddleware())
	{
		auth.POST("/register", handleRegister(app))
		auth.POST("/login", handleLogin(app))
	}

	// 业务路由 - 会话鉴权 + 异步请求日志
	api := engine.Group("/api")
	api.Use(SessionAuthMiddleware(app.sessions))
	api.Use(RequestLoggerMiddleware(app.dbLogger))
	{
		api.POST("/auth/logout", handleLogout(app))
		api.POST("/auth/verify", handleVerifySession(app))
		api.GET("/auth/me", handleCurrentUser(app))

		api.GET("/sections", handleListSections(app))
		api.POST("/sections", handleSaveSection(app))
		api.GET("/sections/:name", handleGetSection(app))
		api.DELETE("/sections/:name", handleDeleteSection(app))
		api.POST("/sections/:name/draft", handleDraftSection(app))
		api.POST("/sections/:name/rewrite", handleRewriteSection(app))

		api.GET("/analyze", handleAnalyze(app))
		api.POST("/analyze_content", handleAnalyzeContent(app))

		api.GET("/planning", handleGetPlanning(app))
		api.POST("/planning", handleUpdatePlanning(app))

		api.GET("/projects", handleListProjects(app))
		api.POST("/projects", handleCreateProject(app))
		api.PUT("/projects/:project_id", handleUpdateProject(app))
		api.DELETE("/projects/:project_id", handleDeleteProject(app))

		api.POST("/backup", handleBackup(app))

		api.GET("/models", handleGetModels(app))
		api.POST("/models/switch", handleSwitchModel(app))

		api.GET("/stats", handleStats(app))
		api.GET("/dispatch/status", handleDispatchStatus(app))
	}

	// 实时活动推送
	engine.GET("/ws/activity", handleActivityWS(app))
}
