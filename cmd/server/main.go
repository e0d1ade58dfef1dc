// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medsmart-go/internal/config"
	"medsmart-go/internal/handler"
	"medsmart-go/internal/index"
	"medsmart-go/internal/middleware"
	"medsmart-go/internal/model"
	"medsmart-go/internal/pipeline"
	"medsmart-go/internal/repository"
	"medsmart-go/internal/service"
	"medsmart-go/pkg/database"
	"medsmart-go/pkg/embedding"
	"medsmart-go/pkg/kafka"
	"medsmart-go/pkg/llm"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/mailer"
	"medsmart-go/pkg/storage"
	"medsmart-go/pkg/tika"
	"medsmart-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 和 Kafka
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(&model.User{}, &model.ChatMessage{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	historyRepository := repository.NewHistoryRepository(database.DB)
	chunkRepository := repository.NewChunkRepository(cfg.RAG.StoreFile)
	otpRepository := repository.NewOTPRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika.ServerURL)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	mailSender := mailer.NewSender(cfg.Mail)

	indexManager := index.NewManager(chunkRepository, embeddingClient)

	userService := service.NewUserService(userRepository, jwtManager, cfg.Admin.BootstrapSecret)
	resetService := service.NewResetService(userRepository, otpRepository, userService, mailSender)
	answerService := service.NewAnswerService(indexManager, llmClient, historyRepository, cfg.RAG.TopK)
	chatService := service.NewChatService(indexManager, llmClient, historyRepository, cfg.RAG.TopK)
	conversationService := service.NewConversationService(historyRepository)
	adminService := service.NewAdminService(userRepository, cfg.MinIO)

	// 6. 初始化文件处理管道 (Processor)
	splitter := pipeline.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	processor := pipeline.NewProcessor(tikaClient, chunkRepository, splitter, cfg.MinIO, indexManager)

	// 7. 启动后台 Kafka 消费者处理异步导入任务
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService, resetService)
	chatHandler := handler.NewChatHandler(answerService, chatService, userService, jwtManager)
	conversationHandler := handler.NewConversationHandler(conversationService)
	adminHandler := handler.NewAdminHandler(adminService, userService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组（公开访问）
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.POST("/cancel-reset", authHandler.CancelReset)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Chat 路由组
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
			asked := chatGroup.Group("/")
			asked.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				asked.POST("/ask", chatHandler.Ask)
			}
		}
		// WebSocket 端点：浏览器无法自定义请求头，token 放在路径中
		r.GET("/chat/:token", chatHandler.Handle)

		// Conversation 路由组，需要认证
		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			conversations.GET("", conversationHandler.ListSessions)
			conversations.POST("/new", conversationHandler.NewSession)
			conversations.GET("/:sessionId", conversationHandler.GetHistory)
			conversations.DELETE("/:sessionId", conversationHandler.DeleteSession)
			conversations.DELETE("", conversationHandler.WipeHistory)
		}

		admin := apiV1.Group("/admin")
		{
			// 引导接口公开：系统中尚无 Admin 时没有任何人能通过管理员中间件
			admin.POST("/bootstrap", adminHandler.Bootstrap)

			// 管理员路由组，需要同时通过认证和管理员授权两个中间件
			authed := admin.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
			{
				authed.GET("/users/list", adminHandler.ListUsers)
				authed.POST("/documents", adminHandler.UploadDocument)
			}
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
