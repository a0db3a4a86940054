// Package main 网关回调服务入口（webhook-svc）
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat-ai-bot/internal/application/membership"
	"groupchat-ai-bot/internal/application/moderation"
	"groupchat-ai-bot/internal/application/retrieval"
	"groupchat-ai-bot/internal/application/routing"
	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/infrastructure/embedding"
	"groupchat-ai-bot/internal/infrastructure/llm"
	"groupchat-ai-bot/internal/infrastructure/messaging"
	"groupchat-ai-bot/internal/infrastructure/persistence/milvus"
	"groupchat-ai-bot/internal/infrastructure/persistence/postgres"
	"groupchat-ai-bot/internal/infrastructure/persistence/redis"
	"groupchat-ai-bot/internal/infrastructure/ratelimit"
	"groupchat-ai-bot/internal/infrastructure/websearch"
	"groupchat-ai-bot/internal/infrastructure/whatsapp"
	"groupchat-ai-bot/internal/interfaces/http/handler"
	"groupchat-ai-bot/internal/interfaces/http/router"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting webhook-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 数据层
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Milvus 可选：连不上时检索降级为纯全文
	var vectorIndex retrieval.VectorIndex
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, hybrid search degrades to lexical only", "error", err)
		milvusClient = nil
	} else {
		defer func() { _ = milvusClient.Close() }()
		vectorIndex = milvus.NewRepository(milvusClient)
	}

	// 仓储
	groupRepo := postgres.NewGroupRepository(pgClient)
	memberRepo := postgres.NewMemberRepository(pgClient)
	messageRepo := postgres.NewMessageRepository(pgClient)

	// 网关客户端
	gateway := whatsapp.NewClient(&cfg.WhatsApp)

	// 限流后端：单实例用内存实现，多实例部署切 Redis
	var limiter routing.RateLimiter
	if cfg.Bot.RateLimiterBackend == "redis" {
		limiter = redis.NewRateLimiter(redisClient)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	// 成员校验直连网关活名册：安全判定不允许隔着缓存
	gate := membership.NewGate(memberRepo, gateway)
	engine := retrieval.NewEngine(vectorIndex, postgres.NewLexicalIndex(pgClient))

	// LLM 协作方
	factory := llm.NewEinoFactory(cfg)
	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}

	// 网页搜索兜底，未配置 API Key 时整体关闭
	var webAnswerer routing.WebAnswerer
	if cfg.WebSearch.APIKey != "" {
		webAnswerer = llm.NewWebAnswerer(factory, websearch.NewClient(&cfg.WebSearch))
	} else {
		log.Warn("web search api key not configured, fallback disabled")
	}

	botRouter := routing.NewRouter(
		routing.Config{
			SenderLimit: routing.RateWindow{
				Limit:  cfg.Bot.SenderRateLimit.Limit,
				Window: cfg.Bot.SenderRateLimit.Window,
			},
			GroupLimit: routing.RateWindow{
				Limit:  cfg.Bot.GroupRateLimit.Limit,
				Window: cfg.Bot.GroupRateLimit.Window,
			},
			SearchTopK:   cfg.Bot.SearchTopK,
			HistoryDepth: cfg.Bot.HistoryDepth,
		},
		limiter,
		gate,
		routing.NewTimeWindowResolver(),
		engine,
		llm.NewClassifier(factory),
		llm.NewRephraser(factory),
		embedding.NewQueryEmbedder(embedder),
		llm.NewAnswerer(factory),
		webAnswerer,
		llm.NewSummarizer(factory),
		groupRepo,
		messageRepo,
	)

	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))

	// 托管群里的群邀请链接巡查
	linkWatch := moderation.NewLinkWatch(groupRepo, llm.NewSpamDetector(factory), gateway)

	handlers := router.Handlers{
		Health:  handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Webhook: handler.NewWebhookHandler(botRouter, messageRepo, gateway, linkWatch, cfg.WhatsApp.BotJID, cfg.Bot.RouteTimeout),
		Auth:    handler.NewAuthHandler(&cfg.Security),
		Group:   handler.NewGroupHandler(groupRepo, memberRepo, gateway, whatsapp.NewCachedDirectory(gateway, redis.NewCache(redisClient)), postgres.NewTxManager(pgClient)),
		Job:     handler.NewJobHandler(producer, groupRepo),
	}

	r := router.New(cfg, handlers, redis.NewRateLimiter(redisClient))

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
