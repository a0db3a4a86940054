// Package main 异步任务执行器入口（summary-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat-ai-bot/internal/application/ingest"
	"groupchat-ai-bot/internal/application/routing"
	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/internal/infrastructure/embedding"
	"groupchat-ai-bot/internal/infrastructure/llm"
	"groupchat-ai-bot/internal/infrastructure/messaging"
	"groupchat-ai-bot/internal/infrastructure/persistence/milvus"
	"groupchat-ai-bot/internal/infrastructure/persistence/postgres"
	"groupchat-ai-bot/internal/infrastructure/persistence/redis"
	"groupchat-ai-bot/internal/infrastructure/whatsapp"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "summary-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

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

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to init milvus", err)
	}
	defer func() { _ = milvusClient.Close() }()

	groupRepo := postgres.NewGroupRepository(pgClient)
	memberRepo := postgres.NewMemberRepository(pgClient)
	messageRepo := postgres.NewMessageRepository(pgClient)
	topicRepo := postgres.NewTopicRepository(pgClient)

	gateway := whatsapp.NewClient(&cfg.WhatsApp)
	factory := llm.NewEinoFactory(cfg)
	summarizer := llm.NewSummarizer(factory)
	splitter := llm.NewTopicSplitter(factory)
	resolver := routing.NewTimeWindowResolver()

	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}
	indexer := ingest.NewIndexer(embedder, milvus.NewRepository(milvusClient), topicRepo, cfg.Embedding.BatchSize)

	consumerCfg := func(stream messaging.Stream, group messaging.ConsumerGroup) messaging.ConsumerConfig {
		return messaging.ConsumerConfig{
			Stream:        stream,
			Group:         group,
			ConsumerName:  hostnameConsumerName(),
			BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
			ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
			RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
			Backoff:       messaging.DefaultBackoffConfig(),
		}
	}

	// 群摘要任务
	summaryConsumer := messaging.NewConsumer(redisClient.Redis(),
		consumerCfg(messaging.StreamSummaryJobs, messaging.ConsumerGroupSummaryWorker))
	summaryConsumer.RegisterHandler("group_summary", func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.SummaryJobMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		group, err := groupRepo.GetByJID(ctx, payload.GroupJID)
		if err != nil {
			return err
		}
		if !group.IsManaged() {
			// 托管状态在任务排队后被关掉，丢弃即可
			return nil
		}

		// 消息条数上限跟在群消息路径同一套窗口规则
		window := resolver.Resolve(payload.Until.Sub(payload.Since))
		messages, err := messageRepo.ListByWindow(ctx, payload.GroupJID, payload.Since, payload.Until, window.MessageCap)
		if err != nil {
			return err
		}
		metrics.SummaryMessagesFetched.Observe(float64(len(messages)))

		optedOut := map[string]bool{}
		if members, err := memberRepo.ListByGroup(ctx, payload.GroupJID); err == nil {
			for _, m := range members {
				if m.OptedOut {
					optedOut[m.SenderJID] = true
				}
			}
		}

		summary, err := summarizer.SummarizeWithOptOut(ctx, group, messages, optedOut)
		if err != nil {
			metrics.SummariesTotal.WithLabelValues("failed").Inc()
			return err
		}

		target := payload.TargetJID
		if target == "" {
			target = payload.GroupJID
		}
		if err := gateway.SendText(ctx, target, summary); err != nil {
			metrics.SummariesTotal.WithLabelValues("delivery_failed").Inc()
			return err
		}
		metrics.SummariesTotal.WithLabelValues("delivered").Inc()

		return groupRepo.TouchSummarySync(ctx, payload.GroupJID)
	})

	// 话题切分入库任务
	ingestConsumer := messaging.NewConsumer(redisClient.Redis(),
		consumerCfg(messaging.StreamTopicIngest, messaging.ConsumerGroupIngestWorker))
	ingestConsumer.RegisterHandler("topic_ingest", func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.TopicIngestMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		messages, err := messageRepo.ListByWindow(ctx, payload.GroupJID, payload.Since, payload.Until, 0)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		inputs, err := splitter.Split(ctx, messages)
		if err != nil {
			return err
		}

		_, err = indexer.IndexTopics(ctx, payload.GroupJID, inputs)
		return err
	})

	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))

	// 定时摘要：按固定间隔给每个托管群排一个摘要任务
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if cfg.Bot.DailySummary.Enabled {
		go runSummaryScheduler(schedulerCtx, cfg.Bot.DailySummary.Interval, groupRepo, producer)
	}

	if err := summaryConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start summary consumer", err)
	}
	if err := ingestConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start ingest consumer", err)
	}

	log := logger.FromContext(ctx)
	log.Info("summary-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("summary-worker shutting down")
	stopScheduler()
	summaryConsumer.Stop()
	ingestConsumer.Stop()
}

// runSummaryScheduler 周期性为托管群排摘要任务
// 多副本同时触发也无妨：下游对同一窗口生成的摘要是幂等内容，
// 顶多重复投递一次
func runSummaryScheduler(ctx context.Context, interval time.Duration, groups repository.GroupRepository, producer *messaging.Producer) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		managed, err := groups.ListManaged(ctx)
		if err != nil {
			logger.Error(ctx, "定时摘要读取托管群失败", err)
			continue
		}

		until := time.Now()
		since := until.Add(-interval)
		for _, g := range managed {
			job := &messaging.SummaryJobMessage{
				JobID:    uuid.NewString(),
				GroupJID: g.JID,
				Since:    since,
				Until:    until,
				// 配置了转发目标的群把摘要投到目标会话
				TargetJID: g.ForwardJID,
			}
			if _, err := producer.PublishSummaryJob(ctx, job); err != nil {
				logger.Error(ctx, "定时摘要任务排队失败", err, "group_jid", g.JID)
			}
		}
	}
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
