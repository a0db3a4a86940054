// Package main 系统初始化入口：建表、建向量集合、首次同步群列表
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/infrastructure/persistence/milvus"
	"groupchat-ai-bot/internal/infrastructure/persistence/postgres"
	"groupchat-ai-bot/internal/infrastructure/whatsapp"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 建表与全文索引
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	if err := pgClient.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Postgres schema ready.")

	// 3. 建向量集合
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Fatalf("failed to init milvus: %v", err)
	}
	defer func() { _ = milvusClient.Close() }()

	if err := milvus.NewRepository(milvusClient).EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}
	fmt.Println("Milvus collection ready.")

	// 4. 首次同步群列表（失败不阻塞，之后可在管理接口重试）
	gateway := whatsapp.NewClient(&cfg.WhatsApp)
	groupRepo := postgres.NewGroupRepository(pgClient)

	infos, err := gateway.ListGroups(ctx)
	if err != nil {
		fmt.Printf("Skipping group sync, gateway unavailable: %v\n", err)
	} else {
		for _, info := range infos {
			if err := groupRepo.Upsert(ctx, &entity.Group{
				JID:      info.JID,
				Name:     info.Name,
				OwnerJID: info.OwnerJID,
			}); err != nil {
				log.Fatalf("failed to save group %s: %v", info.JID, err)
			}
		}
		fmt.Printf("Synced %d groups from gateway.\n", len(infos))
	}

	fmt.Println("Bootstrap completed successfully.")
}
