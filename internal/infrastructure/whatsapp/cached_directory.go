package whatsapp

import (
	"context"
	"encoding/json"
	"time"

	"groupchat-ai-bot/internal/infrastructure/persistence/redis"
)

// directoryTTL 群目录缓存时长
// 只服务管理端的群列表展示，成员校验等安全判定不走这里
const directoryTTL = 5 * time.Minute

// CachedDirectory 带 Redis 缓存的群目录读取
// 管理端每次打开群列表都会拉全量群信息，缓存压掉网关放大
type CachedDirectory struct {
	client *Client
	cache  *redis.Cache
}

// NewCachedDirectory 创建带缓存的群目录读取器
func NewCachedDirectory(client *Client, cache *redis.Cache) *CachedDirectory {
	return &CachedDirectory{client: client, cache: cache}
}

// ListGroups 读取机器人所在的全部群，优先命中缓存
func (d *CachedDirectory) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	raw, err := d.cache.GetOrLoad(ctx, redis.BuildGroupDirectoryKey(), directoryTTL, func() (interface{}, error) {
		return d.client.ListGroups(ctx)
	})
	if err != nil {
		return nil, err
	}

	var groups []GroupInfo
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Invalidate 群信息同步后让目录缓存失效
func (d *CachedDirectory) Invalidate(ctx context.Context) error {
	return d.cache.Delete(ctx, redis.BuildGroupDirectoryKey())
}
