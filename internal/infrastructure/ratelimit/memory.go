// Package ratelimit 提供滑动窗口限流器实现
package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// ErrEmptyKey 限流键不能为空，空键会把所有来源混进同一个窗口
var ErrEmptyKey = errors.New("ratelimit: empty key")

// MemoryLimiter 进程内滑动窗口限流器
// 按键分片加锁，不同键的更新互不阻塞；
// 每个键维护窗口内的事件时间戳日志，反映真实发送顺序
type MemoryLimiter struct {
	shards [shardCount]*shard
	now    func() time.Time
}

type shard struct {
	mu   sync.Mutex
	logs map[string][]time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{logs: make(map[string][]time.Time)}
	}
	return l
}

func (l *MemoryLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Allow 检查并记录一次事件
// 窗口内事件数达到 limit 时拒绝，被拒绝的事件不计入日志
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if limit <= 0 {
		return false, nil
	}

	now := l.now()
	cutoff := now.Add(-window)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]

	// 丢弃窗口外的事件，日志按时间递增，找到首个窗口内事件即可
	idx := 0
	for idx < len(log) && !log[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		log = append(log[:0], log[idx:]...)
	}

	if len(log) >= limit {
		s.logs[key] = log
		return false, nil
	}

	s.logs[key] = append(log, now)
	return true, nil
}

// Remaining 返回键在当前窗口的剩余配额
func (l *MemoryLimiter) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	now := l.now()
	cutoff := now.Add(-window)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, ts := range s.logs[key] {
		if ts.After(cutoff) {
			count++
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset 清空键的事件日志
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, key)
	return nil
}
