// Package cache 提供 Redis 缓存操作的封装
// 处理消息列表缓存、CSV 图表、限流计数、JWT 黑名单等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-gateway/internal/config"
	"chat-gateway/internal/model"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client     *redis.Client // Redis 客户端实例
	historyTTL time.Duration // 消息列表缓存时间
	plotsTTL   time.Duration // 图表保留时间
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, cfg.Redis.HistoryTTL, cfg.Redis.PlotsTTL), nil
}

// New 使用已有的客户端创建缓存实例
func New(client *redis.Client, historyTTL, plotsTTL time.Duration) *RedisCache {
	if historyTTL <= 0 {
		historyTTL = 10 * time.Minute
	}
	if plotsTTL <= 0 {
		plotsTTL = time.Hour
	}
	return &RedisCache{client: client, historyTTL: historyTTL, plotsTTL: plotsTTL}
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 检查 Redis 连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== 消息列表缓存 ====================
// 读多写少：GET /sessions/{id}/messages 先读缓存，写消息时删除

func messagesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

// GetMessages 获取缓存的消息列表
// 返回:
//   - []model.Message: 消息列表
//   - bool: 是否命中缓存
//   - error: Redis 操作错误
func (c *RedisCache) GetMessages(ctx context.Context, sessionID string) ([]model.Message, bool, error) {
	data, err := c.client.Get(ctx, messagesKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		// 缓存内容损坏，当作未命中
		return nil, false, nil
	}
	return messages, true, nil
}

// SetMessages 缓存消息列表
func (c *RedisCache) SetMessages(ctx context.Context, sessionID string, messages []model.Message) error {
	if messages == nil {
		messages = []model.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, messagesKey(sessionID), data, c.historyTTL).Err()
}

// InvalidateMessages 删除消息列表缓存
func (c *RedisCache) InvalidateMessages(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, messagesKey(sessionID)).Err()
}

// ==================== CSV 图表 ====================
// 每个会话一个 List，分析开始前清空，plotChart 每次调用追加一张

func plotsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:plots", sessionID)
}

// SetPlots 覆盖会话的图表
func (c *RedisCache) SetPlots(ctx context.Context, sessionID string, plots []model.Plot) error {
	key := plotsKey(sessionID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, p := range plots {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key, data)
	}
	if len(plots) > 0 {
		pipe.Expire(ctx, key, c.plotsTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetPlots 获取会话最近一次分析生成的图表
func (c *RedisCache) GetPlots(ctx context.Context, sessionID string) ([]model.Plot, error) {
	items, err := c.client.LRange(ctx, plotsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	plots := make([]model.Plot, 0, len(items))
	for _, item := range items {
		var p model.Plot
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue // 跳过无效的值
		}
		plots = append(plots, p)
	}
	return plots, nil
}

// ClearPlots 清除会话的图表
func (c *RedisCache) ClearPlots(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, plotsKey(sessionID)).Err()
}

// ==================== 限流 ====================

// tokenBucketScript 令牌桶，读取、补充、扣减在一次脚本调用内完成
// KEYS[1]: 桶的 key
// ARGV: 每秒补充数, 容量, 当前毫秒时间戳, 过期毫秒数
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
tokens = math.min(burst, tokens + math.max(0, now - ts) * rate / 1000)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// AllowRequest 令牌桶限流，与进程内的 x/time/rate 语义一致
// 参数:
//   - rps: 每秒补充的令牌数
//   - burst: 桶容量
//
// 返回:
//   - bool: 是否放行
//   - error: Redis 错误
func (c *RedisCache) AllowRequest(ctx context.Context, key string, rps, burst int) (bool, error) {
	return c.allowAt(ctx, key, rps, burst, time.Now())
}

func (c *RedisCache) allowAt(ctx context.Context, key string, rps, burst int, now time.Time) (bool, error) {
	if rps <= 0 || burst <= 0 {
		return false, fmt.Errorf("invalid rate limit: rps=%d burst=%d", rps, burst)
	}
	// 桶从空到满所需的时间之后，key 就没有保留的必要
	ttl := (time.Duration(burst)*time.Second/time.Duration(rps) + time.Second).Milliseconds()
	allowed, err := tokenBucketScript.Run(ctx, c.client, []string{"rate_limit:" + key},
		rps, burst, now.UnixMilli(), ttl).Int()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

// ==================== JWT 黑名单 ====================
// 用于实现 Token 强制失效（登出）功能

// BlacklistToken 将 Token 加入黑名单
// TTL 为 Token 的剩余有效期，过期后自动删除
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}
