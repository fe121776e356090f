package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Empleaido-Core/internal/errors"
)

// RedisConfig 描述 Redis 限流器的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// counter 抽象出限流器用到的 Redis 命令，便于测试替换。
type counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) error
	ExpireAt(ctx context.Context, key string, at time.Time) error
	Close() error
}

type redisCounter struct {
	client *redis.Client
}

func (r redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r redisCounter) Decr(ctx context.Context, key string) error {
	return r.client.Decr(ctx, key).Err()
}

func (r redisCounter) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return r.client.ExpireAt(ctx, key, at).Err()
}

func (r redisCounter) Close() error {
	return r.client.Close()
}

// RedisLimiter 使用 INCR 在多个实例之间共享每日计数。
type RedisLimiter struct {
	counter counter
	policy  Policy
	prefix  string
	now     func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter 连接 Redis 并创建限流器。
func NewRedisLimiter(cfg RedisConfig, policy Policy, opts ...Option) (*RedisLimiter, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisLimiter(redisCounter{client: client}, cfg.KeyPrefix, policy, opts...), nil
}

func newRedisLimiter(c counter, prefix string, policy Policy, opts ...Option) *RedisLimiter {
	if prefix == "" {
		prefix = "empleaido:quota"
	}
	o := buildOptions(opts)
	return &RedisLimiter{counter: c, policy: policy, prefix: prefix, now: o.now}
}

// Allow 实现 Limiter 接口。超出上限时回退本次计数。
func (l *RedisLimiter) Allow(ctx context.Context, userID, tier string) (Decision, error) {
	tier, limit := l.policy.Resolve(tier)
	day, reset := window(l.now())
	key := fmt.Sprintf("%s:%s:%s", l.prefix, day, userID)

	used, err := l.counter.Incr(ctx, key)
	if err != nil {
		return Decision{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 计数失败")
	}
	if used == 1 {
		// 多保留一小时，避免时钟偏差导致提前清零。
		if err := l.counter.ExpireAt(ctx, key, reset.Add(time.Hour)); err != nil {
			return Decision{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "设置配额过期时间失败")
		}
	}

	d := Decision{Tier: tier, Limit: limit, Used: int(used), ResetAt: reset}
	if limit > 0 && int(used) > limit {
		if err := l.counter.Decr(ctx, key); err != nil {
			return Decision{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "回退配额计数失败")
		}
		d.Used = limit
		return d, nil
	}
	d.Allowed = true
	if limit > 0 {
		d.Remaining = limit - int(used)
	}
	return d, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLimiter) Close() error {
	if l == nil || l.counter == nil {
		return nil
	}
	return l.counter.Close()
}
