package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "Empleaido-Core/internal/errors"
)

// 内置套餐名称。
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// DefaultTiers 返回各套餐每日执行次数上限，0 表示不限。
func DefaultTiers() map[string]int {
	return map[string]int{TierFree: 100, TierPro: 1000, TierUnlimited: 0}
}

// ErrRateLimited 表示当天的执行配额已用完。
var ErrRateLimited = xerrors.New(xerrors.CodeRateLimited, "Daily limit exceeded. Upgrade to Pro for more executions.")

// Decision 描述一次配额判定。
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Tier      string    `json:"tier"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Unlimited 判断该判定是否来自不限量套餐。
func (d Decision) Unlimited() bool { return d.Limit == 0 }

// Limiter 对用户每日执行次数计数。允许时消耗一次配额，拒绝时不消耗。
type Limiter interface {
	Allow(ctx context.Context, userID, tier string) (Decision, error)
	Close() error
}

// Policy 把套餐名解析为上限。未知套餐按 free 处理。
type Policy struct {
	tiers map[string]int
}

// NewPolicy 以 DefaultTiers 为基础叠加自定义上限。
func NewPolicy(tiers map[string]int) Policy {
	merged := DefaultTiers()
	for name, limit := range tiers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || limit < 0 {
			continue
		}
		merged[name] = limit
	}
	return Policy{tiers: merged}
}

// Resolve 返回规范化后的套餐名和上限。
func (p Policy) Resolve(tier string) (string, int) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if limit, ok := p.tiers[tier]; ok {
		return tier, limit
	}
	return TierFree, p.tiers[TierFree]
}

// window 返回 now 所在自然日的起点与下一日起点（UTC）。
func window(now time.Time) (string, time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	return day.Format("20060102"), day.Add(24 * time.Hour)
}

// MemoryLimiter 是单进程计数实现。
type MemoryLimiter struct {
	policy Policy
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]int
	day    string
}

var _ Limiter = (*MemoryLimiter)(nil)

// Option 定义限流器的可选配置。
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 替换时钟，便于测试跨日重置。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewMemoryLimiter 创建内存限流器。
func NewMemoryLimiter(policy Policy, opts ...Option) *MemoryLimiter {
	o := buildOptions(opts)
	return &MemoryLimiter{policy: policy, now: o.now, counts: make(map[string]int)}
}

// Allow 实现 Limiter 接口。
func (m *MemoryLimiter) Allow(_ context.Context, userID, tier string) (Decision, error) {
	tier, limit := m.policy.Resolve(tier)
	day, reset := window(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if day != m.day {
		m.counts = make(map[string]int)
		m.day = day
	}
	used := m.counts[userID]
	d := Decision{Tier: tier, Limit: limit, Used: used, ResetAt: reset}
	if limit > 0 && used >= limit {
		return d, nil
	}
	used++
	m.counts[userID] = used
	d.Allowed = true
	d.Used = used
	if limit > 0 {
		d.Remaining = limit - used
	}
	return d, nil
}

// Close 实现 Limiter 接口。
func (m *MemoryLimiter) Close() error { return nil }
