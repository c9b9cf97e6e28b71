package api

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobportal/internal/errcode"
)

var (
	ErrTooManyLogins = errcode.New(errcode.RateLimited, "Too many login attempts. Please try again later.")
	ErrAccountLocked = errcode.New(errcode.RateLimited, "Account temporarily locked. Please try again later.")
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// loginStore is the subset of the redis client the login limiter uses.
type loginStore interface {
	redisRateCounter
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// loginLimiter 对登录做每小时限流与失败锁定。nil 接收者表示未配置 Redis，全部放行。
// Redis 出错时同样放行，登录不依赖 Redis 可用。
type loginLimiter struct {
	store     loginStore
	perHour   int
	threshold int
	lockTTL   time.Duration
	now       func() time.Time
}

func newLoginLimiter(store loginStore, perHour, threshold int, lockTTL time.Duration) *loginLimiter {
	return &loginLimiter{store: store, perHour: perHour, threshold: threshold, lockTTL: lockTTL, now: time.Now}
}

func (l *loginLimiter) Allow(ctx context.Context, ip, email string) error {
	if l == nil {
		return nil
	}
	email = strings.ToLower(email)

	if l.perHour > 0 {
		rateKey := "rate:login:" + ip + ":" + email + ":" + l.now().UTC().Format("2006010215")
		if count, err := incrWithTTL(ctx, l.store, rateKey, time.Hour); err == nil && count > int64(l.perHour) {
			return ErrTooManyLogins
		}
	}

	if ttl, err := l.store.TTL(ctx, "lock:login:"+email).Result(); err == nil && ttl > 0 {
		return ErrAccountLocked
	}
	return nil
}

func (l *loginLimiter) Failed(ctx context.Context, email string) {
	if l == nil || l.threshold <= 0 {
		return
	}
	email = strings.ToLower(email)
	count, err := incrWithTTL(ctx, l.store, "lock:login:fail:"+email, l.lockTTL)
	if err != nil {
		return
	}
	if count >= int64(l.threshold) {
		_ = l.store.Set(ctx, "lock:login:"+email, "1", l.lockTTL).Err()
	}
}

func (l *loginLimiter) Succeeded(ctx context.Context, email string) {
	if l == nil {
		return
	}
	_ = l.store.Del(ctx, "lock:login:fail:"+strings.ToLower(email)).Err()
}
