// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. It guards chat sends, logins and OTP attempts.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a policy: key prefix, max count per window, window length.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

var (
	// RuleChatMessage allows 30 messages per 10 seconds per user.
	RuleChatMessage = Rule{Key: "rl:chat:", Limit: 30, Window: 10 * time.Second}

	// RuleLogin allows 10 login attempts per 15 minutes per email.
	RuleLogin = Rule{Key: "rl:login:", Limit: 10, Window: 15 * time.Minute}

	// RuleOTP allows 5 verification attempts per 10 minutes per email.
	RuleOTP = Rule{Key: "rl:otp:", Limit: 5, Window: 10 * time.Minute}
)

type Limiter struct {
	client *redis.Client
	log    *zap.Logger
}

func NewLimiter(client *redis.Client, log *zap.Logger) *Limiter {
	return &Limiter{client: client, log: log.Named("ratelimit")}
}

// Allow increments the identifier's counter for rule and reports whether it
// is still within the limit. Redis errors fail open: the call is allowed and
// the error is returned for the caller to log if it cares.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("incr failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn("expire failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the key would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// Reset clears the identifier's window, e.g. after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier string, rule Rule) error {
	return l.client.Del(ctx, rule.Key+identifier).Err()
}
