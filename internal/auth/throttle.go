package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
)

const (
	defaultLoginAttempts = 5
	defaultLoginLockout  = 15 * time.Minute
)

// LoginThrottle locks out an email and client address pair after too many
// failed logins inside the lockout window. Failures are counted in a limiter
// store, so redis-backed stores share the lockout across instances.
type LoginThrottle struct {
	failures *limiter.Limiter
}

func NewLoginThrottle(store limiter.Store, maxAttempts int, lockout time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = defaultLoginAttempts
	}
	if lockout <= 0 {
		lockout = defaultLoginLockout
	}
	rate := limiter.Rate{Period: lockout, Limit: int64(maxAttempts)}
	return &LoginThrottle{failures: limiter.New(store, rate)}
}

func throttleKey(email, clientIP string) string {
	return strings.ToLower(strings.TrimSpace(email)) + ":" + clientIP
}

// Locked reports whether the pair must wait, and for how long.
func (t *LoginThrottle) Locked(ctx context.Context, email, clientIP string) (bool, time.Duration, error) {
	state, err := t.failures.Peek(ctx, throttleKey(email, clientIP))
	if err != nil {
		return false, 0, fmt.Errorf("peek login failures: %w", err)
	}
	if state.Remaining > 0 {
		return false, 0, nil
	}
	retry := time.Until(time.Unix(state.Reset, 0))
	if retry < time.Second {
		retry = time.Second
	}
	return true, retry, nil
}

func (t *LoginThrottle) Fail(ctx context.Context, email, clientIP string) error {
	if _, err := t.failures.Increment(ctx, throttleKey(email, clientIP), 1); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// Succeed clears the failure count after a good login.
func (t *LoginThrottle) Succeed(ctx context.Context, email, clientIP string) error {
	if _, err := t.failures.Reset(ctx, throttleKey(email, clientIP)); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
