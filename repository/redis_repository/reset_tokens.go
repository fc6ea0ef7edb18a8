package redis_repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound means the reset token is unknown or already redeemed.
var ErrTokenNotFound = errors.New("reset token not found or expired")

// ResetTokens stores single-use password reset tokens with a TTL.
type ResetTokens struct {
	Rdb *redis.Client
	TTL time.Duration
}

func NewResetTokens(rdb *redis.Client, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ResetTokens{Rdb: rdb, TTL: ttl}
}

// Issue creates a fresh token mapped to the email.
func (r *ResetTokens) Issue(ctx context.Context, email string) (string, error) {
	token := uuid.NewString()
	if err := r.Rdb.Set(ctx, "reset:"+token, email, r.TTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem consumes the token and returns the email it was issued for.
// GetDel makes the token single-use even under concurrent redeems.
func (r *ResetTokens) Redeem(ctx context.Context, token string) (string, error) {
	email, err := r.Rdb.GetDel(ctx, "reset:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return email, nil
}
