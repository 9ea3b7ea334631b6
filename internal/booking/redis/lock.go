package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"buzz/internal/logger"
)

// Redis serializes bursts of submissions against capacity-limited ticket
// types. The database capacity check is still authoritative; these locks
// keep concurrent submits from piling onto the same rows.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Redis{Client: client, LockTTL: lockTTL, Logger: log}
}

func claimKey(ticketTypeID string) string {
	return "ticket_type_claim:" + ticketTypeID
}

// LockClaim takes a claim lock on one ticket type for a booking.
func (r *Redis) LockClaim(ticketTypeID, bookingID string) (bool, error) {
	return r.Client.SetNX(context.Background(), claimKey(ticketTypeID), bookingID, r.LockTTL).Result()
}

// UnlockClaim releases a claim lock if this booking still owns it.
func (r *Redis) UnlockClaim(ticketTypeID, bookingID string) error {
	ctx := context.Background()
	key := claimKey(ticketTypeID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // expired or already released
	}
	if err != nil {
		return err
	}
	if val == bookingID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// LockClaims locks a set of ticket types, rolling back on any failure.
func (r *Redis) LockClaims(ticketTypeIDs []string, bookingID string) (bool, error) {
	locked := []string{}
	for _, id := range ticketTypeIDs {
		ok, err := r.LockClaim(id, bookingID)
		if err != nil || !ok {
			for _, l := range locked {
				_ = r.UnlockClaim(l, bookingID)
			}
			if err != nil {
				return false, fmt.Errorf("claim lock on ticket type %s: %w", id, err)
			}
			return false, nil
		}
		locked = append(locked, id)
	}
	return true, nil
}

// UnlockClaims releases a set of claim locks, returning the first error.
func (r *Redis) UnlockClaims(ticketTypeIDs []string, bookingID string) error {
	var firstErr error
	for _, id := range ticketTypeIDs {
		if err := r.UnlockClaim(id, bookingID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
