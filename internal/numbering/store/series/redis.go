package series

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// Redis keeps the hot counter in Redis while series metadata lives elsewhere.
// WriteLast uses WATCH + MULTI so the commit aborts when another writer
// touched the key between read and write, preserving CAS semantics across
// processes.
//
// Counters must be seeded with SeedCounter when the series is created;
// ReadLast on an unseeded key reports ErrNotFound rather than inventing a
// zero, so a misconfigured deployment cannot silently restart a sequence.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func counterKey(id domain.SeriesID) string {
	return "facturo:series:" + id.String() + ":last"
}

// SeedCounter initializes the counter key for a new series. Fails with
// ErrConflict when the key already exists.
func (s *Redis) SeedCounter(ctx context.Context, id domain.SeriesID, last int64) error {
	ok, err := s.client.SetNX(ctx, counterKey(id), last, 0).Result()
	if err != nil {
		return fmt.Errorf("seed series counter: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Redis) ReadLast(ctx context.Context, id domain.SeriesID) (int64, error) {
	val, err := s.client.Get(ctx, counterKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("read last number: %w", err)
	}
	last, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stored counter %q is not an integer: %w", val, err)
	}
	return last, nil
}

func (s *Redis) WriteLast(ctx context.Context, id domain.SeriesID, next, expectedPrev int64) error {
	key := counterKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sentinel.ErrNotFound
			}
			return err
		}
		current, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("stored counter %q is not an integer: %w", val, err)
		}
		if current != expectedPrev {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// Another writer advanced the key inside the WATCH window.
			return sentinel.ErrConflict
		}
		return err
	}
	return nil
}
