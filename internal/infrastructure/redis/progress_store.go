package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
)

var _ ports.ProgressStore = (*RedisProgressStore)(nil)

// RedisProgressStore keeps each record as one JSON string, so a write is a
// single SET and can never be observed half applied.
type RedisProgressStore struct {
	client *redis.Client
}

func NewRedisProgressStore(client *redis.Client) *RedisProgressStore {
	return &RedisProgressStore{client: client}
}

type archivedEntry struct {
	Record     domain.ProgressRecord `json:"record"`
	Reason     string                `json:"reason"`
	ArchivedAt time.Time             `json:"archived_at"`
}

// Load reads and decodes the owner's record
func (s *RedisProgressStore) Load(ctx context.Context, ownerID string) (*domain.ProgressRecord, error) {
	raw, err := s.client.Get(ctx, progressKey(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewError(domain.CodeNotFound, "", "no progress for owner "+ownerID)
		}
		return nil, err
	}

	var rec domain.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save writes the record if it is newer than the stored one. WATCH makes
// the version check and the SET one atomic step.
func (s *RedisProgressStore) Save(ctx context.Context, record *domain.ProgressRecord) error {
	key := progressKey(record.OwnerID)
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := loadTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if prev != nil && prev.Version >= record.Version {
			return domain.VersionConflict(record.OwnerID, prev.Version, record.Version)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	return watchErr(err, record)
}

// Reset pushes the current record onto the archive list and writes fresh,
// under the same version rule as Save.
func (s *RedisProgressStore) Reset(ctx context.Context, fresh *domain.ProgressRecord, reason string) error {
	key := progressKey(fresh.OwnerID)
	payload, err := json.Marshal(fresh)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := loadTx(ctx, tx, key)
		if err != nil {
			return err
		}

		var entry []byte
		if prev != nil {
			if prev.Version >= fresh.Version {
				return domain.VersionConflict(fresh.OwnerID, prev.Version, fresh.Version)
			}
			entry, err = json.Marshal(archivedEntry{Record: *prev, Reason: reason, ArchivedAt: time.Now().UTC()})
			if err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if entry != nil {
				pipe.LPush(ctx, archiveKey(fresh.OwnerID), entry)
			}
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	return watchErr(err, fresh)
}

// loadTx reads the watched record, or nil when there is none.
func loadTx(ctx context.Context, tx *redis.Tx, key string) (*domain.ProgressRecord, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec domain.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// watchErr reports a write that lost the WATCH race as a version conflict:
// another writer changed the record between the check and the SET.
func watchErr(err error, record *domain.ProgressRecord) error {
	if errors.Is(err, redis.TxFailedErr) {
		return &domain.Error{
			Code:    domain.CodeVersionConflict,
			Message: "progress of " + record.OwnerID + " changed concurrently",
			Err:     err,
		}
	}
	return err
}

// History returns archived records, newest first
func (s *RedisProgressStore) History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error) {
	raw, err := s.client.LRange(ctx, archiveKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.ArchivedProgress, 0, len(raw))
	for _, item := range raw {
		var entry archivedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, err
		}
		out = append(out, domain.ArchivedProgress{
			Record:     entry.Record,
			Reason:     entry.Reason,
			ArchivedAt: entry.ArchivedAt,
		})
	}
	return out, nil
}
