package packs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/halcyonlabs/patternflow/core"
)

const (
	packKeyPrefix = "patternflow:pack:"
	dateKeyPrefix = "patternflow:pack:date:"
	auditListKey  = "patternflow:pack:audit"
)

// RedisStore is the Redis-backed Store for multi-process deployments. Packs
// are JSON values under patternflow:pack:<id>; per-date terminal pointers
// live under patternflow:pack:date:<asof>; the audit log is an append-only
// list. Supersede runs as a WATCH transaction over both pack keys and the
// date pointer, which gives the linearizable behavior the store contract
// requires.
type RedisStore struct {
	client *redis.Client
	logger core.Logger
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisStoreLogger sets the logger.
func WithRedisStoreLogger(logger core.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore connects to Redis and verifies the connection before
// returning, so wiring errors surface at startup rather than first use.
func NewRedisStore(redisURL string, opts ...RedisStoreOption) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		// Accept bare host:port the way the rest of the runtime does.
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pack store redis connection failed at %s: %w", opt.Addr, err)
	}

	s := &RedisStore{client: client, logger: &core.NoOpLogger{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func packKey(id string) string   { return packKeyPrefix + id }
func dateKey(asof string) string { return dateKeyPrefix + asof }

func (s *RedisStore) loadPack(ctx context.Context, id string) (*Pack, error) {
	data, err := s.client.Get(ctx, packKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("pack %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pack %s: redis get: %w", id, core.Transient(err))
	}
	var p Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pack %s: corrupt record: %w", id, err)
	}
	return &p, nil
}

// GetPack returns the pack by id.
func (s *RedisStore) GetPack(ctx context.Context, packID string) (*Pack, error) {
	if err := ValidatePackID(packID); err != nil {
		return nil, err
	}
	return s.loadPack(ctx, packID)
}

// GetLatest returns the terminal pack for a date via the date pointer.
func (s *RedisStore) GetLatest(ctx context.Context, asofDate string) (*Pack, error) {
	id, err := s.client.Get(ctx, dateKey(asofDate)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("date %s: %w", asofDate, ErrNoPackForDate)
	}
	if err != nil {
		return nil, fmt.Errorf("date %s: redis get: %w", asofDate, core.Transient(err))
	}
	return s.loadPack(ctx, id)
}

// CreatePack inserts a new D0 pack, guarded by SETNX on the date pointer so
// two concurrent creators cannot both win.
func (s *RedisStore) CreatePack(ctx context.Context, asofDate string, sources []string, hash string) (*Pack, error) {
	pack, err := NewPack(asofDate, sources, hash)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(pack)
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, dateKey(asofDate), pack.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("pack %s: redis setnx: %w", pack.ID, core.Transient(err))
	}
	if !ok {
		return nil, fmt.Errorf("date %s: %w", asofDate, ErrDuplicatePack)
	}
	if err := s.client.Set(ctx, packKey(pack.ID), data, 0).Err(); err != nil {
		// Roll the pointer back so the date is not left dangling.
		s.client.Del(ctx, dateKey(asofDate))
		return nil, fmt.Errorf("pack %s: redis set: %w", pack.ID, core.Transient(err))
	}

	s.logger.Info("Pricing pack created", map[string]interface{}{
		"operation": "pack_create",
		"pack_id":   pack.ID,
		"asof_date": asofDate,
	})
	return pack, nil
}

// Supersede runs the link + insert + audit append in one WATCH transaction.
// Concurrent supersedes of the same pack race on the watched key; the loser
// retries, observes SupersededBy set, and fails with ErrAlreadySuperseded.
func (s *RedisStore) Supersede(ctx context.Context, oldPackID string, data NewPackData, reason string) (*Pack, *Pack, error) {
	if err := ValidatePackID(oldPackID); err != nil {
		return nil, nil, err
	}

	var oldOut, newOut *Pack

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, packKey(oldPackID)).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("pack %s: %w", oldPackID, ErrNotFound)
		}
		if err != nil {
			return core.Transient(err)
		}
		var old Pack
		if err := json.Unmarshal(raw, &old); err != nil {
			return fmt.Errorf("pack %s: corrupt record: %w", oldPackID, err)
		}
		if old.SupersededBy != "" {
			return fmt.Errorf("pack %s superseded by %s: %w", oldPackID, old.SupersededBy, ErrAlreadySuperseded)
		}
		if data.Hash == "" || data.Hash == old.Hash {
			return fmt.Errorf("pack %s: %w", oldPackID, ErrIdenticalHash)
		}

		newID := NextSupersedeID(oldPackID)
		sources := data.Sources
		if len(sources) == 0 {
			sources = old.Sources
		}
		newPack := &Pack{
			ID:                   newID,
			AsOfDate:             old.AsOfDate,
			Hash:                 data.Hash,
			Sources:              append([]string(nil), sources...),
			IsFresh:              true,
			CreatedAt:            time.Now().UTC(),
			ReconciliationPassed: data.ReconciliationPassed,
		}
		old.SupersededBy = newID

		oldData, err := json.Marshal(&old)
		if err != nil {
			return err
		}
		newData, err := json.Marshal(newPack)
		if err != nil {
			return err
		}
		auditData, err := json.Marshal(AuditEntry{
			OldPackID: oldPackID,
			NewPackID: newID,
			Reason:    reason,
			At:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, packKey(oldPackID), oldData, 0)
			pipe.Set(ctx, packKey(newID), newData, 0)
			pipe.Set(ctx, dateKey(old.AsOfDate), newID, 0)
			pipe.RPush(ctx, auditListKey, auditData)
			return nil
		})
		if err != nil {
			return core.Transient(err)
		}

		oldOut = &old
		newOut = newPack
		return nil
	}

	// Bounded optimistic retries on WATCH conflicts.
	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, txn, packKey(oldPackID))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("Pricing pack superseded", map[string]interface{}{
			"operation":   "pack_supersede",
			"old_pack_id": oldPackID,
			"new_pack_id": newOut.ID,
			"reason":      reason,
		})
		return oldOut, newOut, nil
	}
	return nil, nil, fmt.Errorf("pack %s: supersede transaction conflicted repeatedly: %w",
		oldPackID, core.Transient(redis.TxFailedErr))
}

// ListChain walks supersede edges from the root.
func (s *RedisStore) ListChain(ctx context.Context, rootPackID string) ([]string, error) {
	if err := ValidatePackID(rootPackID); err != nil {
		return nil, err
	}
	var chain []string
	id := rootPackID
	for id != "" {
		p, err := s.loadPack(ctx, id)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, id)
		id = p.SupersededBy
	}
	return chain, nil
}

// AuditLog returns all supersede audit entries, oldest first.
func (s *RedisStore) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	raws, err := s.client.LRange(ctx, auditListKey, 0, -1).Result()
	if err != nil {
		return nil, core.Transient(err)
	}
	entries := make([]AuditEntry, 0, len(raws))
	for _, raw := range raws {
		var e AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
