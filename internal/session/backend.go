package session

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kimhsiao/fitnix/console/internal/crypto"
	"github.com/kimhsiao/fitnix/console/internal/db"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
)

// MemoryBackend keeps the session in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (b *MemoryBackend) Load(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *MemoryBackend) Save(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		b.values[k] = v
	}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.values, k)
	}
	return nil
}

// SQLiteBackend stores the session in the session_kv table of the console
// database.
type SQLiteBackend struct {
	handle *db.Handle
	now    func() time.Time
}

// NewSQLiteBackend creates a backend over the shared database handle.
func NewSQLiteBackend(handle *db.Handle) *SQLiteBackend {
	return &SQLiteBackend{handle: handle, now: time.Now}
}

func (b *SQLiteBackend) conn(ctx context.Context) (*db.DB, error) {
	conn, err := b.handle.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to open session store", err)
	}
	return conn, nil
}

func (b *SQLiteBackend) Load(ctx context.Context, key string) (string, bool, error) {
	conn, err := b.conn(ctx)
	if err != nil {
		return "", false, err
	}
	var value string
	err = conn.QueryRowContext(ctx, `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read session", err)
	}
	return value, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, values map[string]string) error {
	conn, err := b.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to begin session write", err)
	}
	defer tx.Rollback()

	updatedAt := b.now().Unix()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, updatedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to write session", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to commit session", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, keys ...string) error {
	conn, err := b.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to begin session delete", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_kv WHERE key = ?`, k); err != nil {
			return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to delete session", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to commit session delete", err)
	}
	return nil
}

// DefaultRedisPrefix namespaces session keys in a shared Redis.
const DefaultRedisPrefix = "fitnix:console:session:"

// RedisBackend stores the session in Redis so several console processes can
// share one sign-in.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a backend over client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Load(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read session from redis", err)
	}
	return v, true, nil
}

func (b *RedisBackend) Save(ctx context.Context, values map[string]string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, b.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to write session to redis", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.prefix + k
	}
	if err := b.client.Del(ctx, full...).Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to delete session from redis", err)
	}
	return nil
}

// SealedBackend encrypts every value before handing it to the wrapped
// backend. A value that cannot be opened, for example after the key changed,
// is reported as SESSION_CORRUPT.
type SealedBackend struct {
	inner  Backend
	sealer *crypto.Sealer
}

// NewSealedBackend wraps inner.
func NewSealedBackend(inner Backend, sealer *crypto.Sealer) *SealedBackend {
	return &SealedBackend{inner: inner, sealer: sealer}
}

func (b *SealedBackend) Load(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := b.inner.Load(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := b.sealer.OpenString(v)
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrSessionCorrupt, "failed to open stored "+key, err)
	}
	return plain, true, nil
}

func (b *SealedBackend) Save(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		s, err := b.sealer.SealString(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to seal session value", err)
		}
		sealed[k] = s
	}
	return b.inner.Save(ctx, sealed)
}

func (b *SealedBackend) Delete(ctx context.Context, keys ...string) error {
	return b.inner.Delete(ctx, keys...)
}
