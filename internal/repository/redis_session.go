package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisSessionStore keeps sessions as JSON values whose Redis TTL matches
// the session expiry.
type RedisSessionStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisSessionStore(client *redis.Client, namespace string) *RedisSessionStore {
	return &RedisSessionStore{client: client, namespace: namespace}
}

func (r *RedisSessionStore) key(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s", r.namespace, id)
}

func (r *RedisSessionStore) Create(ctx context.Context, session *domain.LivenessSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	ttl := session.TTL()
	if ttl <= 0 {
		return fmt.Errorf("create session %s: %w", session.ID, domain.ErrSessionExpired)
	}

	data, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	ok, err := r.client.SetNX(ctx, r.key(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session %s: %w", session.ID, err)
	}
	if !ok {
		return fmt.Errorf("create session %s: id already in use", session.ID)
	}
	return nil
}

func (r *RedisSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var session domain.LivenessSession
	if err := codec.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// Update overwrites an existing session and keeps its expiry.
func (r *RedisSessionStore) Update(ctx context.Context, session *domain.LivenessSession) error {
	ttl := session.TTL()
	if ttl <= 0 {
		return domain.ErrSessionExpired
	}

	data, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	ok, err := r.client.SetXX(ctx, r.key(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys on its own.
func (r *RedisSessionStore) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *RedisSessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ SessionStore = (*RedisSessionStore)(nil)
)
