package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// ErrNoSession is returned when no usable session exists for an id.
var ErrNoSession = errors.New("session not found")

// TokenKey is the fixed field the access token is stored under.
const TokenKey = "access_token"

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps one hash per session: the token under TokenKey plus the
// token type, expiry and the fetched user profile.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "casereview:session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	token := fields[TokenKey]
	if token == "" {
		return nil, ErrNoSession
	}

	s := &Session{ID: id}
	s.SetToken(token, fields["token_type"])
	if raw := fields["user"]; raw != "" {
		var user models.User
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			s.User = &user
		}
	}
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session, ttl time.Duration) error {
	values := map[string]interface{}{
		TokenKey:     s.AccessToken(),
		"token_type": s.Token.TokenType,
	}
	if s.User != nil {
		data, err := json.Marshal(s.User)
		if err != nil {
			return fmt.Errorf("encoding session user: %w", err)
		}
		values["user"] = string(data)
	}

	key := r.key(s.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return r.client.Del(ctx, r.key(id)).Err()
}

// MemoryStore is a process-local Store for tests and single-instance use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	nowFunc  func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry), nowFunc: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	if !entry.expiresAt.IsZero() && !m.nowFunc().Before(entry.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrNoSession
	}
	s := entry.session.clone()
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{session: s.clone()}
	if ttl > 0 {
		entry.expiresAt = m.nowFunc().Add(ttl)
	}
	m.sessions[s.ID] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len is the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
