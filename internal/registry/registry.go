// Package registry is the durable source of truth for project metadata.
//
// Records are stored as JSON under a flat key per project in redis; no
// schema migrations, no secondary indices. Whether a project's dev
// server is actually alive is owned by the sandbox supervisor, not by
// this store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/athenalabs/athena/internal/changeset"
	"github.com/athenalabs/athena/internal/config"
)

// ErrNotFound indicates a project id with no stored record.
var ErrNotFound = errors.New("project not found")

// Status is the project lifecycle state.
type Status string

// Lifecycle states. A project starts at creating, becomes created once
// the sandbox exists, and always reaches ready or error from there.
const (
	StatusCreating   Status = "creating"
	StatusCreated    Status = "created"
	StatusReady      Status = "ready"
	StatusRestarting Status = "restarting"
	StatusError      Status = "error"
)

// Project is the per-project metadata record. The id doubles as the
// GitHub repository name.
type Project struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	Overview         string                 `json:"overview"`
	Stack            string                 `json:"stack"`
	Deployment       string                 `json:"deployment"`
	Port             int                    `json:"port"`
	Status           Status                 `json:"status"`
	Error            string                 `json:"error,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	CreatedTimestamp int64                  `json:"createdTimestamp"`
	RestartTimestamp int64                  `json:"restartTimestamp,omitempty"`
	LastChange       int64                  `json:"lastChange,omitempty"`
	Changes          []changeset.FileChange `json:"changes,omitempty"`
}

// kv is the slice of the redis API the store uses. *redis.Client
// satisfies it; tests provide a map-backed fake.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
}

// Store persists project records in redis.
type Store struct {
	kv      kv
	prefix  string
	timeout time.Duration
}

// New connects to redis and verifies the connection.
func New(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{kv: client, prefix: cfg.KeyPrefix, timeout: time.Second}, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put writes the full record, overwriting any previous version.
func (s *Store) Put(ctx context.Context, p *Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project %s: %w", p.ID, err)
	}

	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	if err := s.kv.Set(ctx, s.key(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store project %s: %w", p.ID, err)
	}
	return nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	data, err := s.kv.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt project record %s: %w", id, err)
	}
	return &p, nil
}

// Delete removes the record for id. Deleting a missing record is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	if err := s.kv.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return nil
}

// List returns every stored project record.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	listCtx, cancel := s.callCtx(ctx)
	keys, err := s.kv.Keys(listCtx, s.prefix+"*").Result()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]*Project, 0, len(keys))
	for _, key := range keys {
		p, err := s.Get(ctx, key[len(s.prefix):])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// SetStatus loads the record, applies status and error message, and
// writes it back. The error message is cleared on non-error statuses.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, errMsg string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Status = status
	if status == StatusError {
		p.Error = errMsg
	} else {
		p.Error = ""
	}
	return s.Put(ctx, p)
}
