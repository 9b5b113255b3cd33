// Package redis persists run status and reports so a host UI can reattach
// to a run after a restart. The pipeline never depends on this store for
// correctness; every write failure is the caller's to log and ignore.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// Store implements the run store over Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets the expiration for run keys.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store with its own client.
func New(address string, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: address}), opts...)
}

// NewFromClient creates a store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "clonepipe:run:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) statusKey(runID string) string { return s.prefix + runID + ":status" }
func (s *Store) reportKey(runID string) string { return s.prefix + runID + ":report" }

// SaveStatus mirrors the latest progress snapshot.
func (s *Store) SaveStatus(ctx context.Context, st domain.RunStatus) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding run status: %w", err)
	}
	if err := s.client.Set(ctx, s.statusKey(st.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving run status: %w", err)
	}
	return nil
}

// LoadStatus fetches the latest snapshot for a run.
func (s *Store) LoadStatus(ctx context.Context, runID string) (domain.RunStatus, error) {
	data, err := s.client.Get(ctx, s.statusKey(runID)).Bytes()
	if err == backend.Nil {
		return domain.RunStatus{}, domain.ErrRunNotFound
	}
	if err != nil {
		return domain.RunStatus{}, fmt.Errorf("loading run status: %w", err)
	}
	var st domain.RunStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.RunStatus{}, fmt.Errorf("decoding run status: %w", err)
	}
	return st, nil
}

// SaveReport stores the public-clone report JSON for a run.
func (s *Store) SaveReport(ctx context.Context, runID string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := s.client.Set(ctx, s.reportKey(runID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// LoadReport fetches the raw report JSON for a run.
func (s *Store) LoadReport(ctx context.Context, runID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.reportKey(runID)).Bytes()
	if err == backend.Nil {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading report: %w", err)
	}
	return data, nil
}
