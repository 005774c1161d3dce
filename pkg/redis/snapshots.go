package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/session"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SnapshotStore keeps suggestion session snapshots as JSON with a TTL
type SnapshotStore struct {
	client    *Client
	keyPrefix string
}

var _ session.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(client *Client, keyPrefix string) *SnapshotStore {
	if keyPrefix == "" {
		keyPrefix = "clover:session:"
	}
	return &SnapshotStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot session.Snapshot, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "redis.SnapshotStore.Save")
	defer span.End()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.rdb.Set(ctx, s.keyPrefix+snapshot.ID, data, ttl).Err()
}

// Load returns models.ErrNotFound for unknown or expired sessions
func (s *SnapshotStore) Load(ctx context.Context, id string) (*session.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.SnapshotStore.Load")
	defer span.End()

	data, err := s.client.rdb.Get(ctx, s.keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	var snapshot session.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
