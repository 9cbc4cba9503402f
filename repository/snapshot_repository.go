package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SnapshotRepository stores one durable blob per actor partition. The blob is
// rewritten whole on every committed mutation and read once at activation.
type SnapshotRepository interface {
	// Load returns the snapshot for kind+partition, or nil if the partition
	// has never been persisted.
	Load(ctx context.Context, kind, partition string) ([]byte, error)
	// Save overwrites the snapshot for kind+partition.
	Save(ctx context.Context, kind, partition string, data []byte) error
}

// RedisSnapshotRepository implements SnapshotRepository on Redis.
type RedisSnapshotRepository struct {
	client *redis.Client
}

func NewRedisSnapshotRepository(client *redis.Client) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client}
}

func (r *RedisSnapshotRepository) key(kind, partition string) string {
	return fmt.Sprintf("snapshot:%s:%s", kind, partition)
}

func (r *RedisSnapshotRepository) Load(ctx context.Context, kind, partition string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(kind, partition)).Bytes()
	if err == redis.Nil {
		// Brand-new partition
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s/%s: %w", kind, partition, err)
	}
	return data, nil
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, kind, partition string, data []byte) error {
	if err := r.client.Set(ctx, r.key(kind, partition), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", kind, partition, err)
	}
	return nil
}
