package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pos-sync-service/repository"

	"go.uber.org/zap"
)

// ActorState is the in-memory state of one partition. Implementations are not
// safe for concurrent use on their own; the Runtime guarantees single-writer
// access per partition key.
type ActorState interface {
	// Restore populates the state from a persisted snapshot. data is nil for
	// a brand-new partition.
	Restore(data []byte) error
	// Snapshot serializes the full state for persistence.
	Snapshot() ([]byte, error)
}

// Runtime hosts the partitions of one actor kind. It reproduces the
// single-writer guarantee of a virtual-actor host: commands for the same
// partition key never run concurrently, the first command after idle triggers
// a blocking snapshot load (activation barrier), and idle partitions are
// evicted so the next command reactivates from the last committed snapshot.
type Runtime struct {
	kind     string
	repo     repository.SnapshotRepository
	newState func() ActorState
	logger   *zap.Logger

	mu    sync.Mutex
	parts map[string]*partition

	idleTTL time.Duration
	done    chan struct{}
	once    sync.Once
}

type partition struct {
	mu       sync.Mutex
	state    ActorState
	lastUsed time.Time
	evicted  bool
}

func NewRuntime(kind string, repo repository.SnapshotRepository, newState func() ActorState, idleTTL time.Duration, logger *zap.Logger) *Runtime {
	r := &Runtime{
		kind:     kind,
		repo:     repo,
		newState: newState,
		logger:   logger,
		parts:    make(map[string]*partition),
		idleTTL:  idleTTL,
		done:     make(chan struct{}),
	}
	go r.evictLoop()
	return r
}

// Close stops the idle eviction loop.
func (r *Runtime) Close() {
	r.once.Do(func() { close(r.done) })
}

// acquire returns the partition for key with its lock held and its state
// activated. The caller must unlock partition.mu when done.
func (r *Runtime) acquire(ctx context.Context, key string) (*partition, error) {
	for {
		r.mu.Lock()
		p, ok := r.parts[key]
		if !ok {
			p = &partition{lastUsed: time.Now()}
			r.parts[key] = p
		}
		r.mu.Unlock()

		p.mu.Lock()
		if p.evicted {
			// Lost the race with the evictor; fetch a fresh entry.
			p.mu.Unlock()
			continue
		}

		if p.state == nil {
			// Activation barrier: no command may interleave while the
			// snapshot load is in flight.
			data, err := r.repo.Load(ctx, r.kind, key)
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			state := r.newState()
			if err := state.Restore(data); err != nil {
				p.mu.Unlock()
				return nil, fmt.Errorf("restore %s/%s: %w", r.kind, key, err)
			}
			p.state = state
			r.logger.Info("partition activated",
				zap.String("kind", r.kind),
				zap.String("partition", key),
				zap.Bool("from_snapshot", data != nil),
			)
		}
		p.lastUsed = time.Now()
		return p, nil
	}
}

// Mutate runs cmd inside the partition's critical section. cmd must leave the
// state untouched when it returns an error; on success it may return a
// broadcast func that is invoked only after the snapshot is persisted. If
// persistence fails the in-memory state is discarded so the next command
// reactivates from the last committed snapshot.
func (r *Runtime) Mutate(ctx context.Context, key string, cmd func(state ActorState) (broadcast func(), err error)) error {
	p, err := r.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	broadcast, err := cmd(p.state)
	if err != nil {
		return err
	}

	data, err := p.state.Snapshot()
	if err != nil {
		p.state = nil
		return fmt.Errorf("snapshot %s/%s: %w", r.kind, key, err)
	}
	if err := r.repo.Save(ctx, r.kind, key, data); err != nil {
		// The mutation is not committed; drop the partition state so it is
		// re-read from the last good snapshot.
		p.state = nil
		r.logger.Error("snapshot persistence failed",
			zap.String("kind", r.kind),
			zap.String("partition", key),
			zap.Error(err),
		)
		return err
	}

	if broadcast != nil {
		broadcast()
	}
	return nil
}

// Read runs cmd against the activated state without persisting. It still
// holds the partition lock, so it observes a state at least as fresh as the
// last committed mutation.
func (r *Runtime) Read(ctx context.Context, key string, cmd func(state ActorState) error) error {
	p, err := r.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	return cmd(p.state)
}

func (r *Runtime) evictLoop() {
	ticker := time.NewTicker(r.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Runtime) evictIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.parts {
		if !p.mu.TryLock() {
			continue
		}
		if time.Since(p.lastUsed) >= r.idleTTL {
			p.evicted = true
			p.state = nil
			delete(r.parts, key)
			r.logger.Info("partition evicted",
				zap.String("kind", r.kind),
				zap.String("partition", key),
			)
		}
		p.mu.Unlock()
	}
}
