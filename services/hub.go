package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pos-sync-service/models"
	"pos-sync-service/repository"

	"go.uber.org/zap"
)

const hubKind = "hub"

// DefaultTopic is the hub partition used when a client does not name one.
const DefaultTopic = "global"

// ErrInvalidNotification rejects a publish with a missing type or data; the
// buffer must never contain an invalid entry.
var ErrInvalidNotification = errors.New("notification requires type and data")

// hubState is the per-topic replay buffer, bounded FIFO, oldest first.
type hubState struct {
	Buffer []models.Notification `json:"buffer"`
}

func (s *hubState) Restore(data []byte) error {
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, s)
}

func (s *hubState) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// NotificationHub is the pub/sub broadcast actor. Each topic is one partition
// holding a bounded replay buffer that newly connecting sessions receive
// before any live broadcast.
type NotificationHub struct {
	runtime  *Runtime
	registry *SessionRegistry
	capacity int
	logger   *zap.Logger
}

func NewNotificationHub(repo repository.SnapshotRepository, registry *SessionRegistry, capacity int, idleTTL time.Duration, logger *zap.Logger) *NotificationHub {
	return &NotificationHub{
		runtime:  NewRuntime(hubKind, repo, func() ActorState { return &hubState{} }, idleTTL, logger),
		registry: registry,
		capacity: capacity,
		logger:   logger,
	}
}

func (h *NotificationHub) Close() {
	h.runtime.Close()
}

// Publish validates, stamps, buffers, persists, and broadcasts a message. The
// oldest entry is evicted once the buffer exceeds capacity.
func (h *NotificationHub) Publish(ctx context.Context, topic string, req models.PublishRequest) (*models.Notification, error) {
	if req.Type == "" || req.Data == nil {
		return nil, ErrInvalidNotification
	}
	if topic == "" {
		topic = DefaultTopic
	}

	note := models.Notification{
		Type:      req.Type,
		Data:      req.Data,
		Timestamp: time.Now().UTC(),
	}

	err := h.runtime.Mutate(ctx, topic, func(state ActorState) (func(), error) {
		st := state.(*hubState)
		st.Buffer = append(st.Buffer, note)
		if len(st.Buffer) > h.capacity {
			st.Buffer = st.Buffer[len(st.Buffer)-h.capacity:]
		}
		return func() {
			h.registry.Broadcast(topic, note)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// Connect registers the session and replays the topic's current buffer to it
// in order, oldest first.
func (h *NotificationHub) Connect(ctx context.Context, sess *Session) error {
	topic := sess.Scope
	if topic == "" {
		topic = DefaultTopic
		sess.Scope = topic
	}
	return h.runtime.Read(ctx, topic, func(state ActorState) error {
		// Register under the partition lock so a concurrently committing
		// publish is either replayed from the buffer or broadcast live,
		// never both.
		h.registry.Register(sess)
		st := state.(*hubState)
		for i := range st.Buffer {
			if err := h.registry.Send(sess, st.Buffer[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Registry exposes the session registry for transport-level cleanup.
func (h *NotificationHub) Registry() *SessionRegistry {
	return h.registry
}
