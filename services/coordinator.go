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

const coordinatorKind = "coordinator"

var (
	// ErrTransactionExists rejects creating an id that is already active.
	ErrTransactionExists = errors.New("transaction already active")
	// ErrTransactionNotFound rejects operations on ids absent from the
	// active map, including ids that already reached a terminal state.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrUnknownTransactionAction rejects actions outside the lifecycle set.
	ErrUnknownTransactionAction = errors.New("unknown transaction action")
)

// EventProducer publishes terminal transaction records downstream. A nil
// producer disables egress.
type EventProducer interface {
	SendTransactionEvent(ctx context.Context, event models.TransactionEvent) error
}

// coordinatorState is one store's active-transaction map. Terminal
// transactions are removed, not retained; history lives outside the actor.
type coordinatorState struct {
	Active map[string]*models.Transaction `json:"active"`
}

func (s *coordinatorState) Restore(data []byte) error {
	if data != nil {
		if err := json.Unmarshal(data, s); err != nil {
			return err
		}
	}
	if s.Active == nil {
		s.Active = make(map[string]*models.Transaction)
	}
	return nil
}

func (s *coordinatorState) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// TransactionCoordinator drives the per-store transaction lifecycle:
// active -> completed or active -> cancelled, both terminal. One partition
// per store id.
type TransactionCoordinator struct {
	runtime  *Runtime
	registry *SessionRegistry
	producer EventProducer
	logger   *zap.Logger
}

func NewTransactionCoordinator(repo repository.SnapshotRepository, registry *SessionRegistry, producer EventProducer, idleTTL time.Duration, logger *zap.Logger) *TransactionCoordinator {
	return &TransactionCoordinator{
		runtime:  NewRuntime(coordinatorKind, repo, func() ActorState { return &coordinatorState{} }, idleTTL, logger),
		registry: registry,
		producer: producer,
		logger:   logger,
	}
}

func (c *TransactionCoordinator) Close() {
	c.runtime.Close()
}

// Apply dispatches a transaction command to the matching lifecycle operation.
func (c *TransactionCoordinator) Apply(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error) {
	switch req.Action {
	case models.TxActionCreate:
		return c.Create(ctx, req.StoreID, req.TransactionID, req.Payload)
	case models.TxActionUpdate:
		return c.Update(ctx, req.StoreID, req.TransactionID, req.Payload)
	case models.TxActionComplete:
		return c.Complete(ctx, req.StoreID, req.TransactionID, req.Payload)
	case models.TxActionCancel:
		return c.Cancel(ctx, req.StoreID, req.TransactionID)
	default:
		return nil, ErrUnknownTransactionAction
	}
}

// Create inserts a new active transaction. Fails if the id is already active.
func (c *TransactionCoordinator) Create(ctx context.Context, storeID, txID string, payload map[string]any) (*models.Transaction, error) {
	var out *models.Transaction
	err := c.runtime.Mutate(ctx, storeID, func(state ActorState) (func(), error) {
		st := state.(*coordinatorState)
		if _, exists := st.Active[txID]; exists {
			return nil, ErrTransactionExists
		}

		now := time.Now().UTC()
		tx := &models.Transaction{
			ID:        txID,
			StoreID:   storeID,
			Status:    models.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			Payload:   clonePayload(payload),
		}
		st.Active[txID] = tx
		out = cloneTransaction(tx)

		return c.broadcastFn(storeID, models.MessageTypeTransactionCreated, out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update shallow-merges payload into an active transaction, later keys win.
func (c *TransactionCoordinator) Update(ctx context.Context, storeID, txID string, payload map[string]any) (*models.Transaction, error) {
	var out *models.Transaction
	err := c.runtime.Mutate(ctx, storeID, func(state ActorState) (func(), error) {
		st := state.(*coordinatorState)
		tx, ok := st.Active[txID]
		if !ok {
			return nil, ErrTransactionNotFound
		}

		mergePayload(tx, payload)
		tx.UpdatedAt = time.Now().UTC()
		out = cloneTransaction(tx)

		return c.broadcastFn(storeID, models.MessageTypeTransactionUpdated, out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Complete merges payload, marks the transaction completed, and removes it
// from the active map. The final record leaves the actor only through this
// one broadcast (and the event stream).
func (c *TransactionCoordinator) Complete(ctx context.Context, storeID, txID string, payload map[string]any) (*models.Transaction, error) {
	var out *models.Transaction
	err := c.runtime.Mutate(ctx, storeID, func(state ActorState) (func(), error) {
		st := state.(*coordinatorState)
		tx, ok := st.Active[txID]
		if !ok {
			return nil, ErrTransactionNotFound
		}

		mergePayload(tx, payload)
		now := time.Now().UTC()
		tx.Status = models.StatusCompleted
		tx.CompletedAt = &now
		tx.UpdatedAt = now
		delete(st.Active, txID)
		out = cloneTransaction(tx)

		return c.broadcastFn(storeID, models.MessageTypeTransactionCompleted, out), nil
	})
	if err != nil {
		return nil, err
	}
	// Event egress stays outside the critical section; broker latency must
	// not stall the store's command stream.
	c.emitEvent(ctx, models.MessageTypeTransactionCompleted, out)
	c.logger.Info("transaction completed", zap.String("store_id", storeID), zap.String("transaction_id", txID))
	return out, nil
}

// Cancel marks the transaction cancelled and removes it from the active map.
func (c *TransactionCoordinator) Cancel(ctx context.Context, storeID, txID string) (*models.Transaction, error) {
	var out *models.Transaction
	err := c.runtime.Mutate(ctx, storeID, func(state ActorState) (func(), error) {
		st := state.(*coordinatorState)
		tx, ok := st.Active[txID]
		if !ok {
			return nil, ErrTransactionNotFound
		}

		now := time.Now().UTC()
		tx.Status = models.StatusCancelled
		tx.CancelledAt = &now
		tx.UpdatedAt = now
		delete(st.Active, txID)
		out = cloneTransaction(tx)

		return c.broadcastFn(storeID, models.MessageTypeTransactionCancelled, out), nil
	})
	if err != nil {
		return nil, err
	}
	c.emitEvent(ctx, models.MessageTypeTransactionCancelled, out)
	c.logger.Info("transaction cancelled", zap.String("store_id", storeID), zap.String("transaction_id", txID))
	return out, nil
}

// Connect registers a store-tagged session and sends it the store's current
// active-transaction map as an init message.
func (c *TransactionCoordinator) Connect(ctx context.Context, sess *Session) error {
	return c.runtime.Read(ctx, sess.Scope, func(state ActorState) error {
		// Register under the partition lock so the init snapshot and the
		// live broadcast stream cannot interleave.
		c.registry.Register(sess)
		st := state.(*coordinatorState)
		active := make(map[string]*models.Transaction, len(st.Active))
		for id, tx := range st.Active {
			active[id] = cloneTransaction(tx)
		}
		return c.registry.Send(sess, models.NewInit(active))
	})
}

func (c *TransactionCoordinator) Registry() *SessionRegistry {
	return c.registry
}

func (c *TransactionCoordinator) broadcastFn(storeID, msgType string, tx *models.Transaction) func() {
	return func() {
		c.registry.Broadcast(storeID, models.TransactionBroadcast{
			Type:        msgType,
			Transaction: tx,
		})
	}
}

// emitEvent publishes a terminal record downstream, best-effort.
func (c *TransactionCoordinator) emitEvent(ctx context.Context, eventType string, tx *models.Transaction) {
	if c.producer == nil {
		return
	}
	event := models.TransactionEvent{
		Type:        eventType,
		Transaction: *tx,
		EmittedAt:   time.Now().UTC(),
	}
	if err := c.producer.SendTransactionEvent(ctx, event); err != nil {
		c.logger.Warn("transaction event publish failed (non-fatal)",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}

func mergePayload(tx *models.Transaction, payload map[string]any) {
	if len(payload) == 0 {
		return
	}
	if tx.Payload == nil {
		tx.Payload = make(map[string]any, len(payload))
	}
	for k, v := range payload {
		tx.Payload[k] = v
	}
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func cloneTransaction(tx *models.Transaction) *models.Transaction {
	cp := *tx
	cp.Payload = clonePayload(tx.Payload)
	return &cp
}
