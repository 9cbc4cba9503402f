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

const (
	ledgerKind = "ledger"

	// The ledger runs as a single global partition; records inside it are
	// keyed storeId:productId and broadcasts fan out per store.
	ledgerPartition = "global"
)

var (
	// ErrUnknownAction rejects an inventory action outside add/subtract/set.
	ErrUnknownAction = errors.New("unknown inventory action")
	// ErrInvalidUpdate rejects an update missing its store or product id.
	ErrInvalidUpdate = errors.New("inventory update requires store_id and product_id")
	// ErrNegativeQuantity rejects a negative quantity for add/subtract. Set
	// accepts negative input and clamps it to zero instead.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

type ledgerState struct {
	Records map[string]models.InventoryRecord `json:"records"`
}

func (s *ledgerState) Restore(data []byte) error {
	if data != nil {
		if err := json.Unmarshal(data, s); err != nil {
			return err
		}
	}
	if s.Records == nil {
		s.Records = make(map[string]models.InventoryRecord)
	}
	return nil
}

func (s *ledgerState) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// InventoryLedger is the authoritative quantity-per-product actor. Quantity
// never goes negative: subtract clamps at zero and set clamps negative input
// to zero.
type InventoryLedger struct {
	runtime  *Runtime
	registry *SessionRegistry
	logger   *zap.Logger
}

func NewInventoryLedger(repo repository.SnapshotRepository, registry *SessionRegistry, idleTTL time.Duration, logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{
		runtime:  NewRuntime(ledgerKind, repo, func() ActorState { return &ledgerState{} }, idleTTL, logger),
		registry: registry,
		logger:   logger,
	}
}

func (l *InventoryLedger) Close() {
	l.runtime.Close()
}

// Update applies one add/subtract/set mutation. On success the new record is
// persisted and broadcast only to sessions registered under the record's
// store; an unknown action fails with no mutation and no broadcast.
func (l *InventoryLedger) Update(ctx context.Context, req models.InventoryUpdateRequest) (*models.InventoryRecord, string, error) {
	if req.StoreID == "" || req.ProductID == "" {
		return nil, "", ErrInvalidUpdate
	}

	key := models.InventoryKey(req.StoreID, req.ProductID)
	var out models.InventoryRecord

	err := l.runtime.Mutate(ctx, ledgerPartition, func(state ActorState) (func(), error) {
		st := state.(*ledgerState)

		current := st.Records[key].Quantity
		var next int
		switch req.Action {
		case models.ActionAdd:
			if req.Quantity < 0 {
				return nil, ErrNegativeQuantity
			}
			next = current + req.Quantity
		case models.ActionSubtract:
			if req.Quantity < 0 {
				return nil, ErrNegativeQuantity
			}
			next = current - req.Quantity
			if next < 0 {
				next = 0
			}
		case models.ActionSet:
			next = req.Quantity
			if next < 0 {
				next = 0
			}
		default:
			return nil, ErrUnknownAction
		}

		out = models.InventoryRecord{Quantity: next, UpdatedAt: time.Now().UTC()}
		st.Records[key] = out

		return func() {
			l.registry.Broadcast(req.StoreID, models.InventoryUpdate{
				Type:      models.MessageTypeInventoryUpdate,
				Key:       key,
				Quantity:  out.Quantity,
				UpdatedAt: out.UpdatedAt,
			})
		}, nil
	})
	if err != nil {
		return nil, "", err
	}

	l.logger.Info("inventory updated",
		zap.String("key", key),
		zap.String("action", req.Action),
		zap.Int("quantity", out.Quantity),
	)
	return &out, key, nil
}

// Connect registers a store-tagged session and sends it the full current map
// as an init message. The map is the authoritative catch-up; no replay buffer
// is involved.
func (l *InventoryLedger) Connect(ctx context.Context, sess *Session) error {
	return l.runtime.Read(ctx, ledgerPartition, func(state ActorState) error {
		// Register under the partition lock so the init snapshot and the
		// live broadcast stream cannot interleave.
		l.registry.Register(sess)
		st := state.(*ledgerState)
		records := make(map[string]models.InventoryRecord, len(st.Records))
		for k, v := range st.Records {
			records[k] = v
		}
		return l.registry.Send(sess, models.NewInit(records))
	})
}

func (l *InventoryLedger) Registry() *SessionRegistry {
	return l.registry
}
