package models

import (
	"fmt"
	"time"
)

// Transaction statuses. Completed and cancelled are terminal: the record is
// removed from the coordinator's active map and only leaves via the final
// broadcast (and the Kafka event stream).
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Inventory update actions.
const (
	ActionAdd      = "add"
	ActionSubtract = "subtract"
	ActionSet      = "set"
)

// Transaction lifecycle actions.
const (
	TxActionCreate   = "create"
	TxActionUpdate   = "update"
	TxActionComplete = "complete"
	TxActionCancel   = "cancel"
)

// Notification is one entry of the hub's bounded replay buffer.
type Notification struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// InventoryRecord is the authoritative quantity for one store+product pair.
// Quantity never goes negative: subtract and set clamp at zero.
type InventoryRecord struct {
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryKey builds the ledger map key for a store+product pair.
func InventoryKey(storeID, productID string) string {
	return fmt.Sprintf("%s:%s", storeID, productID)
}

// Transaction is one in-flight POS transaction owned by a store's coordinator.
type Transaction struct {
	ID          string         `json:"id"`
	StoreID     string         `json:"store_id"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// TransactionEvent is the Kafka record emitted when a transaction reaches a
// terminal state.
type TransactionEvent struct {
	Type        string      `json:"type"`
	Transaction Transaction `json:"transaction"`
	EmittedAt   time.Time   `json:"emitted_at"`
}

// PublishRequest is the command body for publishing a notification.
type PublishRequest struct {
	Type string         `json:"type" binding:"required"`
	Data map[string]any `json:"data" binding:"required"`
}

// InventoryUpdateRequest is the command body for a ledger mutation. Quantity
// may be negative for "set"; the ledger clamps it to zero.
type InventoryUpdateRequest struct {
	StoreID   string `json:"store_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Action    string `json:"action" binding:"required,oneof=add subtract set"`
}

// TransactionRequest is the command body for a coordinator operation.
type TransactionRequest struct {
	StoreID       string         `json:"store_id" binding:"required"`
	TransactionID string         `json:"transaction_id" binding:"required"`
	Action        string         `json:"action" binding:"required,oneof=create update complete cancel"`
	Payload       map[string]any `json:"payload"`
}
