package models

import (
	"encoding/json"
	"time"
)

// WebSocket message types. Inbound sessions send ping/message/update/
// transaction; everything else is outbound only.
const (
	MessageTypePing                 = "ping"
	MessageTypePong                 = "pong"
	MessageTypeError                = "error"
	MessageTypeInit                 = "init"
	MessageTypeMessage              = "message"
	MessageTypeUpdate               = "update"
	MessageTypeUpdateAck            = "update_ack"
	MessageTypeAck                  = "ack"
	MessageTypeTransaction          = "transaction"
	MessageTypeInventoryUpdate      = "inventory_update"
	MessageTypeTransactionCreated   = "transaction_created"
	MessageTypeTransactionUpdated   = "transaction_updated"
	MessageTypeTransactionCompleted = "transaction_completed"
	MessageTypeTransactionCancelled = "transaction_cancelled"
)

// Envelope is the inbound WebSocket frame shape: {type, data?}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Pong answers a ping on the same session.
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPong() Pong {
	return Pong{Type: MessageTypePong, Timestamp: time.Now().UTC()}
}

// ErrorReply is sent to the originating session only, never broadcast.
type ErrorReply struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func NewErrorReply(msg string) ErrorReply {
	return ErrorReply{Type: MessageTypeError, Message: msg}
}

// Init is the catch-up message sent right after a session connects.
type Init struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewInit(data any) Init {
	return Init{Type: MessageTypeInit, Data: data}
}

// UpdateAck confirms a session-originated inventory update to its sender.
type UpdateAck struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryUpdate is the store-scoped broadcast for one committed mutation.
type InventoryUpdate struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TxAck confirms a session-originated transaction command to its sender.
type TxAck struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
	Action        string `json:"action"`
}

// TransactionBroadcast carries a lifecycle event to all sessions of a store.
type TransactionBroadcast struct {
	Type        string       `json:"type"`
	Transaction *Transaction `json:"transaction"`
}
