package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pos-sync-service/models"
	"pos-sync-service/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type InventoryController struct {
	ledger *services.InventoryLedger
	logger *zap.Logger
}

func NewInventoryController(ledger *services.InventoryLedger, logger *zap.Logger) *InventoryController {
	return &InventoryController{ledger: ledger, logger: logger}
}

// Update handles POST /inventory/update.
func (ic *InventoryController) Update(c *gin.Context) {
	var req models.InventoryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	record, key, err := ic.ledger.Update(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrUnknownAction) || errors.Is(err, services.ErrInvalidUpdate) || errors.Is(err, services.ErrNegativeQuantity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ic.logger.Error("inventory update failed", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update inventory"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":        key,
		"quantity":   record.Quantity,
		"updated_at": record.UpdatedAt,
	})
}

// Connect handles GET /inventory/ws?store_id=&client_id=.
func (ic *InventoryController) Connect(c *gin.Context) {
	storeID := c.Query("store_id")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "store_id is required"})
		return
	}
	clientID := c.Query("client_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ic.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := services.NewSession(storeID, conn)
	ic.logger.Info("inventory session connected",
		zap.String("session_id", sess.ID),
		zap.String("store_id", storeID),
		zap.String("client_id", clientID),
	)

	if err := ic.ledger.Connect(context.Background(), sess); err != nil {
		ic.logger.Warn("inventory init send failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		ic.ledger.Registry().Unregister(sess.ID)
		return
	}

	ic.readLoop(sess, conn)
}

func (ic *InventoryController) readLoop(sess *services.Session, conn *websocket.Conn) {
	defer ic.ledger.Registry().Unregister(sess.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			ic.reply(sess, models.NewErrorReply("malformed message"))
			continue
		}

		switch env.Type {
		case models.MessageTypePing:
			ic.reply(sess, models.NewPong())
		case models.MessageTypeUpdate:
			var req models.InventoryUpdateRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				ic.reply(sess, models.NewErrorReply("malformed message data"))
				continue
			}
			if req.StoreID == "" {
				req.StoreID = sess.Scope
			}
			record, key, err := ic.ledger.Update(context.Background(), req)
			if err != nil {
				ic.reply(sess, models.NewErrorReply(err.Error()))
				continue
			}
			ic.reply(sess, models.UpdateAck{
				Type:      models.MessageTypeUpdateAck,
				Key:       key,
				Quantity:  record.Quantity,
				UpdatedAt: record.UpdatedAt,
			})
		default:
			ic.reply(sess, models.NewErrorReply("unknown message type"))
		}
	}
}

func (ic *InventoryController) reply(sess *services.Session, v any) {
	_ = ic.ledger.Registry().Send(sess, v)
}
