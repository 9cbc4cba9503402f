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

type TransactionController struct {
	coordinator *services.TransactionCoordinator
	logger      *zap.Logger
}

func NewTransactionController(coordinator *services.TransactionCoordinator, logger *zap.Logger) *TransactionController {
	return &TransactionController{coordinator: coordinator, logger: logger}
}

// Command handles POST /transactions.
func (tc *TransactionController) Command(c *gin.Context) {
	var req models.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tx, err := tc.coordinator.Apply(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrUnknownTransactionAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			tc.logger.Error("transaction command failed",
				zap.String("store_id", req.StoreID),
				zap.String("transaction_id", req.TransactionID),
				zap.String("action", req.Action),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply transaction"})
		}
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Connect handles GET /transactions/ws?store_id=&device_id=.
func (tc *TransactionController) Connect(c *gin.Context) {
	storeID := c.Query("store_id")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "store_id is required"})
		return
	}
	deviceID := c.Query("device_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		tc.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := services.NewSession(storeID, conn)
	tc.logger.Info("transaction session connected",
		zap.String("session_id", sess.ID),
		zap.String("store_id", storeID),
		zap.String("device_id", deviceID),
	)

	if err := tc.coordinator.Connect(context.Background(), sess); err != nil {
		tc.logger.Warn("transaction init send failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		tc.coordinator.Registry().Unregister(sess.ID)
		return
	}

	tc.readLoop(sess, conn)
}

func (tc *TransactionController) readLoop(sess *services.Session, conn *websocket.Conn) {
	defer tc.coordinator.Registry().Unregister(sess.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			tc.reply(sess, models.NewErrorReply("malformed message"))
			continue
		}

		switch env.Type {
		case models.MessageTypePing:
			tc.reply(sess, models.NewPong())
		case models.MessageTypeTransaction:
			var req models.TransactionRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				tc.reply(sess, models.NewErrorReply("malformed message data"))
				continue
			}
			if req.StoreID == "" {
				req.StoreID = sess.Scope
			}
			if _, err := tc.coordinator.Apply(context.Background(), req); err != nil {
				reply := models.NewErrorReply(err.Error())
				reply.TransactionID = req.TransactionID
				tc.reply(sess, reply)
				continue
			}
			tc.reply(sess, models.TxAck{
				Type:          models.MessageTypeAck,
				TransactionID: req.TransactionID,
				Action:        req.Action,
			})
		default:
			tc.reply(sess, models.NewErrorReply("unknown message type"))
		}
	}
}

func (tc *TransactionController) reply(sess *services.Session, v any) {
	_ = tc.coordinator.Registry().Send(sess, v)
}
