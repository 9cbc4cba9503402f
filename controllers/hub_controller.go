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

// The gateway in front of this service enforces origin and auth; the upgrade
// itself accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type HubController struct {
	hub    *services.NotificationHub
	logger *zap.Logger
}

func NewHubController(hub *services.NotificationHub, logger *zap.Logger) *HubController {
	return &HubController{hub: hub, logger: logger}
}

// Publish handles POST /notifications.
func (hc *HubController) Publish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	topic := c.DefaultQuery("topic", services.DefaultTopic)

	note, err := hc.hub.Publish(c.Request.Context(), topic, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidNotification) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hc.logger.Error("publish failed", zap.String("topic", topic), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish notification"})
		return
	}

	c.JSON(http.StatusOK, note)
}

// Connect handles GET /notifications/ws: upgrade, replay, then serve the
// session's inbound protocol until the transport closes.
func (hc *HubController) Connect(c *gin.Context) {
	topic := c.DefaultQuery("topic", services.DefaultTopic)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hc.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := services.NewSession(topic, conn)
	if err := hc.hub.Connect(context.Background(), sess); err != nil {
		hc.logger.Warn("notification replay failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		hc.hub.Registry().Unregister(sess.ID)
		return
	}

	hc.readLoop(sess, conn, topic)
}

func (hc *HubController) readLoop(sess *services.Session, conn *websocket.Conn, topic string) {
	defer hc.hub.Registry().Unregister(sess.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			hc.reply(sess, models.NewErrorReply("malformed message"))
			continue
		}

		switch env.Type {
		case models.MessageTypePing:
			hc.reply(sess, models.NewPong())
		case models.MessageTypeMessage:
			var req models.PublishRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				hc.reply(sess, models.NewErrorReply("malformed message data"))
				continue
			}
			if _, err := hc.hub.Publish(context.Background(), topic, req); err != nil {
				hc.reply(sess, models.NewErrorReply(err.Error()))
			}
		default:
			hc.reply(sess, models.NewErrorReply("unknown message type"))
		}
	}
}

func (hc *HubController) reply(sess *services.Session, v any) {
	_ = hc.hub.Registry().Send(sess, v)
}
