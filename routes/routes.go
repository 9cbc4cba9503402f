package routes

import (
	"pos-sync-service/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the command and upgrade endpoints for the three
// sync actors.
func RegisterRoutes(r *gin.Engine, hub *controllers.HubController, inventory *controllers.InventoryController, transactions *controllers.TransactionController) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", hub.Publish)
		notifications.GET("/ws", hub.Connect)
	}

	inv := r.Group("/inventory")
	{
		inv.POST("/update", inventory.Update)
		inv.GET("/ws", inventory.Connect)
	}

	tx := r.Group("/transactions")
	{
		tx.POST("", transactions.Command)
		tx.GET("/ws", transactions.Connect)
	}
}
