package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/publisher"
)

// EventRoutes streams status events over websockets.
func EventRoutes(r *gin.RouterGroup, hub *publisher.Hub, log zerolog.Logger) {
	r.GET("/whatsapp/:sessionId", func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := whatsapp.ValidateSessionID(id); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		hub.ServeWS(c.Writer, c.Request, publisher.SessionChannel(id), log)
	})
	r.GET("/sender/:numberId", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request, publisher.SenderChannel(c.Param("numberId")), log)
	})
}

func HealthRoutes(r *gin.RouterGroup, s whatsapp.Service) {
	r.GET("", func(c *gin.Context) {
		counts := make(map[string]int)
		for _, snap := range s.Sessions() {
			counts[string(snap.State)]++
		}
		c.JSON(200, gin.H{"status": "ok", "sessions": counts})
	})
}
