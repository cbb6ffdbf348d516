package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/domains/autoreply"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/dtos"
	"github.com/wasender/pkg/middleware"
)

func AutoReplyRoutes(r *gin.RouterGroup, s autoreply.Service, wa whatsapp.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/enable", enableAutoReply(s, wa))
		authGroup.POST("/disable", disableAutoReply(s))
		authGroup.GET("/status/:sessionId", autoReplyStatus(s))
	}
}

func enableAutoReply(s autoreply.Service, wa whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.EnableAutoReplyDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}
		if err := whatsapp.ValidateSessionID(req.SessionID); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		if wa.Status(req.SessionID).State != whatsapp.StateConnected {
			c.JSON(503, gin.H{"error": constant.WHATSAPP_NOT_CONNECTED})
			return
		}

		s.Enable(req.SessionID, req.EventID, req.AgentID)
		c.JSON(200, dtos.SuccessDTO{Success: true, Message: constant.AUTO_REPLY_ENABLED})
	}
}

func disableAutoReply(s autoreply.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.DisableAutoReplyDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		s.Disable(req.SessionID)
		c.JSON(200, dtos.SuccessDTO{Success: true, Message: constant.AUTO_REPLY_OFF})
	}
}

func autoReplyStatus(s autoreply.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ar, ok := s.Status(c.Param("sessionId"))
		resp := dtos.AutoReplyStatusDTO{Active: ok}
		if ok {
			resp.EventID = ar.TopicID
			resp.AgentID = ar.AgentID
		}
		c.JSON(200, resp)
	}
}
