package routes

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/dtos"
	"github.com/wasender/pkg/middleware"
)

func WhatsAppRoutes(r *gin.RouterGroup, s whatsapp.Service) {
	// QR and status are polled by the pairing page before any login
	r.GET("/qr/:sessionId", getQRCode(s))
	r.GET("/status/:sessionId", getStatus(s))

	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/initialize", initialize(s))
		authGroup.POST("/disconnect", disconnect(s))
		authGroup.POST("/send", sendMessage(s))
		authGroup.GET("/sessions", listSessions(s))
	}
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// errorStatus maps session errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		return 503
	case errors.Is(err, whatsapp.ErrInvalidRecipient),
		errors.Is(err, whatsapp.ErrEmptyMessage),
		errors.Is(err, whatsapp.ErrInvalidSessionID):
		return 400
	case errors.Is(err, whatsapp.ErrRecipientNotFound),
		errors.Is(err, whatsapp.ErrNoQRCode):
		return 404
	case errors.Is(err, whatsapp.ErrAlreadyConnected):
		return 409
	case errors.Is(err, whatsapp.ErrAuthFailure):
		return 401
	case errors.Is(err, whatsapp.ErrStartupTimeout):
		return 504
	default:
		return 500
	}
}

func statusDTO(snap whatsapp.Snapshot) dtos.SessionStatusDTO {
	status := "DISCONNECTED"
	switch snap.State {
	case whatsapp.StateConnected:
		status = "CONNECTED"
	case whatsapp.StateAwaitingScan:
		status = "NEED_SCAN"
	}
	return dtos.SessionStatusDTO{
		SessionID:         snap.SessionID,
		Connected:         snap.Connected,
		HasQR:             snap.HasQR,
		Status:            status,
		State:             string(snap.State),
		ReconnectAttempts: snap.ReconnectAttempts,
	}
}

func initialize(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		if err := s.Initialize(c, req.SessionID); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"message": constant.WHATSAPP_INITIALIZING,
			"data":    statusDTO(s.Status(req.SessionID)),
		})
	}
}

func disconnect(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		// Teardown always leaves the session gone; step failures are reported
		// but do not fail the request.
		resp := gin.H{"message": constant.WHATSAPP_DISCONNECTED}
		if err := s.Teardown(c, req.SessionID); err != nil {
			if errors.Is(err, whatsapp.ErrInvalidSessionID) {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			resp["warning"] = err.Error()
		}
		c.JSON(200, resp)
	}
}

func sendMessage(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.SendMessageDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST, "details": err.Error()})
			return
		}

		text := req.Message
		if req.RecipientName != "" {
			text = strings.ReplaceAll(text, "{name}", req.RecipientName)
		}

		if err := s.Send(c, req.SessionID, req.PhoneNumber, text); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, dtos.SendMessageResponseDTO{
			Success:     true,
			PhoneNumber: req.PhoneNumber,
			Message:     constant.MESSAGE_SENT,
		})
	}
}

func getQRCode(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		qr, err := s.QRCode(c, c.Param("sessionId"))
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"message": constant.QR_CODE_GENERATED,
			"data":    dtos.QRCodeDTO{QR: qr},
		})
	}
}

func getStatus(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := whatsapp.ValidateSessionID(id); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"message": constant.STATUS_RETRIEVED,
			"data":    statusDTO(s.Status(id)),
		})
	}
}

func listSessions(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		snaps := s.Sessions()
		out := make([]dtos.SessionStatusDTO, 0, len(snaps))
		for _, snap := range snaps {
			out = append(out, statusDTO(snap))
		}
		c.JSON(200, gin.H{"data": out})
	}
}
