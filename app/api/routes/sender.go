package routes

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/domains/sender"
	"github.com/wasender/pkg/dtos"
	"github.com/wasender/pkg/middleware"
	"github.com/wasender/pkg/state"
)

func SenderRoutes(r *gin.RouterGroup, s sender.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/start", startSending(s))
		authGroup.POST("/stop/:numberId", stopSending(s))
		authGroup.POST("/reset/:numberId", resetSending(s))
		authGroup.GET("/status/:numberId", sendingStatus(s))
	}
}

func startSending(s sender.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.StartSendingDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST, "details": err.Error()})
			return
		}

		if !ownedBy(c, s, req.NumberID) {
			c.JSON(404, gin.H{"error": constant.SENDING_NOT_FOUND})
			return
		}

		job := sender.Job{
			NumberID:        req.NumberID,
			UserID:          state.CurrentUser(c),
			SessionID:       req.SessionID,
			MessageTemplate: req.Message,
			DelaySeconds:    req.DelaySeconds,
			ForceStartIndex: req.ForceStartIndex,
		}
		for _, r := range req.Recipients {
			job.Recipients = append(job.Recipients, sender.Recipient{Name: r.Name, Phone: r.Phone})
		}

		outcome, err := s.StartSending(c, job)
		switch {
		case errors.Is(err, sender.ErrAlreadyRunning):
			c.JSON(409, gin.H{"error": constant.ALREADY_SENDING})
			return
		case errors.Is(err, sender.ErrNoRecipients), errors.Is(err, sender.ErrInvalidJob):
			c.JSON(400, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}

		resp := dtos.StartSendingResponseDTO{Success: true, Message: constant.SENDING_STARTED}
		if outcome == sender.Queued {
			resp.Queued = true
			resp.Message = constant.SENDING_QUEUED
		}
		c.JSON(200, resp)
	}
}

// ownedBy reports whether numberID is free or belongs to the calling tenant.
func ownedBy(c *gin.Context, s sender.Service, numberID string) bool {
	owner, ok := s.Owner(c, numberID)
	return !ok || owner == state.CurrentUser(c)
}

// tenantScoped answers 404 for numbers of other tenants.
func tenantScoped(s sender.Service, next func(c *gin.Context, numberID string)) func(c *gin.Context) {
	return func(c *gin.Context) {
		numberID := c.Param("numberId")
		if !ownedBy(c, s, numberID) {
			c.JSON(404, gin.H{"error": constant.SENDING_NOT_FOUND})
			return
		}
		next(c, numberID)
	}
}

func stopSending(s sender.Service) func(c *gin.Context) {
	return tenantScoped(s, func(c *gin.Context, numberID string) {
		status := s.StopSending(c, numberID)
		c.JSON(200, gin.H{"message": constant.SENDING_STOPPED, "data": status})
	})
}

func resetSending(s sender.Service) func(c *gin.Context) {
	return tenantScoped(s, func(c *gin.Context, numberID string) {
		status := s.ResetSendingState(c, numberID)
		c.JSON(200, gin.H{"message": constant.SENDING_RESET, "data": status})
	})
}

func sendingStatus(s sender.Service) func(c *gin.Context) {
	return tenantScoped(s, func(c *gin.Context, numberID string) {
		c.JSON(200, gin.H{"data": s.GetSendingStatus(numberID)})
	})
}
