package vitecsync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proaktivadmin/dokumenthub_backend/config"
	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

// RegisterRoutes mounts the sync surface on the given router group.
func RegisterRoutes(r *gin.RouterGroup, svc *Service) {
	r.POST("/sync/preview", PreviewHandler(svc))

	sessions := r.Group("/sync/sessions/:id", sessionIdMiddleware())
	sessions.GET("", GetSessionHandler(svc))
	sessions.DELETE("", CancelSessionHandler(svc))
	sessions.PATCH("/decisions", UpdateDecisionHandler(svc))
	sessions.POST("/commit", CommitSessionHandler(svc))
	sessions.GET("/export", ExportSessionHandler(svc))
}

// sessionIdMiddleware attaches the path's session id to the request context
// so error logs deeper in the stack can report which session failed.
func sessionIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.SetSessionIdInContext(c.Request.Context(), c.Param("id"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func PreviewHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _, err := svc.GeneratePreview(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		resp, err := SessionToResponse(session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func GetSessionHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := svc.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		resp, err := SessionToResponse(session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// An expired session is still readable; the status code says gone
		// while the body keeps the frozen preview inspectable.
		status := http.StatusOK
		if session.Status == models.SyncSessionStatusExpired {
			status = http.StatusGone
		}
		c.JSON(status, resp)
	}
}

func CancelSessionHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.CancelSession(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateDecisionHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); fields != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if err := svc.UpdateDecision(c.Request.Context(), c.Param("id"), req); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func CommitSessionHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.CommitSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// respondError maps the error taxonomy onto HTTP statuses. An expired
// session rejects decisions and commits as a state conflict; reads report
// 410 via the status check in GetSessionHandler, never through this path.
// Anything outside the taxonomy is a 500.
func respondError(c *gin.Context, err error) {
	switch {
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsExpired(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsInvalidTransition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsValidation(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case utils.IsUpstreamFetch(err):
		config.LogError(config.GetLogger(), "vitecsync", "respondError", requestContext(c), nil, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), "vitecsync", "respondError", requestContext(c), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func requestContext(c *gin.Context) string {
	if sessionId, ok := utils.GetSessionIdFromContext(c.Request.Context()); ok {
		return c.FullPath() + " session=" + sessionId
	}
	return c.FullPath()
}
