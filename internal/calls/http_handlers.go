package calls

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"callsight/pkg/logger"
	"callsight/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HTTPHandlers exposes the call lifecycle over HTTP. Handlers stay thin:
// parse input, call the engine, map sentinel errors to status codes.
// Provider error detail is logged upstream and never exposed here.
type HTTPHandlers struct {
	Engine *Engine

	// DB and Redis back the health probe; either may be nil in tests.
	DB    *sql.DB
	Redis *redis.Client
}

type createCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Task        string `json:"task"`

	FromNumber      string `json:"fromNumber"`
	Voice           string `json:"voice"`
	Model           string `json:"model"`
	Language        string `json:"language"`
	MaxDuration     int    `json:"max_duration"`
	VoicemailAction string `json:"voicemail_action"`
	Record          *bool  `json:"record"`
	WaitForGreeting *bool  `json:"wait_for_greeting"`
	AnsweredBy      *bool  `json:"answered_by_enabled"`

	// Legacy client field names, still accepted.
	LegacyPhoneNumber string `json:"phoneNumber"`
	LegacyScript      string `json:"baseScript"`
}

func (h HTTPHandlers) Create(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	call, err := h.Engine.Create(c.Request.Context(), CreateCallRequest{
		PhoneNumber:     firstNonEmpty(req.PhoneNumber, req.LegacyPhoneNumber),
		Script:          firstNonEmpty(req.Task, req.LegacyScript),
		FromNumber:      req.FromNumber,
		Voice:           req.Voice,
		Model:           req.Model,
		Language:        req.Language,
		MaxDuration:     req.MaxDuration,
		VoicemailAction: req.VoicemailAction,
		Record:          boolOr(req.Record, true),
		WaitForGreeting: boolOr(req.WaitForGreeting, false),
		AnsweredByCheck: boolOr(req.AnsweredBy, true),
	})
	switch {
	case errors.Is(err, ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone number and task/script are required"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to start call"})
	default:
		c.JSON(http.StatusCreated, call)
	}
}

func (h HTTPHandlers) List(c *gin.Context) {
	out, err := h.Engine.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list calls"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h HTTPHandlers) Health(c *gin.Context) {
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(c.Request.Context()).Err(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "redis unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "callsight",
	})
}

func (h HTTPHandlers) Clear(c *gin.Context) {
	n, err := h.Engine.ClearAll(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to clear calls"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All calls cleared successfully", "deleted_count": n})
}

func (h HTTPHandlers) Sync(c *gin.Context) {
	res, err := h.Engine.Sync(c.Request.Context())
	switch {
	case errors.Is(err, ErrSyncInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "sync already running"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to sync with provider"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (h HTTPHandlers) Get(c *gin.Context) {
	call, err := h.Engine.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch call"})
	default:
		c.JSON(http.StatusOK, call)
	}
}

func (h HTTPHandlers) Details(c *gin.Context) {
	details, err := h.Engine.Details(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch call details"})
	default:
		c.JSON(http.StatusOK, details)
	}
}

func (h HTTPHandlers) DownloadPDF(c *gin.Context) {
	id := c.Param("id")
	pdf, err := h.Engine.Report(c.Request.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, ErrNotCompleted):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "PDF is only available for completed calls"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
	default:
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="call-report-%s.pdf"`, id))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// Webhook is the public provider push entry point.
//
// It always acknowledges with success: the provider retries aggressively on
// non-2xx responses and retries would duplicate side effects. Failures are
// logged for operator visibility only.
func (h HTTPHandlers) Webhook(c *gin.Context) {
	log := logger.FromGin(c)

	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warn("webhook payload decode failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	if _, err := h.Engine.ApplyWebhook(c.Request.Context(), payload); err != nil {
		log.Error("webhook processing failed", "provider_call_id", payload.CallID, "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
