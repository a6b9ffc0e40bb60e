package webapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/zulandar/docchat/internal/session"
)

type handlers struct {
	ctrl      Controller
	health    HealthSource
	ctx       context.Context
	maxUpload int64
	heartbeat time.Duration
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	api := router.Group("/api")

	api.GET("/state", h.state)
	api.GET("/events", h.events)
	api.GET("/health", h.healthStatus)

	api.POST("/messages", h.sendMessage)
	api.POST("/documents", h.submitDocument)
	api.POST("/reset", h.intent(h.ctrl.RequestReset))
	api.POST("/reset/confirm", h.intent(h.ctrl.ConfirmReset))
	api.POST("/reset/cancel", h.intent(h.ctrl.CancelReset))
	api.POST("/error/dismiss", h.intent(h.ctrl.DismissError))
	api.POST("/cancel", h.cancel)
}

type messageRequest struct {
	Query string `json:"query" binding:"required"`
}

type cancelRequest struct {
	Op string `json:"op" binding:"omitempty,oneof=chat upload"`
}

// respond writes the post-intent state with 202 when the intent was
// accepted and 409 when a precondition rejected it.
func (h *handlers) respond(c *gin.Context, accepted bool) {
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"accepted": accepted, "state": h.ctrl.State()})
}

func (h *handlers) intent(fn func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.respond(c, fn())
	}
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	h.respond(c, h.ctrl.SendAsync(h.ctx, req.Query))
}

func (h *handlers) submitDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || strings.HasPrefix(mediaType, "application/octet-stream") {
		mediaType = mimetype.Detect(data).String()
	}
	doc := session.Document{Name: fh.Filename, MediaType: mediaType, Data: data}
	h.respond(c, h.ctrl.SubmitAsync(h.ctx, doc))
}

func (h *handlers) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "op must be chat or upload"})
		return
	}
	var canceled bool
	if req.Op == "" || req.Op == "chat" {
		canceled = h.ctrl.CancelTurn() || canceled
	}
	if req.Op == "" || req.Op == "upload" {
		canceled = h.ctrl.CancelUpload() || canceled
	}
	h.respond(c, canceled)
}

func (h *handlers) healthStatus(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "health monitoring is disabled"})
		return
	}
	st, ok := h.health.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"checked": false})
		return
	}
	status := http.StatusOK
	if !st.Reachable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"checked": true, "status": st})
}
