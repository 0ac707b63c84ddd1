// Package api exposes queue management and pipeline control over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/pipeline"
)

// Handlers provides HTTP handlers for the pipeline API.
type Handlers struct {
	pipeline *pipeline.Pipeline
	logger   logger.Logger
	version  string
}

// NewHandlers creates a handlers instance.
func NewHandlers(p *pipeline.Pipeline, log logger.Logger, version string) *Handlers {
	return &Handlers{
		pipeline: p,
		logger:   log,
		version:  version,
	}
}

// Health handles GET /healthz.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "postpipe",
		"version": h.version,
	})
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to get stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type createItemRequest struct {
	Platform string          `json:"platform" binding:"required"`
	Title    string          `json:"title"`
	Body     string          `json:"body" binding:"required"`
	Metadata domain.Metadata `json:"metadata"`
}

// CreateItem handles POST /api/v1/items.
func (h *Handlers) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform and body are required"})
		return
	}

	item, err := h.pipeline.CreateDraft(c.Request.Context(), req.Platform, req.Title, req.Body, req.Metadata)
	if err != nil {
		h.logger.Error("failed to create draft", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create content item"})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// ListQueue handles GET /api/v1/queue.
func (h *Handlers) ListQueue(c *gin.Context) {
	items, err := h.pipeline.Queue().List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list queue", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Enqueue handles POST /api/v1/queue/:id.
func (h *Handlers) Enqueue(c *gin.Context) {
	id := c.Param("id")
	item, err := h.pipeline.Queue().Enqueue(c.Request.Context(), id)
	if err != nil {
		h.renderQueueError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Dequeue handles DELETE /api/v1/queue/:id.
func (h *Handlers) Dequeue(c *gin.Context) {
	id := c.Param("id")
	item, err := h.pipeline.Queue().Dequeue(c.Request.Context(), id)
	if err != nil {
		h.renderQueueError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type reorderRequest struct {
	Position int `json:"position" binding:"required"`
}

// Reorder handles PUT /api/v1/queue/:id/position.
func (h *Handlers) Reorder(c *gin.Context) {
	id := c.Param("id")

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position is required"})
		return
	}

	item, err := h.pipeline.Queue().Reorder(c.Request.Context(), id, req.Position)
	if err != nil {
		h.renderQueueError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Publish handles POST /api/v1/items/:id/publish. The dispatch is
// fire-and-forget; 202 means the command was handed to the bus, not that
// the publish succeeded.
func (h *Handlers) Publish(c *gin.Context) {
	id := c.Param("id")
	if err := h.pipeline.Publish(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to dispatch publish",
			logger.String("item_id", id),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch publish command"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"item_id": id, "dispatched": true})
}

// Enable handles POST /api/v1/pipeline/enable.
func (h *Handlers) Enable(c *gin.Context) {
	h.pipeline.Enable()
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Disable handles POST /api/v1/pipeline/disable.
func (h *Handlers) Disable(c *gin.Context) {
	h.pipeline.Disable()
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (h *Handlers) renderQueueError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "content item not found"})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidPosition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("queue operation failed",
			logger.String("item_id", id),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue operation failed"})
	}
}
