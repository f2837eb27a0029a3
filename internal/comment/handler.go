package comment

import (
	"net/http"

	"collaborative-deck-editor/internal/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateThreadRequest struct {
	Anchor Anchor `json:"anchor" binding:"required"`
	Body   string `json:"body" binding:"required,min=1,max=4000"`
}

type ReplyRequest struct {
	Body string `json:"body" binding:"required,min=1,max=4000"`
}

type ResolveRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.service.ListThreads(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *Handler) CreateThread(c *gin.Context) {
	var form CreateThreadRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")

	thread, err := h.service.CreateThread(c.Request.Context(), c.Param("uuid"), userID.(uint64), form.Anchor, form.Body)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

func (h *Handler) Reply(c *gin.Context) {
	var form ReplyRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")

	comment, err := h.service.Reply(c.Request.Context(), c.Param("uuid"), c.Param("thread_id"), userID.(uint64), form.Body)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) Resolve(c *gin.Context) {
	var form ResolveRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	threads, err := h.service.Resolve(c.Request.Context(), c.Param("uuid"), c.Param("thread_id"), *form.Resolved)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *Handler) DeleteThread(c *gin.Context) {
	if err := h.service.DeleteThread(c.Request.Context(), c.Param("uuid"), c.Param("thread_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MentionDirectory(c *gin.Context) {
	userID, _ := c.Get("user_id")

	mentions, err := h.service.MentionDirectory(c.Request.Context(), c.Param("uuid"), userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mentions": mentions})
}
