package deck

import (
	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/internal/utils"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateOrRenameRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255"`
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateOrRenameRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	d := &Deck{
		Title: form.Title,
	}

	if err := h.service.CreateDeck(c.Request.Context(), userID.(uint64), d); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, d)
}

func (h *Handler) Rename(c *gin.Context) {
	deckUUID := c.Param("uuid")
	userID, _ := c.Get("user_id")

	var input CreateOrRenameRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	d, err := h.service.RenameDeck(c.Request.Context(), deckUUID, userID.(uint64), input.Title)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, d)
}

func (h *Handler) ShowUserDecks(c *gin.Context) {
	userID, _ := c.Get("user_id")

	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.GetUserDecks(c.Request.Context(), userID.(uint64), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ShowDeck(c *gin.Context) {
	deckUUID := c.Param("uuid")
	userID, _ := c.Get("user_id")

	d, err := h.service.GetDeck(c.Request.Context(), deckUUID, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// ShowDeckState serves the persisted deck to trusted internal callers.
func (h *Handler) ShowDeckState(c *gin.Context) {
	d, err := h.service.GetDeckState(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// ShowMyRole returns the caller's own role on the deck.
func (h *Handler) ShowMyRole(c *gin.Context) {
	userID, _ := c.Get("user_id")

	role, err := h.service.FetchUserRole(c.Request.Context(), c.Param("uuid"), userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (h *Handler) ShowUserRole(c *gin.Context) {
	deckUUID := c.Param("uuid")

	userIDStr := c.Query("user_id")
	userIDUint, err := strconv.ParseUint(userIDStr, 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid user_id", err))
		return
	}

	role, err := h.service.FetchUserRole(c.Request.Context(), deckUUID, userIDUint)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (h *Handler) ListCollaborators(c *gin.Context) {
	deckUUID := c.Param("uuid")
	userID, _ := c.Get("user_id")

	result, err := h.service.ListCollaborators(
		c.Request.Context(),
		deckUUID,
		userID.(uint64),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type AddCollaboratorRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=editor viewer"`
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	deckUUID := c.Param("uuid")

	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	requesterID, _ := c.Get("user_id")

	result, err := h.service.AddCollaborator(
		c.Request.Context(),
		deckUUID,
		requesterID.(uint64),
		req.UserID,
		req.Role,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type ChangeCollaboratorRoleRequest struct {
	Role         string `json:"role" binding:"required,oneof=editor viewer"`
	TargetUserID uint64 `json:"user_id" binding:"required"`
}

func (h *Handler) ChangeCollaboratorRole(c *gin.Context) {
	deckUUID := c.Param("uuid")

	var req ChangeCollaboratorRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	requesterID, _ := c.Get("user_id")

	result, err := h.service.ChangeCollaboratorRole(
		c.Request.Context(),
		deckUUID,
		requesterID.(uint64),
		req.TargetUserID,
		req.Role,
	)

	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	deckUUID := c.Param("uuid")

	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid user id", err))
		return
	}

	requesterID, _ := c.Get("user_id")

	err = h.service.RemoveCollaborator(
		c.Request.Context(),
		deckUUID,
		requesterID.(uint64),
		targetUserID,
	)

	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "collaborator removed",
	})
}

func (h *Handler) DeleteDeck(c *gin.Context) {
	deckUUID := c.Param("uuid")
	userID, _ := c.Get("user_id")

	if err := h.service.DeleteDeck(c.Request.Context(), deckUUID, userID.(uint64)); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
