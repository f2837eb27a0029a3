package session

import (
	"io"
	"net/http"
	"strings"

	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/internal/events"
	"collaborative-deck-editor/internal/presence"
	"collaborative-deck-editor/internal/upstream"
	"collaborative-deck-editor/redis"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Handler exposes the live-editing surface of an open session: slide and
// component mutations, drafts, undo/redo, generation control, presence and
// the SSE feeds.
type Handler struct {
	registry *Registry
	decks    deck.Service
	client   *upstream.Client
	prefs    *redis.Prefs
}

func NewHandler(registry *Registry, decks deck.Service, client *upstream.Client, prefs *redis.Prefs) *Handler {
	return &Handler{registry: registry, decks: decks, client: client, prefs: prefs}
}

// requireEditor loads the session and ensures the caller may mutate the deck.
func (h *Handler) requireEditor(c *gin.Context) (*EditorSession, bool) {
	deckUUID := c.Param("uuid")
	userID, _ := c.Get("user_id")

	role, err := h.decks.FetchUserRole(c.Request.Context(), deckUUID, userID.(uint64))
	if err != nil {
		c.Error(err)
		return nil, false
	}
	if role != "owner" && role != "editor" {
		c.Error(errors.Forbidden("Viewers cannot edit this deck", nil))
		return nil, false
	}

	s, err := h.registry.Get(deckUUID)
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return s, true
}

func (h *Handler) session(c *gin.Context) (*EditorSession, bool) {
	s, err := h.registry.Get(c.Param("uuid"))
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return s, true
}

// ---- session lifecycle ----

func (h *Handler) Open(c *gin.Context) {
	userID, _ := c.Get("user_id")

	s, err := h.registry.Open(c.Request.Context(), c.Param("uuid"), userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deck":          s.Store.Snapshot(),
		"current_slide": s.Store.CurrentIndex(),
		"generation":    s.Tracker.Status(),
		"peers":         s.Hub.Peers(),
	})
}

func (h *Handler) Close(c *gin.Context) {
	h.registry.Close(c.Param("uuid"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) State(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deck":          s.Store.Snapshot(),
		"current_slide": s.Store.CurrentIndex(),
		"generation":    s.Tracker.Status(),
	})
}

// ---- slide operations ----

type AddSlideRequest struct {
	AfterSlideID string `json:"after_slide_id"`
	Title        string `json:"title"`
}

func (h *Handler) AddSlide(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	var form AddSlideRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	slide := deck.Slide{Title: form.Title, Status: deck.SlideCompleted}
	var added deck.Slide
	if form.AfterSlideID == "" {
		added = s.Store.AppendSlide(slide, deck.UpdateOptions{})
	} else {
		var err error
		added, err = s.Store.AddSlideAfter(form.AfterSlideID, slide, deck.UpdateOptions{})
		if err != nil {
			c.Error(err)
			return
		}
	}
	c.JSON(http.StatusCreated, added)
}

func (h *Handler) RemoveSlide(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	slideID := c.Param("slide_id")
	if err := s.Store.RemoveSlide(slideID, deck.UpdateOptions{}); err != nil {
		c.Error(err)
		return
	}
	s.History.Clear(slideID)
	s.Drafts.Discard(slideID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) DuplicateSlide(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	copied, err := s.Store.DuplicateSlide(c.Param("slide_id"), deck.UpdateOptions{})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, copied)
}

type ReorderRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

func (h *Handler) ReorderSlides(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	var form ReorderRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	if err := s.Store.ReorderSlides(*form.From, *form.To, deck.UpdateOptions{}); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_slide": s.Store.CurrentIndex()})
}

type UpdateSlideRequest struct {
	Title      *string          `json:"title"`
	Components []deck.Component `json:"components"`
}

func (h *Handler) UpdateSlide(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	var form UpdateSlideRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	patch := deck.SlidePatch{Title: form.Title, Components: form.Components}
	if err := s.Store.UpdateSlide(c.Param("slide_id"), patch, deck.UpdateOptions{}); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (h *Handler) Navigate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form NavigateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	s.Store.SetCurrentIndex(*form.Index)
	events.SlideNavigate.Publish(s.Bus, events.SlideNavigatePayload{
		DeckUUID:   s.DeckUUID,
		SlideIndex: s.Store.CurrentIndex(),
	})
	c.JSON(http.StatusOK, gin.H{"current_slide": s.Store.CurrentIndex()})
}

// ---- component operations ----

type AddComponentRequest struct {
	Type     string         `json:"type" binding:"required"`
	Props    datatypes.JSON `json:"props"`
	Children []string       `json:"children"`
}

func (h *Handler) AddComponent(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	var form AddComponentRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	comp := deck.Component{Type: form.Type, Props: form.Props, Children: form.Children}
	added, err := s.Store.AddComponent(c.Param("slide_id"), comp, deck.UpdateOptions{})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (h *Handler) RemoveComponent(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	err := s.Store.RemoveComponent(c.Param("slide_id"), c.Param("component_id"), deck.UpdateOptions{})
	if err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- draft editing ----

func (h *Handler) BeginEdit(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	slideID := c.Param("slide_id")
	snapshot := s.Store.Snapshot()
	for i := range snapshot.Slides {
		if snapshot.Slides[i].ID == slideID {
			s.Drafts.BeginEdit(snapshot.Slides[i])
			// double-clicking a slide both selects it and forces edit mode
			events.SlideDoubleClick.Publish(s.Bus, events.SlideDoubleClickPayload{
				DeckUUID: s.DeckUUID,
				SlideID:  slideID,
			})
			events.ForceEditMode.Publish(s.Bus, events.ForceEditModePayload{
				DeckUUID: s.DeckUUID,
				SlideID:  slideID,
			})
			comps, _ := s.Drafts.Components(slideID)
			c.JSON(http.StatusOK, gin.H{"components": comps})
			return
		}
	}
	c.Error(errors.NotFound("Slide not found", nil))
}

type StageRequest struct {
	Components []deck.Component `json:"components" binding:"required"`
}

func (h *Handler) StageDraft(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	var form StageRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	if err := s.Drafts.Stage(c.Param("slide_id"), form.Components); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CommitDraft(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	slideID := c.Param("slide_id")
	comps, err := s.Drafts.Commit(slideID)
	if err != nil {
		c.Error(err)
		return
	}

	// snapshot current components as the undo point before overwriting
	snapshot := s.Store.Snapshot()
	for i := range snapshot.Slides {
		if snapshot.Slides[i].ID == slideID {
			s.History.Push(slideID, snapshot.Slides[i].Components)
			break
		}
	}

	if err := s.Store.UpdateSlide(slideID, deck.SlidePatch{Components: comps}, deck.UpdateOptions{}); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DiscardDraft(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	s.Drafts.Discard(c.Param("slide_id"))
	c.Status(http.StatusNoContent)
}

// ---- undo / redo ----

func (h *Handler) Undo(c *gin.Context) {
	h.applyHistory(c, func(s *EditorSession, slideID string, current []deck.Component) ([]deck.Component, bool) {
		return s.History.Undo(slideID, current)
	})
}

func (h *Handler) Redo(c *gin.Context) {
	h.applyHistory(c, func(s *EditorSession, slideID string, current []deck.Component) ([]deck.Component, bool) {
		return s.History.Redo(slideID, current)
	})
}

func (h *Handler) applyHistory(c *gin.Context, step func(*EditorSession, string, []deck.Component) ([]deck.Component, bool)) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	slideID := c.Param("slide_id")
	snapshot := s.Store.Snapshot()
	var current []deck.Component
	found := false
	for i := range snapshot.Slides {
		if snapshot.Slides[i].ID == slideID {
			current = snapshot.Slides[i].Components
			found = true
			break
		}
	}
	if !found {
		c.Error(errors.NotFound("Slide not found", nil))
		return
	}

	restored, ok := step(s, slideID, current)
	if !ok {
		c.Error(errors.UnprocessableEntity("Nothing to apply", nil))
		return
	}
	if err := s.Store.UpdateSlide(slideID, deck.SlidePatch{Components: restored}, deck.UpdateOptions{}); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"components": restored})
}

// ---- generation ----

func (h *Handler) StartGeneration(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	if err := s.StartGeneration(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, s.Tracker.Status())
}

func (h *Handler) StopGeneration(c *gin.Context) {
	s, ok := h.requireEditor(c)
	if !ok {
		return
	}

	s.StopGeneration()
	c.JSON(http.StatusOK, s.Tracker.Status())
}

// GenerationEvents streams generation status snapshots over SSE.
func (h *Handler) GenerationEvents(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	updates := make(chan deck.GenerationStatus, 16)
	id := s.Tracker.On(func(status deck.GenerationStatus) {
		select {
		case updates <- status:
		default: // slow client, drop; next update carries newer state
		}
	})
	defer s.Tracker.Off(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// initial snapshot so reconnecting clients resync immediately
	c.SSEvent("generation_status", s.Tracker.Status())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case status := <-updates:
			c.SSEvent("generation_status", status)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ---- presence ----

type CursorRequest struct {
	ClientID string  `json:"client_id" binding:"required"`
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	Seq      uint64  `json:"seq" binding:"required"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Zoom     float64 `json:"zoom"`
}

func (h *Handler) Cursor(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form CursorRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")

	s.Hub.Broadcast(c.Request.Context(), presence.Message{
		Kind:     presence.KindCursor,
		ClientID: form.ClientID,
		UserID:   userID.(uint64),
		Name:     form.Name,
		Color:    form.Color,
		Seq:      form.Seq,
		Pos:      presence.Point{X: form.X, Y: form.Y},
		Zoom:     form.Zoom,
	})
	events.CursorMoved.Publish(s.Bus, events.CursorMovedPayload{
		DeckUUID: s.DeckUUID,
		ClientID: form.ClientID,
		X:        form.X,
		Y:        form.Y,
	})
	c.Status(http.StatusAccepted)
}

type SelectionRequest struct {
	ClientID     string   `json:"client_id" binding:"required"`
	Seq          uint64   `json:"seq" binding:"required"`
	SlideID      string   `json:"slide_id" binding:"required"`
	ComponentIDs []string `json:"component_ids"`
}

func (h *Handler) Selection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form SelectionRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")

	s.Hub.Broadcast(c.Request.Context(), presence.Message{
		Kind:         presence.KindSelection,
		ClientID:     form.ClientID,
		UserID:       userID.(uint64),
		Seq:          form.Seq,
		SlideID:      form.SlideID,
		ComponentIDs: form.ComponentIDs,
	})
	events.SelectionChanged.Publish(s.Bus, events.SelectionChangedPayload{
		DeckUUID:     s.DeckUUID,
		ClientID:     form.ClientID,
		SlideID:      form.SlideID,
		ComponentIDs: form.ComponentIDs,
	})
	c.Status(http.StatusAccepted)
}

func (h *Handler) Peers(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": s.Hub.Peers()})
}

// PresenceEvents streams peer cursor/selection updates over SSE.
func (h *Handler) PresenceEvents(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	id, updates := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-updates:
			if !open {
				return false
			}
			event := "cursor"
			if msg.Kind == presence.KindSelection {
				event = "selection"
			}
			c.SSEvent(event, msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ---- sync ----

// Sync triggers an immediate reconcile pass; the reconciler's throttle still
// applies.
func (h *Handler) Sync(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.Reconciler.Sync(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"deck":   s.Store.Snapshot(),
		"failed": s.Reconciler.Failed(),
	})
}

// ---- images & prefs ----

type GenerateImageForm struct {
	Prompt       string `json:"prompt" binding:"required"`
	SlideContext string `json:"slideContext"`
	Style        string `json:"style"`
	AspectRatio  string `json:"aspectRatio"`
	DeckTheme    string `json:"deckTheme"`
}

func (h *Handler) GenerateImage(c *gin.Context) {
	var form GenerateImageForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")

	resp, err := h.client.GenerateImage(c.Request.Context(), upstream.GenerateImageRequest{
		Prompt:       form.Prompt,
		SlideContext: form.SlideContext,
		Style:        strings.ToLower(form.Style),
		AspectRatio:  form.AspectRatio,
		DeckTheme:    form.DeckTheme,
	})
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	if err := h.prefs.PushRecentImage(c.Request.Context(), userID.(uint64), resp.URL); err == nil {
		if h.prefs.AutoSelect(c.Request.Context(), userID.(uint64)) {
			c.JSON(http.StatusOK, gin.H{"url": resp.URL, "revised_prompt": resp.RevisedPrompt, "auto_select": true})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"url": resp.URL, "revised_prompt": resp.RevisedPrompt, "auto_select": false})
}

func (h *Handler) RecentImages(c *gin.Context) {
	userID, _ := c.Get("user_id")

	urls, err := h.prefs.RecentImages(c.Request.Context(), userID.(uint64))
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": urls})
}

type PrefsForm struct {
	AutoSelect *bool `json:"auto_select"`
	TourSeen   *bool `json:"tour_seen"`
}

func (h *Handler) UpdatePrefs(c *gin.Context) {
	var form PrefsForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := c.Get("user_id")
	ctx := c.Request.Context()

	if form.AutoSelect != nil {
		if err := h.prefs.SetAutoSelect(ctx, userID.(uint64), *form.AutoSelect); err != nil {
			c.Error(errors.Internal(err))
			return
		}
	}
	if form.TourSeen != nil && *form.TourSeen {
		if err := h.prefs.MarkTourSeen(ctx, userID.(uint64)); err != nil {
			c.Error(errors.Internal(err))
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetPrefs(c *gin.Context) {
	userID, _ := c.Get("user_id")
	ctx := c.Request.Context()

	resp := gin.H{
		"auto_select": h.prefs.AutoSelect(ctx, userID.(uint64)),
		"tour_seen":   h.prefs.TourSeen(ctx, userID.(uint64)),
	}
	// per-deck flag, reported when the client says which deck it has open
	if deckUUID := c.Query("deck"); deckUUID != "" {
		resp["import_prompt_shown"] = h.prefs.ImportPromptShown(ctx, userID.(uint64), deckUUID)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkImportPromptShown(c *gin.Context) {
	userID, _ := c.Get("user_id")

	if err := h.prefs.MarkImportPromptShown(c.Request.Context(), userID.(uint64), c.Param("uuid")); err != nil {
		c.Error(errors.Internal(err))
		return
	}
	c.Status(http.StatusNoContent)
}
