package events

// Topic names are a contract surface shared with the frontend; renaming one
// breaks cross-component coordination.

type SlideNavigatePayload struct {
	DeckUUID   string
	SlideIndex int
}

type SlideDoubleClickPayload struct {
	DeckUUID string
	SlideID  string
}

type ForceEditModePayload struct {
	DeckUUID string
	SlideID  string
}

type CommentPayload struct {
	DeckUUID string
	ThreadID string
	Resolved bool
}

type SlideGenerationPayload struct {
	DeckUUID   string
	SlideIndex int
	SlideTitle string
}

type DeckGenerationPayload struct {
	DeckUUID string
	Message  string
}

type CursorMovedPayload struct {
	DeckUUID string
	ClientID string
	X, Y     float64
}

type SelectionChangedPayload struct {
	DeckUUID     string
	ClientID     string
	SlideID      string
	ComponentIDs []string
}

var (
	SlideNavigate          = Topic[SlideNavigatePayload]{Name: "slide:navigate"}
	SlideDoubleClick       = Topic[SlideDoubleClickPayload]{Name: "slide:doubleclick"}
	ForceEditMode          = Topic[ForceEditModePayload]{Name: "editor:force-edit-mode"}
	CommentAdded           = Topic[CommentPayload]{Name: "comments:added"}
	CommentResolved        = Topic[CommentPayload]{Name: "comments:resolved"}
	SlideStarted           = Topic[SlideGenerationPayload]{Name: "slide_started"}
	SlideCompleted         = Topic[SlideGenerationPayload]{Name: "slide_completed"}
	DeckGenerationComplete = Topic[DeckGenerationPayload]{Name: "deck_generation_complete"}
	DeckGenerationError    = Topic[DeckGenerationPayload]{Name: "deck_generation_error"}
	CursorMoved            = Topic[CursorMovedPayload]{Name: "cursor:moved"}
	SelectionChanged       = Topic[SelectionChangedPayload]{Name: "selection:changed"}
)
