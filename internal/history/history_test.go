package history

import (
	"collaborative-deck-editor/internal/deck"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gorm.io/datatypes"
)

func comps(text string) []deck.Component {
	return []deck.Component{
		{ID: "txt-1", Type: deck.ComponentTextBlock, Props: datatypes.JSON(`{"text":"` + text + `"}`)},
	}
}

func TestUndoRestoresSnapshot(t *testing.T) {
	store := NewStore()
	store.Push("s1", comps("v1"))

	restored, ok := store.Undo("s1", comps("v2"))

	assert.True(t, ok)
	assert.JSONEq(t, `{"text":"v1"}`, string(restored[0].Props))
	assert.True(t, store.CanRedo("s1"))
}

func TestRedoReappliesUndoneState(t *testing.T) {
	store := NewStore()
	store.Push("s1", comps("v1"))
	restored, _ := store.Undo("s1", comps("v2"))

	redone, ok := store.Redo("s1", restored)

	assert.True(t, ok)
	assert.JSONEq(t, `{"text":"v2"}`, string(redone[0].Props))
	assert.True(t, store.CanUndo("s1"))
}

func TestPushClearsRedoStack(t *testing.T) {
	store := NewStore()
	store.Push("s1", comps("v1"))
	_, _ = store.Undo("s1", comps("v2"))
	assert.True(t, store.CanRedo("s1"))

	store.Push("s1", comps("v3"))

	assert.False(t, store.CanRedo("s1"), "new edit should fork away from undone states")
}

func TestUndoOnEmptyStack(t *testing.T) {
	store := NewStore()

	_, ok := store.Undo("s1", comps("v1"))

	assert.False(t, ok)
	assert.False(t, store.CanRedo("s1"))
}

func TestHistoryIsPerSlide(t *testing.T) {
	store := NewStore()
	store.Push("s1", comps("a"))

	assert.True(t, store.CanUndo("s1"))
	assert.False(t, store.CanUndo("s2"))

	_, ok := store.Undo("s2", comps("b"))
	assert.False(t, ok)
	assert.True(t, store.CanUndo("s1"), "undo on another slide must not consume s1 history")
}

func TestUndoDepthIsBounded(t *testing.T) {
	store := NewStore()
	store.limit = 3
	for i := 0; i < 5; i++ {
		store.Push("s1", comps(fmt.Sprintf("v%d", i)))
	}

	var texts []string
	current := comps("current")
	for {
		restored, ok := store.Undo("s1", current)
		if !ok {
			break
		}
		texts = append(texts, string(restored[0].Props))
		current = restored
	}

	assert.Len(t, texts, 3, "oldest snapshots should be evicted")
	assert.JSONEq(t, `{"text":"v4"}`, texts[0])
	assert.JSONEq(t, `{"text":"v2"}`, texts[2])
}

func TestClearDropsBothStacks(t *testing.T) {
	store := NewStore()
	store.Push("s1", comps("v1"))
	_, _ = store.Undo("s1", comps("v2"))

	store.Clear("s1")

	assert.False(t, store.CanUndo("s1"))
	assert.False(t, store.CanRedo("s1"))
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store := NewStore()
	original := comps("v1")
	store.Push("s1", original)

	original[0].Props = datatypes.JSON(`{"text":"mutated"}`)

	restored, _ := store.Undo("s1", comps("v2"))
	assert.JSONEq(t, `{"text":"v1"}`, string(restored[0].Props))
}
