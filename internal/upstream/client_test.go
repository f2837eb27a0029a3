package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"collaborative-deck-editor/internal/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDeck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/decks/deck-1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"uuid":"deck-1","name":"Quarterly Review","slides":[{"id":"s1","title":"Intro"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	snapshot, err := client.FetchDeck(context.Background(), "deck-1")

	assert.NoError(t, err)
	assert.Equal(t, "Quarterly Review", snapshot.Title)
	assert.Len(t, snapshot.Slides, 1)
	assert.Equal(t, "s1", snapshot.Slides[0].ID)
}

func TestFetchDeckServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.FetchDeck(context.Background(), "deck-1")

	require.Error(t, err)
	assert.True(t, IsServerError(err))

	httpErr, ok := err.(*HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestFetchDeckNotFoundIsNotServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.FetchDeck(context.Background(), "deck-1")

	require.Error(t, err)
	assert.False(t, IsServerError(err))
}

func TestRemoveDeck(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	err := client.RemoveDeck(context.Background(), "deck-1")

	assert.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/internal/decks/deck-1", gotPath)
}

func TestGenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/images/generate", r.URL.Path)

		var req GenerateImageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a skyline at dusk", req.Prompt)
		assert.Equal(t, "16:9", req.AspectRatio)

		fmt.Fprint(w, `{"url":"https://img.example.com/1.png","revised_prompt":"a city skyline at dusk"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	resp, err := client.GenerateImage(context.Background(), GenerateImageRequest{
		Prompt:      "a skyline at dusk",
		AspectRatio: "16:9",
	})

	assert.NoError(t, err)
	assert.Equal(t, "https://img.example.com/1.png", resp.URL)
	assert.Equal(t, "a city skyline at dusk", resp.RevisedPrompt)
}

func TestStreamGenerationEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/decks/deck-1/generation/events", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")

		fmt.Fprint(w, "data: {\"type\":\"slide_started\",\"slide_index\":0,\"slide_title\":\"Intro\",\"total_slides\":3}\n\n")
		fmt.Fprint(w, ": heartbeat comment, must be ignored\n\n")
		fmt.Fprint(w, "data: Processing slide 1...\n\n")
		fmt.Fprint(w, "data: {\"type\":\"deck_complete\",\"progress\":100}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	ch, err := client.StreamGenerationEvents(context.Background(), "deck-1")
	require.NoError(t, err)

	var got []generation.Event
	for ev := range ch {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, generation.EventSlideStarted, got[0].Type)
	assert.Equal(t, "Intro", got[0].SlideTitle)
	assert.Equal(t, 3, got[0].TotalSlides)

	// bare strings from legacy producers become status events
	assert.Equal(t, generation.EventStatus, got[1].Type)
	assert.Equal(t, "Processing slide 1...", got[1].Message)

	assert.Equal(t, generation.EventDeckComplete, got[2].Type)
	assert.Equal(t, 100, got[2].Progress)
}

func TestStreamGenerationEventsRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.StreamGenerationEvents(context.Background(), "deck-1")

	assert.Error(t, err)
}
