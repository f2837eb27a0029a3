package upstream

import (
	"bytes"
	"collaborative-deck-editor/internal/deck"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the upstream content service, which owns the authoritative
// deck snapshots and runs AI deck/image generation.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// HTTPError carries the upstream status code so callers can decide whether a
// failure is retryable.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.Status, e.Body)
}

// IsServerError reports whether err is an upstream 5xx response.
func IsServerError(err error) bool {
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.Status >= 500
	}
	return false
}

// DeckSnapshot is the authoritative deck state as served by the upstream.
type DeckSnapshot struct {
	UUID   string       `json:"uuid"`
	Title  string       `json:"name"`
	Slides []deck.Slide `json:"slides"`
}

// FetchDeck retrieves the full authoritative deck snapshot.
func (c *Client) FetchDeck(ctx context.Context, deckUUID string) (*DeckSnapshot, error) {
	url := fmt.Sprintf(
		"%s/internal/decks/%s",
		c.baseURL,
		deckUUID,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(b)}
	}

	var payload DeckSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

// RemoveDeck tells the upstream a deck was deleted locally.
func (c *Client) RemoveDeck(ctx context.Context, deckUUID string) error {
	url := fmt.Sprintf(
		"%s/internal/decks/%s",
		c.baseURL,
		deckUUID,
	)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodDelete,
		url,
		nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &HTTPError{Status: resp.StatusCode, Body: string(b)}
	}

	return nil
}

type GenerateImageRequest struct {
	Prompt       string `json:"prompt"`
	SlideContext string `json:"slideContext,omitempty"`
	Style        string `json:"style,omitempty"`
	AspectRatio  string `json:"aspectRatio,omitempty"`
	DeckTheme    string `json:"deckTheme,omitempty"`
}

type GenerateImageResponse struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt"`
}

// GenerateImage requests an AI-generated image for a slide.
func (c *Client) GenerateImage(ctx context.Context, reqBody GenerateImageRequest) (*GenerateImageResponse, error) {
	url := fmt.Sprintf("%s/api/images/generate", c.baseURL)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(b)}
	}

	var payload GenerateImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}
