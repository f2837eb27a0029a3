package upstream

import (
	"bufio"
	"collaborative-deck-editor/internal/generation"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// StreamGenerationEvents subscribes to the upstream server-sent event stream
// for a deck's generation run. The returned channel closes when the stream
// ends or ctx is cancelled.
func (c *Client) StreamGenerationEvents(ctx context.Context, deckUUID string) (<-chan generation.Event, error) {
	url := fmt.Sprintf("%s/internal/decks/%s/generation/events", c.baseURL, deckUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	// the stream outlives the client's request timeout on purpose
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Status}
	}

	ch := make(chan generation.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var ev generation.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				// legacy producers send bare status strings
				ev = generation.Event{Type: generation.EventStatus, Message: data}
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("deck", deckUUID).Msg("generation event stream ended with error")
		}
	}()

	return ch, nil
}
