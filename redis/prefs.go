package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const recentImagesMax = 20

// Prefs stores small per-user editor preferences as independent keys.
// No schema versioning; each key is read and written on its own.
type Prefs struct {
	client *redis.Client
}

func NewPrefs(client *redis.Client) *Prefs {
	return &Prefs{client: client}
}

// PushRecentImage prepends an image URL to the user's recently-used list,
// dropping duplicates and capping the list length.
func (p *Prefs) PushRecentImage(ctx context.Context, userID uint64, url string) error {
	if p.client == nil {
		return nil
	}
	key := fmt.Sprintf("prefs:u:%d:recent_images", userID)
	pipe := p.client.TxPipeline()
	pipe.LRem(ctx, key, 0, url)
	pipe.LPush(ctx, key, url)
	pipe.LTrim(ctx, key, 0, recentImagesMax-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Prefs) RecentImages(ctx context.Context, userID uint64) ([]string, error) {
	if p.client == nil {
		return nil, nil
	}
	key := fmt.Sprintf("prefs:u:%d:recent_images", userID)
	return p.client.LRange(ctx, key, 0, -1).Result()
}

func (p *Prefs) SetAutoSelect(ctx context.Context, userID uint64, enabled bool) error {
	if p.client == nil {
		return nil
	}
	return p.client.Set(ctx, fmt.Sprintf("prefs:u:%d:auto_select", userID), enabled, 0).Err()
}

func (p *Prefs) AutoSelect(ctx context.Context, userID uint64) bool {
	if p.client == nil {
		return false
	}
	v, err := p.client.Get(ctx, fmt.Sprintf("prefs:u:%d:auto_select", userID)).Bool()
	if err != nil {
		return false
	}
	return v
}

func (p *Prefs) MarkTourSeen(ctx context.Context, userID uint64) error {
	if p.client == nil {
		return nil
	}
	return p.client.Set(ctx, fmt.Sprintf("prefs:u:%d:tour_seen", userID), true, 0).Err()
}

func (p *Prefs) TourSeen(ctx context.Context, userID uint64) bool {
	if p.client == nil {
		return false
	}
	v, err := p.client.Get(ctx, fmt.Sprintf("prefs:u:%d:tour_seen", userID)).Bool()
	if err != nil {
		return false
	}
	return v
}

// MarkImportPromptShown records that the import prompt was shown for a deck.
func (p *Prefs) MarkImportPromptShown(ctx context.Context, userID uint64, deckUUID string) error {
	if p.client == nil {
		return nil
	}
	return p.client.Set(ctx, fmt.Sprintf("prefs:u:%d:deck:%s:import_prompt", userID, deckUUID), true, 0).Err()
}

func (p *Prefs) ImportPromptShown(ctx context.Context, userID uint64, deckUUID string) bool {
	if p.client == nil {
		return false
	}
	v, err := p.client.Get(ctx, fmt.Sprintf("prefs:u:%d:deck:%s:import_prompt", userID, deckUUID)).Bool()
	if err != nil {
		return false
	}
	return v
}
