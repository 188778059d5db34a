package youtubeapi

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// LiveSearcher finds a channel's current live broadcast through the Data API.
// It is the fallback when the channel's live page does not embed a video id.
type LiveSearcher struct {
	svc *yt.Service
}

// NewLiveSearcher builds a Data API client authenticated with an API key.
func NewLiveSearcher(ctx context.Context, apiKey string, opts ...option.ClientOption) (*LiveSearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("data api key empty")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube data api: %w", err)
	}
	return &LiveSearcher{svc: svc}, nil
}

// LiveVideoID returns the id of the channel's live video, or ErrStreamNotFound.
func (s *LiveSearcher) LiveVideoID(ctx context.Context, channelID string) (string, error) {
	if !channelIDPattern.MatchString(channelID) {
		return "", ErrStreamNotFound
	}
	res, err := s.svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", ErrStreamNotFound
}
