// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/relay"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// LiveSearcher resolves a channel's live video id when the live page does not.
type LiveSearcher interface {
	LiveVideoID(ctx context.Context, channelID string) (string, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	hub      *relay.Hub
	yt       *youtubeapi.Client
	searcher LiveSearcher
	db       *sql.DB
	buffer   int
	upgrader websocket.Upgrader
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps, cfg *config.Config, cors *corsConfig) *Handlers {
	yt := deps.YouTube
	if yt == nil {
		yt = &youtubeapi.Client{BaseURL: cfg.YouTubeBaseURL, HTTPClient: youtubeapi.NewHTTPClient()}
	}
	return &Handlers{
		hub:      deps.Hub,
		yt:       yt,
		searcher: deps.Searcher,
		db:       deps.DB,
		buffer:   cfg.SubscriberBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return cors.permissive || origin == "" || isOriginAllowed(origin, cors.allowedOrigins)
			},
		},
	}
}
