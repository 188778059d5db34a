package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-relay/relay"
	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// HandleStream attaches a websocket to the relay of the video id in the path.
// Serves /v/{id} and /s/{id}.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !youtubeapi.ValidVideoID(id) {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected a websocket", http.StatusBadRequest)
		return
	}
	b, err := h.yt.FetchVideoData(r.Context(), []string{h.yt.WatchURL(id)})
	if err != nil {
		writeScrapeError(w, r, err)
		return
	}
	h.serveRelay(w, r, id, b)
}

// HandleChannel resolves a channel's current live video and attaches to it.
// The path id is either a channel id or a custom channel name.
func (h *Handlers) HandleChannel(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")
	if ref == "" {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected a websocket", http.StatusBadRequest)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context())

	b, err := h.yt.FetchVideoData(r.Context(), h.yt.ChannelLiveURLs(url.PathEscape(ref)))
	if err != nil && (h.searcher == nil || !errors.Is(err, youtubeapi.ErrStreamNotFound)) {
		writeScrapeError(w, r, err)
		return
	}
	var videoID string
	if err == nil {
		videoID = youtubeapi.FindLiveVideoID(b.InitialData)
	}
	if videoID == "" && h.searcher != nil {
		vid, serr := h.searcher.LiveVideoID(r.Context(), ref)
		switch {
		case serr == nil:
			log.Debug("live video resolved via data api", slog.String("channel", ref), slog.String("video", vid))
			b, err = h.yt.FetchVideoData(r.Context(), []string{h.yt.WatchURL(vid)})
			if err != nil {
				writeScrapeError(w, r, err)
				return
			}
			videoID = vid
		case !errors.Is(serr, youtubeapi.ErrStreamNotFound):
			log.Warn("data api live search failed", slog.String("channel", ref), slog.Any("err", serr))
		}
	}
	if videoID == "" {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}
	h.serveRelay(w, r, videoID, b)
}

// serveRelay initializes the stream's relay, upgrades the connection and
// attaches it with the adapter named by ?adapter=.
func (h *Handlers) serveRelay(w http.ResponseWriter, r *http.Request, videoID string, b *youtubeapi.Bootstrap) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("stream", videoID))

	rl := h.hub.Relay(videoID)
	if err := rl.Initialize(r.Context(), b); err != nil {
		if errors.Is(err, relay.ErrChatNotFound) {
			http.Error(w, "Failed to load chat", http.StatusNotFound)
			return
		}
		log.Warn("relay initialize failed", slog.Any("err", err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}

	sub := newWSSubscriber(conn, h.buffer)
	format := r.URL.Query().Get("adapter")
	detach, err := rl.Attach(sub, format)
	if err != nil {
		log.Warn("relay attach failed", slog.Any("err", err))
		sub.closeWith(websocket.CloseTryAgainLater, "relay closed")
		return
	}
	log.Info("subscriber attached", slog.String("subscriber", sub.ID()), slog.String("adapter", format))

	go sub.writePump()
	go func() {
		sub.readPump()
		detach()
		log.Info("subscriber detached", slog.String("subscriber", sub.ID()))
	}()
}

// writeScrapeError maps page scrape failures to HTTP responses.
func writeScrapeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *youtubeapi.FetchError
	switch {
	case errors.Is(err, youtubeapi.ErrStreamNotFound):
		http.Error(w, "Stream not found", http.StatusNotFound)
	case errors.Is(err, youtubeapi.ErrVideoData):
		http.Error(w, "Failed to find video data", http.StatusNotFound)
	case errors.As(err, &fe) && fe.Status != 0:
		http.Error(w, "Failed to fetch stream: "+http.StatusText(fe.Status), fe.Status)
	default:
		telemetry.LoggerWithCorr(r.Context()).Warn("page scrape failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		http.Error(w, "Failed to fetch stream", http.StatusBadGateway)
	}
}
