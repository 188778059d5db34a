// Package testutil holds mock upstream servers and database helpers shared by
// package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockServer routes requests by exact path to registered handlers and counts
// hits per path. Unknown paths answer 404.
type MockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockServer starts a MockServer closed at test cleanup.
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()
	m := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		handler, ok := m.handlers[r.URL.Path]
		m.hits[r.URL.Path]++
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for path, replacing any previous handler.
func (m *MockServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// JSON registers a handler that writes v as JSON.
func (m *MockServer) JSON(path string, v any) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	})
}

// Status registers a handler that answers with code and no body.
func (m *MockServer) Status(path string, code int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

// Hits returns how many requests reached path.
func (m *MockServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// MockCommunityEmotes serves the emote catalog.
func (m *MockServer) MockCommunityEmotes(emotes []map[string]any) {
	m.JSON("/gateway/emotes", emotes)
}

// MockCommunityUsers serves the user catalog of channelID. users maps a
// provider user id to its short-key record.
func (m *MockServer) MockCommunityUsers(channelID string, users map[string]map[string]any) {
	pairs := make([][2]any, 0, len(users))
	for id, rec := range users {
		pairs = append(pairs, [2]any{id, rec})
	}
	m.JSON("/gateway/users/c/"+channelID, pairs)
}

// MockCommunityBadges serves the badge catalog.
func (m *MockServer) MockCommunityBadges(badges []map[string]any) {
	m.JSON("/gateway/badges", badges)
}

// LiveChatPath is the provider live-chat endpoint path.
const LiveChatPath = "/youtubei/v1/live_chat/get_live_chat"

// MockLiveChat serves successive bodies from the live-chat endpoint; once
// exhausted the last body repeats. Each body is written verbatim.
func (m *MockServer) MockLiveChat(bodies ...string) {
	var mu sync.Mutex
	i := 0
	m.Handle(LiveChatPath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body := bodies[i]
		if i < len(bodies)-1 {
			i++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body)) //nolint:errcheck // test mock response
	})
}

// MockPage serves an HTML page at path.
func (m *MockServer) MockPage(path, html string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html)) //nolint:errcheck // test mock response
	})
}

// WatchPage builds a minimal watch page whose bootstrap carries a live chat
// continuation token and the author channel id.
func WatchPage(token, channelID string) string {
	return `<html><script>var ytInitialData = {"contents":{"title":"Live chat","continuation":{"reloadContinuationData":{"continuation":"` + token + `"}},` +
		`"owner":{"navigationEndpoint":{"channelNavigationEndpoint":{"browseEndpoint":{"browseId":"` + channelID + `"}}}}}};</script>` +
		`<script>ytcfg.set({"INNERTUBE_API_KEY":"key-1","INNERTUBE_CONTEXT":{"client":{"clientName":"WEB"}}});</script></html>`
}
