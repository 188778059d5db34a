package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/chat-relay/telemetry"
)

// Hub owns one Relay per stream id.
type Hub struct {
	fetcher     Fetcher
	cfg         Config
	idleTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	relays map[string]*Relay
	closed bool
}

// NewHub returns an empty Hub. Relays left without subscribers for
// idleTimeout are reclaimed by Run; a non-positive timeout disables reclaiming.
func NewHub(fetcher Fetcher, cfg Config, idleTimeout time.Duration) *Hub {
	return &Hub{fetcher: fetcher, cfg: cfg, idleTimeout: idleTimeout, now: time.Now, relays: make(map[string]*Relay)}
}

// Relay returns the relay for streamID, creating it on first use. A returned
// relay is protected from reclamation for another idle timeout.
func (h *Hub) Relay(streamID string) *Relay {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.relays[streamID]; ok {
		r.touch()
		return r
	}
	r := New(streamID, h.fetcher, h.cfg)
	if h.closed {
		r.Close()
		return r
	}
	h.relays[streamID] = r
	telemetry.SetActiveStreams(len(h.relays))
	return r
}

// Get returns the relay for streamID without creating it.
func (h *Hub) Get(streamID string) (*Relay, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.relays[streamID]
	return r, ok
}

// Len returns the number of relays held.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.relays)
}

// Closed reports whether Close was called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// ReapIdle closes and forgets relays idle for longer than the idle timeout
// and returns how many were removed.
func (h *Hub) ReapIdle() int {
	if h.idleTimeout <= 0 {
		return 0
	}
	now := h.now()
	h.mu.Lock()
	var reaped []*Relay
	for id, r := range h.relays {
		since := r.IdleSince()
		if since.IsZero() || now.Sub(since) < h.idleTimeout {
			continue
		}
		delete(h.relays, id)
		reaped = append(reaped, r)
	}
	telemetry.SetActiveStreams(len(h.relays))
	h.mu.Unlock()

	for _, r := range reaped {
		r.Close()
		slog.Info("hub: reclaimed idle relay", slog.String("stream", r.ID()))
	}
	return len(reaped)
}

// Run reclaims idle relays every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if h.idleTimeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ReapIdle()
		}
	}
}

// Status describes one relay for operators.
type Status struct {
	StreamID     string         `json:"stream_id"`
	ChannelID    string         `json:"channel_id,omitempty"`
	State        string         `json:"state"`
	Polling      bool           `json:"polling"`
	Subscribers  map[string]int `json:"subscribers"`
	DedupEntries int            `json:"dedup_entries"`
	IdleSince    *time.Time     `json:"idle_since,omitempty"`
}

// Snapshot describes every relay, ordered by stream id.
func (h *Hub) Snapshot() []Status {
	h.mu.Lock()
	relays := make([]*Relay, 0, len(h.relays))
	for _, r := range h.relays {
		relays = append(relays, r)
	}
	h.mu.Unlock()

	out := make([]Status, 0, len(relays))
	for _, r := range relays {
		subs := map[string]int{}
		for t, n := range r.Subscribers() {
			subs[string(t)] = n
		}
		st := Status{
			StreamID:     r.ID(),
			ChannelID:    r.ChannelID(),
			State:        r.State().String(),
			Polling:      r.Polling(),
			Subscribers:  subs,
			DedupEntries: r.DedupLen(),
		}
		if since := r.IdleSince(); !since.IsZero() {
			st.IdleSince = &since
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// Close closes every relay. Relays requested afterwards are returned closed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	relays := h.relays
	h.relays = make(map[string]*Relay)
	telemetry.SetActiveStreams(0)
	h.mu.Unlock()
	for _, r := range relays {
		r.Close()
	}
}
