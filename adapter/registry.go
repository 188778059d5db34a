package adapter

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/onnwee/chat-relay/community"
	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// Subscriber receives serialized events. Send must not block; it reports
// false when the event was dropped.
type Subscriber interface {
	ID() string
	Send(payload []byte) bool
}

type entry struct {
	adapter Adapter
	subs    map[string]Subscriber
}

// Registry maps each format to one shared adapter and its subscribers. An
// adapter exists exactly while it has at least one subscriber.
type Registry struct {
	mu      sync.Mutex
	opts    Options
	entries map[Type]*entry
}

// NewRegistry returns an empty Registry constructing adapters with opts.
func NewRegistry(opts Options) *Registry {
	if opts.Decoder == nil {
		opts.Decoder = community.NewDecoder()
	}
	return &Registry{opts: opts, entries: make(map[Type]*entry)}
}

// channelScoped is implemented by adapters whose output depends on the
// stream's channel.
type channelScoped interface {
	SetChannelID(id string)
}

// SetChannelID sets the channel for adapters constructed afterwards and
// rescopes the ones already registered.
func (r *Registry) SetChannelID(id string) {
	r.mu.Lock()
	r.opts.ChannelID = id
	var scoped []channelScoped
	for _, e := range r.entries {
		if cs, ok := e.adapter.(channelScoped); ok {
			scoped = append(scoped, cs)
		}
	}
	r.mu.Unlock()
	for _, cs := range scoped {
		cs.SetChannelID(id)
	}
}

// Attach subscribes sub to the adapter for the named format, constructing it
// on first use. Unknown names select the json format. The resolved type is
// returned for the matching Detach.
func (r *Registry) Attach(name string, sub Subscriber) Type {
	t := ParseType(name)
	r.mu.Lock()
	e, ok := r.entries[t]
	if !ok {
		e = &entry{adapter: New(t, r.opts), subs: make(map[string]Subscriber)}
		r.entries[t] = e
	}
	_, dup := e.subs[sub.ID()]
	e.subs[sub.ID()] = sub
	r.mu.Unlock()

	if !dup {
		telemetry.AddSubscribers(string(t), 1)
	}
	if !ok {
		if rd, isReadier := e.adapter.(Readier); isReadier {
			rd.Ready()
		}
	}
	return t
}

// Detach removes sub from format t and evicts the adapter when it was the
// last subscriber. It reports whether an eviction happened.
func (r *Registry) Detach(t Type, sub Subscriber) bool {
	r.mu.Lock()
	e, ok := r.entries[t]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, present := e.subs[sub.ID()]; !present {
		r.mu.Unlock()
		return false
	}
	delete(e.subs, sub.ID())
	evicted := len(e.subs) == 0
	if evicted {
		delete(r.entries, t)
	}
	r.mu.Unlock()

	telemetry.AddSubscribers(string(t), -1)
	if evicted {
		if c, isCloser := e.adapter.(Closer); isCloser {
			c.Close()
		}
	}
	return evicted
}

type target struct {
	adapter Adapter
	subs    []Subscriber
}

// snapshot copies the current adapters and subscribers so delivery can run
// without holding the lock.
func (r *Registry) snapshot() []target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]target, 0, len(r.entries))
	for _, e := range r.entries {
		subs := make([]Subscriber, 0, len(e.subs))
		for _, s := range e.subs {
			subs = append(subs, s)
		}
		out = append(out, target{adapter: e.adapter, subs: subs})
	}
	return out
}

// Broadcast transforms a once per registered adapter and sends the result to
// that adapter's subscribers. It returns the number of events queued.
func (r *Registry) Broadcast(a youtubeapi.Action) int {
	sent := 0
	for _, tg := range r.snapshot() {
		t := tg.adapter.Type()
		payload, err := tg.adapter.Transform(a)
		if err != nil {
			if errors.Is(err, ErrNotImplemented) {
				slog.Debug("adapter not implemented", slog.String("adapter", string(t)))
			} else {
				slog.Warn("adapter transform failed", slog.String("adapter", string(t)), slog.String("renderer", a.RendererType), slog.Any("err", err))
			}
			continue
		}
		if payload == nil {
			continue
		}
		n := 0
		for _, s := range tg.subs {
			if s.Send(payload) {
				n++
			} else {
				telemetry.IncEventsDropped(string(t))
			}
		}
		telemetry.AddEventsSent(string(t), n)
		sent += n
	}
	return sent
}

// HasSubscribers reports whether any adapter has a subscriber.
func (r *Registry) HasSubscribers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) > 0
}

// Counts returns the subscriber count per registered format.
func (r *Registry) Counts() map[Type]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Type]int, len(r.entries))
	for t, e := range r.entries {
		out[t] = len(e.subs)
	}
	return out
}

// Adapter returns the registered adapter for t, if any.
func (r *Registry) Adapter(t Type) (Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[t]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Close evicts every adapter. Subscribers are not notified.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Type]*entry)
	r.mu.Unlock()
	for t, e := range entries {
		telemetry.AddSubscribers(string(t), -len(e.subs))
		if c, ok := e.adapter.(Closer); ok {
			c.Close()
		}
	}
}
