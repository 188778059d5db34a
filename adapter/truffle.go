package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/onnwee/chat-relay/community"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// Truffle emits chat messages enriched from the community catalogs: aliased
// author names and colors, catalog badges and inline emotes.
type Truffle struct {
	store       *community.Store
	decoder     *community.Decoder
	modBadgeURL string
}

// NewTruffle returns an adapter with an empty catalog snapshot; Ready starts
// the first fetch.
func NewTruffle(opts Options) *Truffle {
	dec := opts.Decoder
	if dec == nil {
		dec = community.NewDecoder()
	}
	return &Truffle{
		store:       community.NewStore(opts.Community, opts.ChannelID, opts.CatalogInterval),
		decoder:     dec,
		modBadgeURL: opts.ModBadgeURL,
	}
}

func (t *Truffle) Type() Type { return TypeTruffle }

// Ready starts the initial catalog fetch in the background.
func (t *Truffle) Ready() { t.store.RefreshAsync() }

// Close stops any running catalog fetch.
func (t *Truffle) Close() { t.store.Close() }

// SetChannelID rescopes the user catalog to the stream's channel.
func (t *Truffle) SetChannelID(id string) { t.store.SetChannelID(id) }

// Store exposes the catalog store.
func (t *Truffle) Store() *community.Store { return t.store }

// Transform renders text messages against the latest completed snapshot and
// schedules a catalog refresh when the snapshot is stale.
func (t *Truffle) Transform(a youtubeapi.Action) ([]byte, error) {
	t.store.MaybeRefresh()
	if a.RendererType != youtubeapi.RendererTextMessage {
		return nil, nil
	}
	var m youtubeapi.TextMessage
	if err := a.DecodeRenderer(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
	}
	snap := t.store.Snapshot()
	alias := snap.ResolveAlias(&m, t.modBadgeURL)
	return json.Marshal(EnrichedMessageEvent{
		Type:    EventMessage,
		ID:      m.ID,
		Message: snap.Segments(&m, t.decoder),
		Author: EnrichedAuthor{
			ID:     m.AuthorExternalChannelID,
			Name:   alias.Name,
			Color:  alias.Color,
			Badges: alias.Badges,
		},
		Unix: youtubeapi.UnixSeconds(m.TimestampUsec),
	})
}
