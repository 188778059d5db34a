// Package adapter turns provider chat actions into the event formats offered
// to websocket subscribers and fans them out per format.
//
// Each format is one Adapter implementation. A Registry keeps at most one
// adapter instance per format for a relay, shared by every subscriber of that
// format, and drops the instance once its last subscriber leaves.
package adapter

import (
	"errors"
	"strings"
	"time"

	"github.com/onnwee/chat-relay/community"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// Type names an event format.
type Type string

const (
	TypeJSON     Type = "json"
	TypeRaw      Type = "raw"
	TypeIRC      Type = "irc"
	TypeTruffle  Type = "truffle"
	TypeSubathon Type = "subathon"
)

// ErrNotImplemented is returned by formats that exist by name only.
var ErrNotImplemented = errors.New("adapter not implemented")

// ParseType maps a requested format name to a Type. Empty and unknown names
// select TypeJSON.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeJSON, TypeRaw, TypeIRC, TypeTruffle, TypeSubathon:
		return t
	default:
		return TypeJSON
	}
}

// Adapter transforms one action into a serialized event. A nil payload with a
// nil error means the action is not represented in this format.
type Adapter interface {
	Type() Type
	Transform(a youtubeapi.Action) ([]byte, error)
}

// Readier is implemented by adapters that load state in the background. The
// registry calls Ready once after construction; it must not block.
type Readier interface {
	Ready()
}

// Closer is implemented by adapters holding background resources, released
// when the registry evicts the adapter.
type Closer interface {
	Close()
}

// Options configures adapter construction.
type Options struct {
	// Community is the enrichment gateway client; nil disables catalogs.
	Community *community.Client
	// ChannelID scopes the user catalog.
	ChannelID       string
	CatalogInterval time.Duration
	ModBadgeURL     string
	// Decoder is shared across adapters; nil gives each adapter its own.
	Decoder *community.Decoder
}

// New constructs the adapter for t. Unknown types construct TypeJSON.
func New(t Type, opts Options) Adapter {
	switch t {
	case TypeRaw:
		return Raw{}
	case TypeIRC:
		return IRC{}
	case TypeTruffle:
		return NewTruffle(opts)
	case TypeSubathon:
		return Subathon{}
	default:
		return JSON{}
	}
}
