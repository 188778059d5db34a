package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/onnwee/chat-relay/youtubeapi"
)

// Raw forwards every action without its tracking field.
type Raw struct{}

func (Raw) Type() Type { return TypeRaw }

// Transform returns the compacted cleaned action; actions that are not valid
// JSON are forwarded unchanged.
func (Raw) Transform(a youtubeapi.Action) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, a.Cleaned); err != nil {
		out := make([]byte, len(a.Cleaned))
		copy(out, a.Cleaned)
		return out, nil
	}
	return buf.Bytes(), nil
}

// JSON emits normalized message, member and superchat events.
type JSON struct{}

func (JSON) Type() Type { return TypeJSON }

func (JSON) Transform(a youtubeapi.Action) ([]byte, error) {
	var ev any
	switch a.RendererType {
	case youtubeapi.RendererTextMessage:
		var m youtubeapi.TextMessage
		if err := a.DecodeRenderer(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = MessageEvent{
			Type:    EventMessage,
			ID:      m.ID,
			Message: youtubeapi.ParseText(&m.Message),
			Author: BadgedAuthor{
				ID:     m.AuthorExternalChannelID,
				Name:   youtubeapi.ParseText(&m.AuthorName),
				Badges: badgesOf(m.AuthorBadges),
			},
			Unix: youtubeapi.UnixSeconds(m.TimestampUsec),
		}
	case youtubeapi.RendererMembership:
		var m youtubeapi.Membership
		if err := a.DecodeRenderer(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = memberEvent(&m)
	case youtubeapi.RendererPaidMessage:
		var p youtubeapi.PaidMessage
		if err := a.DecodeRenderer(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = superchatEvent(&p)
	default:
		return nil, nil
	}
	return json.Marshal(ev)
}

// Subathon emits only monetary events: memberships, superchats and gifted
// memberships.
type Subathon struct{}

func (Subathon) Type() Type { return TypeSubathon }

func (Subathon) Transform(a youtubeapi.Action) ([]byte, error) {
	var ev any
	switch a.RendererType {
	case youtubeapi.RendererMembership:
		var m youtubeapi.Membership
		if err := a.DecodeRenderer(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = memberEvent(&m)
	case youtubeapi.RendererPaidMessage:
		var p youtubeapi.PaidMessage
		if err := a.DecodeRenderer(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = superchatEvent(&p)
	case youtubeapi.RendererGiftRedemption:
		var g youtubeapi.GiftRedemption
		if err := a.DecodeRenderer(&g); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.RendererType, err)
		}
		ev = MemberGiftEvent{
			Type:      EventMemberGift,
			ID:        g.ID,
			Recipient: Author{ID: g.AuthorExternalChannelID, Name: youtubeapi.ParseText(&g.AuthorName)},
			Gifter:    gifterName(&g),
			Unix:      youtubeapi.UnixSeconds(g.TimestampUsec),
		}
	default:
		return nil, nil
	}
	return json.Marshal(ev)
}

// IRC is reserved for an IRC line format that is not implemented.
type IRC struct{}

func (IRC) Type() Type { return TypeIRC }

func (IRC) Transform(youtubeapi.Action) ([]byte, error) {
	return nil, ErrNotImplemented
}
