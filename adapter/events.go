package adapter

import (
	"github.com/onnwee/chat-relay/community"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// Event type tags.
const (
	EventMessage    = "message"
	EventMember     = "member"
	EventSuperchat  = "superchat"
	EventMemberGift = "membergift"
)

// Badge is an author badge in the json format.
type Badge struct {
	Tooltip string `json:"tooltip"`
	// Type is "icon" for provider icons and "custom" for image badges.
	Type  string `json:"type"`
	Badge string `json:"badge"`
}

// Author identifies a chat author.
type Author struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// BadgedAuthor is an Author with badges.
type BadgedAuthor struct {
	Name   string  `json:"name"`
	ID     string  `json:"id"`
	Badges []Badge `json:"badges"`
}

// Amount is a paid amount as displayed by the provider.
type Amount struct {
	Text string `json:"text"`
}

// MessageEvent is a chat message.
type MessageEvent struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Message string       `json:"message"`
	Author  BadgedAuthor `json:"author"`
	Unix    int64        `json:"unix"`
}

// MemberEvent is a new channel membership.
type MemberEvent struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Author Author `json:"author"`
	Unix   int64  `json:"unix"`
}

// SuperchatEvent is a paid message.
type SuperchatEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Amount  Amount `json:"amount"`
	Author  Author `json:"author"`
	Unix    int64  `json:"unix"`
}

// MemberGiftEvent is a gifted membership received by Recipient.
type MemberGiftEvent struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Recipient Author `json:"recipient"`
	Gifter    string `json:"gifter"`
	Unix      int64  `json:"unix"`
}

// EnrichedAuthor is an author with community overrides applied.
type EnrichedAuthor struct {
	Name   string   `json:"name"`
	Color  string   `json:"color"`
	ID     string   `json:"id"`
	Badges []string `json:"badges"`
}

// EnrichedMessageEvent is a chat message with emotes and aliases resolved.
type EnrichedMessageEvent struct {
	Type    string              `json:"type"`
	ID      string              `json:"id"`
	Message []community.Segment `json:"message"`
	Author  EnrichedAuthor      `json:"author"`
	Unix    int64               `json:"unix"`
}

// UnknownGifter is reported when the gifter cannot be read from a redemption.
const UnknownGifter = "Unknown"

func badgesOf(in []youtubeapi.AuthorBadge) []Badge {
	out := make([]Badge, 0, len(in))
	for _, b := range in {
		r := b.Renderer
		if r.Icon != nil {
			out = append(out, Badge{Tooltip: r.Tooltip, Type: "icon", Badge: r.Icon.IconType})
			continue
		}
		out = append(out, Badge{Tooltip: r.Tooltip, Type: "custom", Badge: r.CustomThumbnail.FirstURL()})
	}
	return out
}

func memberEvent(m *youtubeapi.Membership) MemberEvent {
	return MemberEvent{
		Type:   EventMember,
		ID:     m.ID,
		Author: Author{ID: m.AuthorExternalChannelID, Name: youtubeapi.ParseText(&m.AuthorName)},
		Unix:   youtubeapi.UnixSeconds(m.TimestampUsec),
	}
}

func superchatEvent(p *youtubeapi.PaidMessage) SuperchatEvent {
	return SuperchatEvent{
		Type:    EventSuperchat,
		ID:      p.ID,
		Message: youtubeapi.ParseText(&p.Message),
		Amount:  Amount{Text: youtubeapi.ParseText(&p.PurchaseAmountText)},
		Author:  Author{ID: p.AuthorExternalChannelID, Name: youtubeapi.ParseText(&p.AuthorName)},
		Unix:    youtubeapi.UnixSeconds(p.TimestampUsec),
	}
}

// gifterName reads the gifter from a redemption message of exactly two runs
// whose second run is text.
func gifterName(g *youtubeapi.GiftRedemption) string {
	runs := g.Message.Runs
	if len(runs) == 2 && runs[1].IsText() {
		return *runs[1].Text
	}
	return UnknownGifter
}
