package youtubeapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errNotObject = errors.New("not a JSON object")

// Renderer type tags understood by at least one adapter.
const (
	RendererTextMessage    = "liveChatTextMessageRenderer"
	RendererMembership     = "liveChatMembershipItemRenderer"
	RendererPaidMessage    = "liveChatPaidMessageRenderer"
	RendererGiftRedemption = "liveChatSponsorshipsGiftRedemptionAnnouncementRenderer"
)

// trackingField is stripped from the cleaned view of an action.
const trackingField = "clickTrackingParams"

// Action is an immutable view over one provider chat action. Raw holds the
// bytes exactly as delivered. Cleaned is the compacted action without the
// tracking field; the remaining fields are derived from it once so that every
// adapter sees the same cleaned view without touching Raw.
type Action struct {
	Raw          json.RawMessage
	Cleaned      json.RawMessage
	Type         string
	RendererType string
	Renderer     json.RawMessage
}

// ParseAction derives the cleaned view of raw. It never fails: an action whose
// shape is not {actionType: {item: {rendererType: {...}}}} keeps empty tags,
// and raw that is not a JSON object is its own cleaned view.
func ParseAction(raw json.RawMessage) Action {
	a := Action{Raw: raw, Cleaned: raw}
	members, err := rawMembers(raw)
	if err != nil {
		return a
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, m := range members {
		if m.key == trackingField {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		k, _ := json.Marshal(m.key)
		buf.Write(k)
		buf.WriteByte(':')
		if err := json.Compact(&buf, m.value); err != nil {
			return a
		}

		if a.Type != "" {
			continue
		}
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(m.value, &wrapper); err != nil {
			continue
		}
		item, err := rawMembers(wrapper.Item)
		if err != nil || len(item) == 0 {
			continue
		}
		a.Type = m.key
		a.RendererType = item[0].key
		a.Renderer = item[0].value
	}
	buf.WriteByte('}')
	a.Cleaned = buf.Bytes()
	return a
}

type rawMember struct {
	key   string
	value json.RawMessage
}

// rawMembers splits a JSON object into its members in document order.
func rawMembers(raw json.RawMessage) ([]rawMember, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	var out []rawMember
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := kt.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, rawMember{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// ID returns the provider-assigned message id read from the renderer payload.
func (a Action) ID() (string, bool) {
	if len(a.Renderer) == 0 {
		return "", false
	}
	var r struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(a.Renderer, &r); err != nil || r.ID == "" {
		return "", false
	}
	return r.ID, true
}

// DecodeRenderer unmarshals the renderer payload into v.
func (a Action) DecodeRenderer(v any) error {
	return json.Unmarshal(a.Renderer, v)
}

// Continuation is a single-key object {<tag>: {continuation: "..."}}.
type Continuation map[string]struct {
	Continuation        string `json:"continuation"`
	ClickTrackingParams string `json:"clickTrackingParams,omitempty"`
}

// Token returns the continuation token under the object's only key.
func (c Continuation) Token() string {
	for _, v := range c {
		if v.Continuation != "" {
			return v.Continuation
		}
	}
	return ""
}

// LiveChatResponse is the subset of the get_live_chat response the relay reads.
type LiveChatResponse struct {
	ContinuationContents *struct {
		LiveChatContinuation struct {
			Continuations []Continuation    `json:"continuations,omitempty"`
			Actions       []json.RawMessage `json:"actions,omitempty"`
		} `json:"liveChatContinuation"`
	} `json:"continuationContents,omitempty"`
}

// NextToken returns the first continuation token, or "" when absent.
func (r *LiveChatResponse) NextToken() string {
	if r == nil || r.ContinuationContents == nil {
		return ""
	}
	conts := r.ContinuationContents.LiveChatContinuation.Continuations
	if len(conts) == 0 {
		return ""
	}
	return conts[0].Token()
}

// Actions returns the raw actions in arrival order.
func (r *LiveChatResponse) Actions() []json.RawMessage {
	if r == nil || r.ContinuationContents == nil {
		return nil
	}
	return r.ContinuationContents.LiveChatContinuation.Actions
}

// Thumbnail is one image rendition.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Image is a provider image with optional accessibility label.
type Image struct {
	Thumbnails    []Thumbnail `json:"thumbnails"`
	Accessibility *struct {
		AccessibilityData struct {
			Label string `json:"label"`
		} `json:"accessibilityData"`
	} `json:"accessibility,omitempty"`
}

// FirstURL returns the first thumbnail url, if any.
func (i *Image) FirstURL() string {
	if i == nil || len(i.Thumbnails) == 0 {
		return ""
	}
	return i.Thumbnails[0].URL
}

// Emoji is the payload of an emoji run.
type Emoji struct {
	EmojiID       string   `json:"emojiId"`
	Shortcuts     []string `json:"shortcuts,omitempty"`
	SearchTerms   []string `json:"searchTerms,omitempty"`
	Image         Image    `json:"image"`
	IsCustomEmoji bool     `json:"isCustomEmoji,omitempty"`
}

// Run is either a text run (Text set) or an emoji run (Emoji set).
type Run struct {
	Text    *string `json:"text,omitempty"`
	Bold    bool    `json:"bold,omitempty"`
	Italics bool    `json:"italics,omitempty"`
	Emoji   *Emoji  `json:"emoji,omitempty"`
}

// IsText reports whether the run carries text.
func (r Run) IsText() bool { return r.Text != nil }

// Text is the provider's rich string: simpleText or a run list.
type Text struct {
	SimpleText string `json:"simpleText,omitempty"`
	Runs       []Run  `json:"runs,omitempty"`
}

// ParseText flattens t into plain text.
func ParseText(t *Text) string {
	if t == nil {
		return ""
	}
	if t.SimpleText != "" {
		return t.SimpleText
	}
	if len(t.Runs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, run := range t.Runs {
		switch {
		case run.IsText():
			b.WriteString(*run.Text)
		case run.Emoji != nil && run.Emoji.IsCustomEmoji:
			b.WriteString(" " + customEmojiLabel(run.Emoji) + " ")
		case run.Emoji != nil:
			b.WriteString(run.Emoji.EmojiID)
		}
	}
	return strings.TrimSpace(b.String())
}

func customEmojiLabel(e *Emoji) string {
	if e.Image.Accessibility != nil && e.Image.Accessibility.AccessibilityData.Label != "" {
		return e.Image.Accessibility.AccessibilityData.Label
	}
	if len(e.SearchTerms) > 1 {
		return e.SearchTerms[1]
	}
	if len(e.SearchTerms) > 0 {
		return e.SearchTerms[0]
	}
	return ""
}

// AuthorBadge wraps liveChatAuthorBadgeRenderer.
type AuthorBadge struct {
	Renderer struct {
		CustomThumbnail *Image `json:"customThumbnail,omitempty"`
		Icon            *struct {
			IconType string `json:"iconType"`
		} `json:"icon,omitempty"`
		Tooltip string `json:"tooltip"`
	} `json:"liveChatAuthorBadgeRenderer"`
}

// TextMessage is liveChatTextMessageRenderer.
type TextMessage struct {
	ID                      string        `json:"id"`
	Message                 Text          `json:"message"`
	AuthorName              Text          `json:"authorName"`
	AuthorPhoto             Image         `json:"authorPhoto"`
	TimestampUsec           string        `json:"timestampUsec"`
	AuthorExternalChannelID string        `json:"authorExternalChannelId"`
	AuthorBadges            []AuthorBadge `json:"authorBadges,omitempty"`
}

// Membership is liveChatMembershipItemRenderer.
type Membership struct {
	ID                      string        `json:"id"`
	TimestampUsec           string        `json:"timestampUsec"`
	AuthorExternalChannelID string        `json:"authorExternalChannelId"`
	HeaderSubtext           Text          `json:"headerSubtext"`
	AuthorName              Text          `json:"authorName"`
	AuthorBadges            []AuthorBadge `json:"authorBadges,omitempty"`
}

// PaidMessage is liveChatPaidMessageRenderer.
type PaidMessage struct {
	ID                      string `json:"id"`
	TimestampUsec           string `json:"timestampUsec"`
	AuthorName              Text   `json:"authorName"`
	PurchaseAmountText      Text   `json:"purchaseAmountText"`
	Message                 Text   `json:"message"`
	AuthorExternalChannelID string `json:"authorExternalChannelId"`
}

// GiftRedemption is liveChatSponsorshipsGiftRedemptionAnnouncementRenderer.
type GiftRedemption struct {
	ID                      string `json:"id"`
	TimestampUsec           string `json:"timestampUsec"`
	AuthorExternalChannelID string `json:"authorExternalChannelId"`
	AuthorName              Text   `json:"authorName"`
	Message                 Text   `json:"message"`
}
