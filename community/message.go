package community

import (
	"encoding/json"
	"unicode"
	"unicode/utf8"

	"github.com/onnwee/chat-relay/youtubeapi"
)

// The provider renders Kappa as this glyph; it resolves to the catalog entry
// of the same name.
const (
	kappaGlyph = "🌝"
	kappaName  = "Kappa"
)

// Segment is one piece of a rendered message body: plain text, or an emote
// image reference when IsEmote is set.
type Segment struct {
	Text    string
	Emote   string
	IsEmote bool
}

// TextSegment returns a plain text segment.
func TextSegment(s string) Segment { return Segment{Text: s} }

// EmoteSegment returns an image reference segment.
func EmoteSegment(url string) Segment { return Segment{Emote: url, IsEmote: true} }

// MarshalJSON encodes text as a bare string and emotes as {"emoji": url}.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.IsEmote {
		return json.Marshal(struct {
			Emoji string `json:"emoji"`
		}{s.Emote})
	}
	return json.Marshal(s.Text)
}

// UnmarshalJSON accepts either encoding produced by MarshalJSON.
func (s *Segment) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*s = TextSegment(text)
		return nil
	}
	var e struct {
		Emoji string `json:"emoji"`
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	*s = EmoteSegment(e.Emoji)
	return nil
}

// EmoteImage looks up an emote by name for the given author. Gated emotes are
// hidden only when the author has an ownership mask that lacks the emote's
// bit; authors without a mask see every emote.
func (s *Snapshot) EmoteImage(name, authorID string, dec *Decoder) (string, bool) {
	e, ok := s.Emotes[name]
	if !ok || e.Image == "" {
		return "", false
	}
	if !e.Gated() || e.BitIndex == nil {
		return e.Image, true
	}
	user, ok := s.Users[authorID]
	if !ok || user.EmoteMask == "" {
		return e.Image, true
	}
	var owned []int
	if dec != nil {
		owned = dec.Decode(user.EmoteMask)
	} else {
		owned = DecodeOwnership(user.EmoteMask)
	}
	if !hasIndex(owned, *e.BitIndex) {
		return "", false
	}
	return e.Image, true
}

// Segments renders the message body, replacing catalog emote names found in
// text runs with emote references.
func (s *Snapshot) Segments(msg *youtubeapi.TextMessage, dec *Decoder) []Segment {
	author := msg.AuthorExternalChannelID
	lookup := func(word string) (string, bool) {
		if word == kappaGlyph {
			word = kappaName
		}
		return s.EmoteImage(word, author, dec)
	}

	out := []Segment{}
	for _, run := range msg.Message.Runs {
		switch {
		case run.IsText():
			out = append(out, substituteEmotes(*run.Text, lookup)...)
		case run.Emoji != nil && run.Emoji.EmojiID == kappaGlyph:
			if img, ok := lookup(kappaName); ok {
				out = append(out, EmoteSegment(img))
			}
		case run.Emoji != nil:
			if img := run.Emoji.Image.FirstURL(); img != "" {
				out = append(out, EmoteSegment(img))
			} else {
				out = append(out, TextSegment(run.Emoji.EmojiID))
			}
		}
	}
	return out
}

// substituteEmotes splits text into words and replaces each word that names an
// emote. Text between emotes is kept verbatim, and a text run without any
// emote is returned as a single segment.
func substituteEmotes(text string, lookup func(string) (string, bool)) []Segment {
	var out []Segment
	start, pos := 0, 0
	found := false
	for _, word := range splitWords(text) {
		if img, ok := lookup(word); ok {
			found = true
			if pos > 0 {
				out = append(out, TextSegment(text[start:pos]))
			}
			out = append(out, EmoteSegment(img))
			start = pos + len(word)
		}
		pos += len(word)
	}
	if !found {
		return []Segment{TextSegment(text)}
	}
	return append(out, TextSegment(text[start:pos]))
}

func isBoundary(r rune) bool {
	switch r {
	case '.', ',', '?', '!', '\ufeff':
		return true
	}
	return unicode.IsSpace(r)
}

// splitWords cuts s wherever the character class changes between boundary
// characters (whitespace and . , ? !) and everything else.
func splitWords(s string) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	start := 0
	first, size := utf8.DecodeRuneInString(s)
	prev := isBoundary(first)
	for i := size; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		cur := isBoundary(r)
		if cur != prev {
			out = append(out, s[start:i])
			start = i
		}
		prev = cur
		i += n
	}
	return append(out, s[start:])
}
