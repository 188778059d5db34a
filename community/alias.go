package community

import (
	"net/url"
	"strings"

	"github.com/onnwee/chat-relay/youtubeapi"
)

// Alias is the resolved presentation of a message author.
type Alias struct {
	Name   string
	Color  string
	Badges []string
}

// ResolveAlias combines provider author data with the author's user record:
// name and color come from the record when present, badges are the provider
// badges followed by the record's catalog badges.
func (s *Snapshot) ResolveAlias(msg *youtubeapi.TextMessage, modBadgeURL string) Alias {
	user, hasUser := s.Users[msg.AuthorExternalChannelID]
	name := displayName(msg, user, hasUser)
	color := user.Color
	if color == "" {
		color = NameColor(name)
	}
	badges := providerBadges(msg.AuthorBadges, modBadgeURL)
	if hasUser {
		badges = append(badges, s.userBadges(user)...)
	}
	return Alias{Name: name, Color: color, Badges: badges}
}

func displayName(msg *youtubeapi.TextMessage, user UserRecord, ok bool) string {
	if ok && user.DisplayName != "" {
		if name, err := url.PathUnescape(user.DisplayName); err == nil {
			return name
		}
		return user.DisplayName
	}
	return youtubeapi.ParseText(&msg.AuthorName)
}

func providerBadges(in []youtubeapi.AuthorBadge, modBadgeURL string) []string {
	if modBadgeURL == "" {
		modBadgeURL = DefaultModBadgeURL
	}
	out := []string{}
	for _, b := range in {
		switch {
		case b.Renderer.Icon != nil && strings.EqualFold(b.Renderer.Icon.IconType, "moderator"):
			out = append(out, modBadgeURL)
		case b.Renderer.CustomThumbnail.FirstURL() != "":
			out = append(out, b.Renderer.CustomThumbnail.FirstURL())
		}
	}
	return out
}

// userBadges maps each distinct slug of the record to its image, skipping
// slugs missing from the badge catalog.
func (s *Snapshot) userBadges(user UserRecord) []string {
	var out []string
	seen := make(map[string]struct{}, len(user.BadgeSlugs))
	for _, slug := range user.BadgeSlugs {
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		if img, ok := s.Badges[slug]; ok && img != "" {
			out = append(out, img)
		}
	}
	return out
}
