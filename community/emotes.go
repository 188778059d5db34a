package community

import "fmt"

// Provider identifies where an emote is hosted.
type Provider int

const (
	ProviderTwitch Provider = iota
	ProviderFFZ
	ProviderBTTV
	ProviderCustom
	ProviderSpore
)

// EmoteDef is one entry of the emote catalog as served by the gateway.
type EmoteDef struct {
	Provider  Provider `json:"provider"`
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Ext       string   `json:"ext,omitempty"`
	BitIndex  *int     `json:"bitIndex,omitempty"`
	ChannelID string   `json:"channelId,omitempty"`
}

// Emote is a resolved catalog entry keyed by name.
type Emote struct {
	Name     string
	Image    string
	Provider Provider
	// BitIndex is the ownership bit of gated emotes; nil when ungated.
	BitIndex *int
}

// Gated reports whether display depends on the author's ownership mask.
func (e Emote) Gated() bool { return e.Provider == ProviderSpore }

// ImageURL returns the image url for def, or "" when the provider is unknown
// or a collectible lacks its file extension.
func ImageURL(def EmoteDef, apiBase string) string {
	switch def.Provider {
	case ProviderTwitch:
		return fmt.Sprintf("https://static-cdn.jtvnw.net/emoticons/v2/%s/static/dark/1.0", def.ID)
	case ProviderFFZ:
		return fmt.Sprintf("https://cdn.frankerfacez.com/emote/%s/1", def.ID)
	case ProviderBTTV:
		return fmt.Sprintf("https://cdn.betterttv.net/emote/%s/1x", def.ID)
	case ProviderSpore:
		if def.Ext == "" {
			return ""
		}
		return fmt.Sprintf("https://cdn.bio/ugc/collectible/%s.tiny.%s", def.ID, def.Ext)
	case ProviderCustom:
		return fmt.Sprintf("%s/emotes/%s", apiBase, def.ID)
	default:
		return ""
	}
}

// buildEmotes resolves defs into a name-keyed table, skipping imageless entries.
func buildEmotes(defs []EmoteDef, apiBase string) map[string]Emote {
	out := make(map[string]Emote, len(defs))
	for _, def := range defs {
		img := ImageURL(def, apiBase)
		if img == "" {
			continue
		}
		out[def.Name] = Emote{Name: def.Name, Image: img, Provider: def.Provider, BitIndex: def.BitIndex}
	}
	return out
}
