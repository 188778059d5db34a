package community

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chat-relay/testutil"
	"github.com/onnwee/chat-relay/youtubeapi"
)

func TestDecodeOwnershipSingleChar(t *testing.T) {
	// 'K' = 75, 75-35 = 40 = 0b101000
	assert.Equal(t, []int{3, 5}, DecodeOwnership("K"))
}

func TestDecodeOwnershipMultiChar(t *testing.T) {
	// last character maps to indices 0..5, first character to 6..11
	// '$' = 36 -> 1 (bit 0), '#' = 35 -> 0 (skipped)
	assert.Equal(t, []int{0}, DecodeOwnership("#$"))
	assert.Equal(t, []int{6}, DecodeOwnership("$#"))
	assert.Equal(t, []int{0, 6}, DecodeOwnership("$$"))
	assert.Empty(t, DecodeOwnership(""))
}

func TestDecoderMemoizes(t *testing.T) {
	d := NewDecoder()
	assert.False(t, d.Cached("K"))
	first := d.Decode("K")
	assert.True(t, d.Cached("K"))
	second := d.Decode("K")
	assert.Equal(t, first, second)
	assert.Equal(t, []int{3, 5}, second)
	assert.Equal(t, 1, d.Len())
}

func TestNameColorDeterministic(t *testing.T) {
	names := []string{"alice", "Bob", "日本語の名前", "🌝🌝", ""}
	for _, n := range names {
		c := NameColor(n)
		assert.Equal(t, c, NameColor(n), "color for %q must be stable", n)
		assert.Contains(t, namePalette[:], c)
	}
	// hash("a") = 97, 97 % 14 = 13
	assert.Equal(t, "#a244f9", NameColor("a"))
	assert.Equal(t, "#ff0000", NameColor(""))
}

func TestStringHashWraps(t *testing.T) {
	// long input overflows int32 several times; result must still be usable
	long := "the quick brown fox jumps over the lazy dog, repeatedly and at length"
	h := StringHash(long)
	assert.Equal(t, h, StringHash(long))
	idx := ((h % 14) + 14) % 14
	assert.GreaterOrEqual(t, idx, int32(0))
	assert.Less(t, idx, int32(14))
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"hello", []string{"hello"}},
		{"hi Kappa", []string{"hi", " ", "Kappa"}},
		{"Kappa, nice!!", []string{"Kappa", ", ", "nice", "!!"}},
		{"  lead", []string{"  ", "lead"}},
		{"", []string{""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitWords(tt.in), "splitWords(%q)", tt.in)
	}
}

func TestImageURL(t *testing.T) {
	base := "https://api.example"
	assert.Equal(t, "https://static-cdn.jtvnw.net/emoticons/v2/25/static/dark/1.0", ImageURL(EmoteDef{Provider: ProviderTwitch, ID: "25"}, base))
	assert.Equal(t, "https://cdn.frankerfacez.com/emote/7/1", ImageURL(EmoteDef{Provider: ProviderFFZ, ID: "7"}, base))
	assert.Equal(t, "https://cdn.betterttv.net/emote/ab/1x", ImageURL(EmoteDef{Provider: ProviderBTTV, ID: "ab"}, base))
	assert.Equal(t, "https://api.example/emotes/c1", ImageURL(EmoteDef{Provider: ProviderCustom, ID: "c1"}, base))
	assert.Equal(t, "https://cdn.bio/ugc/collectible/s1.tiny.png", ImageURL(EmoteDef{Provider: ProviderSpore, ID: "s1", Ext: "png"}, base))
	assert.Empty(t, ImageURL(EmoteDef{Provider: ProviderSpore, ID: "s1"}, base))
	assert.Empty(t, ImageURL(EmoteDef{Provider: Provider(42), ID: "x"}, base))
}

func TestUserListDecode(t *testing.T) {
	var list UserList
	err := json.Unmarshal([]byte(`[["UC1",{"a":"Al%20ice","c":"#123456","d":"K","e":["gold"]}],["UC2",null]]`), &list)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "UC1", list[0].ID)
	assert.Equal(t, "Al%20ice", list[0].DisplayName)
	assert.Equal(t, "K", list[0].EmoteMask)
	assert.Equal(t, []string{"gold"}, list[0].BadgeSlugs)
	assert.Equal(t, "UC2", list[1].ID)
}

func intp(v int) *int { return &v }

func testSnapshot() *Snapshot {
	return &Snapshot{
		Emotes: map[string]Emote{
			"Kappa": {Name: "Kappa", Image: "https://img/kappa", Provider: ProviderTwitch},
			"spore": {Name: "spore", Image: "https://img/spore", Provider: ProviderSpore, BitIndex: intp(4)},
			"owned": {Name: "owned", Image: "https://img/owned", Provider: ProviderSpore, BitIndex: intp(3)},
		},
		Users: map[string]UserRecord{
			"UCmask":  {ID: "UCmask", EmoteMask: "K", DisplayName: "Mask%20User", Color: "#abcdef", BadgeSlugs: []string{"gold", "gold", "missing"}},
			"UCplain": {ID: "UCplain"},
		},
		Badges: map[string]string{"gold": "https://img/gold"},
	}
}

func textMessage(author string, runs ...youtubeapi.Run) *youtubeapi.TextMessage {
	return &youtubeapi.TextMessage{
		ID:                      "m1",
		AuthorExternalChannelID: author,
		AuthorName:              youtubeapi.Text{SimpleText: "provider-name"},
		Message:                 youtubeapi.Text{Runs: runs},
	}
}

func textRun(s string) youtubeapi.Run { return youtubeapi.Run{Text: &s} }

func TestEmoteGating(t *testing.T) {
	snap := testSnapshot()
	dec := NewDecoder()

	// mask "K" owns indices 3 and 5
	_, ok := snap.EmoteImage("spore", "UCmask", dec)
	assert.False(t, ok, "gated emote not in mask must be hidden")
	img, ok := snap.EmoteImage("owned", "UCmask", dec)
	assert.True(t, ok)
	assert.Equal(t, "https://img/owned", img)

	// no mask: optimistic default
	_, ok = snap.EmoteImage("spore", "UCplain", dec)
	assert.True(t, ok)
	_, ok = snap.EmoteImage("spore", "UCunknown", nil)
	assert.True(t, ok)

	_, ok = snap.EmoteImage("nope", "UCmask", dec)
	assert.False(t, ok)
}

func TestSegmentsSubstitutesEmotes(t *testing.T) {
	snap := testSnapshot()
	msg := textMessage("UCplain", textRun("hi Kappa, ok"))
	segs := snap.Segments(msg, NewDecoder())

	b, err := json.Marshal(segs)
	require.NoError(t, err)
	assert.JSONEq(t, `["hi ",{"emoji":"https://img/kappa"},", ok"]`, string(b))
}

func TestSegmentsWithoutEmoteKeepsRun(t *testing.T) {
	snap := testSnapshot()
	segs := snap.Segments(textMessage("UCplain", textRun("just words")), nil)
	assert.Equal(t, []Segment{TextSegment("just words")}, segs)
}

func TestSegmentsKappaGlyph(t *testing.T) {
	snap := testSnapshot()
	glyph := youtubeapi.Run{Emoji: &youtubeapi.Emoji{EmojiID: kappaGlyph}}
	custom := youtubeapi.Run{Emoji: &youtubeapi.Emoji{EmojiID: "UCx/abc", Image: youtubeapi.Image{Thumbnails: []youtubeapi.Thumbnail{{URL: "https://yt/emoji"}}}}}
	plain := youtubeapi.Run{Emoji: &youtubeapi.Emoji{EmojiID: "😀"}}

	segs := snap.Segments(textMessage("UCplain", glyph, custom, plain, textRun(kappaGlyph)), nil)
	assert.Equal(t, []Segment{
		EmoteSegment("https://img/kappa"),
		EmoteSegment("https://yt/emoji"),
		TextSegment("😀"),
		EmoteSegment("https://img/kappa"),
		TextSegment(""),
	}, segs)

	// without a Kappa catalog entry the glyph run is dropped
	empty := &Snapshot{}
	assert.Empty(t, empty.Segments(textMessage("UCplain", glyph), nil))
}

func TestSegmentsHidesUnownedGatedEmote(t *testing.T) {
	snap := testSnapshot()
	segs := snap.Segments(textMessage("UCmask", textRun("spore owned")), nil)
	assert.Equal(t, []Segment{TextSegment("spore "), EmoteSegment("https://img/owned"), TextSegment("")}, segs)
}

func TestResolveAlias(t *testing.T) {
	snap := testSnapshot()

	msg := textMessage("UCmask")
	mod := youtubeapi.AuthorBadge{}
	mod.Renderer.Icon = &struct {
		IconType string `json:"iconType"`
	}{IconType: "moderator"}
	member := youtubeapi.AuthorBadge{}
	member.Renderer.CustomThumbnail = &youtubeapi.Image{Thumbnails: []youtubeapi.Thumbnail{{URL: "https://yt/member"}}}
	msg.AuthorBadges = []youtubeapi.AuthorBadge{mod, member}

	a := snap.ResolveAlias(msg, "")
	assert.Equal(t, "Mask User", a.Name)
	assert.Equal(t, "#abcdef", a.Color)
	assert.Equal(t, []string{DefaultModBadgeURL, "https://yt/member", "https://img/gold"}, a.Badges)

	plain := snap.ResolveAlias(textMessage("UCnobody"), "https://mod")
	assert.Equal(t, "provider-name", plain.Name)
	assert.Equal(t, NameColor("provider-name"), plain.Color)
	assert.Empty(t, plain.Badges)
}

func TestResolveAliasModeratorIconCase(t *testing.T) {
	snap := testSnapshot()
	for _, iconType := range []string{"MODERATOR", "moderator", "Moderator"} {
		t.Run(iconType, func(t *testing.T) {
			msg := textMessage("UCnobody")
			mod := youtubeapi.AuthorBadge{}
			mod.Renderer.Icon = &struct {
				IconType string `json:"iconType"`
			}{IconType: iconType}
			msg.AuthorBadges = []youtubeapi.AuthorBadge{mod}

			a := snap.ResolveAlias(msg, "https://mod")
			assert.Equal(t, []string{"https://mod"}, a.Badges)
		})
	}

	owner := youtubeapi.AuthorBadge{}
	owner.Renderer.Icon = &struct {
		IconType string `json:"iconType"`
	}{IconType: "OWNER"}
	msg := textMessage("UCnobody")
	msg.AuthorBadges = []youtubeapi.AuthorBadge{owner}
	assert.Empty(t, snap.ResolveAlias(msg, "https://mod").Badges)
}

func newCatalogServer(t *testing.T) *testutil.MockServer {
	t.Helper()
	srv := testutil.NewMockServer(t)
	srv.MockCommunityEmotes([]map[string]any{
		{"provider": 0, "id": "25", "name": "Kappa"},
		{"provider": 4, "id": "s1", "name": "spore", "ext": "png", "bitIndex": 4},
		{"provider": 4, "id": "s2", "name": "noext", "bitIndex": 5},
	})
	srv.MockCommunityUsers("UCchan", map[string]map[string]any{
		"UCuser": {"a": "Neo", "d": "K", "e": []string{"gold"}},
	})
	srv.MockCommunityBadges([]map[string]any{
		{"url": "https://img/gold", "slug": "gold"},
		{"url": "https://img/months", "months": 3},
	})
	return srv
}

func TestStoreRefresh(t *testing.T) {
	srv := newCatalogServer(t)
	store := NewStore(&Client{BaseURL: srv.URL}, "UCchan", time.Minute)
	defer store.Close()

	assert.Empty(t, store.Snapshot().Emotes)
	require.NoError(t, store.Refresh(context.Background()))

	snap := store.Snapshot()
	assert.Len(t, snap.Emotes, 2, "imageless emotes are skipped")
	assert.Equal(t, "https://static-cdn.jtvnw.net/emoticons/v2/25/static/dark/1.0", snap.Emotes["Kappa"].Image)
	require.NotNil(t, snap.Emotes["spore"].BitIndex)
	assert.Equal(t, 4, *snap.Emotes["spore"].BitIndex)
	assert.Equal(t, "Neo", snap.Users["UCuser"].DisplayName)
	assert.Equal(t, map[string]string{"gold": "https://img/gold"}, snap.Badges)
}

func TestStoreRefreshKeepsPreviousOnFailure(t *testing.T) {
	srv := newCatalogServer(t)
	store := NewStore(&Client{BaseURL: srv.URL}, "UCchan", time.Minute)
	defer store.Close()
	require.NoError(t, store.Refresh(context.Background()))

	srv.Status("/gateway/emotes", http.StatusInternalServerError)
	srv.MockCommunityBadges([]map[string]any{{"url": "https://img/new", "slug": "new"}})
	err := store.Refresh(context.Background())
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Len(t, snap.Emotes, 2, "failed catalog keeps its previous contents")
	assert.Equal(t, map[string]string{"new": "https://img/new"}, snap.Badges)
}

func TestStoreSetChannelID(t *testing.T) {
	srv := newCatalogServer(t)
	store := NewStore(&Client{BaseURL: srv.URL}, "", time.Hour)
	defer store.Close()

	require.NoError(t, store.Refresh(context.Background()))
	assert.Empty(t, store.Snapshot().Users)
	assert.Len(t, store.Snapshot().Emotes, 2)

	assert.True(t, store.SetChannelID("UCchan"))
	assert.False(t, store.SetChannelID("UCchan"), "same channel is a no-op")
	require.Eventually(t, func() bool {
		store.MaybeRefresh()
		return len(store.Snapshot().Users) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "UCchan", store.ChannelID())
}

func TestStoreDisabled(t *testing.T) {
	store := NewStore(nil, "UCchan", time.Minute)
	defer store.Close()
	assert.ErrorIs(t, store.Refresh(context.Background()), ErrDisabled)
	store.MaybeRefresh()
	assert.NotNil(t, store.Snapshot())
}

func TestStoreMaybeRefreshRespectsInterval(t *testing.T) {
	srv := newCatalogServer(t)
	store := NewStore(&Client{BaseURL: srv.URL}, "UCchan", time.Minute)
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	store.MaybeRefresh()
	require.Eventually(t, func() bool { return len(store.Snapshot().Emotes) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !store.refreshing.Load() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Hits("/gateway/emotes"))

	// within the interval: no new fetch
	now = now.Add(30 * time.Second)
	store.MaybeRefresh()
	assert.False(t, store.refreshing.Load())
	assert.Equal(t, 1, srv.Hits("/gateway/emotes"))

	now = now.Add(31 * time.Second)
	store.MaybeRefresh()
	require.Eventually(t, func() bool { return srv.Hits("/gateway/emotes") == 2 }, 2*time.Second, 10*time.Millisecond)
}
