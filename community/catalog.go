// Package community enriches chat messages with catalogs served by the
// community gateway: emote definitions, per-channel user records and badge
// images. Catalogs are refreshed in the background and read through immutable
// snapshots, so message rendering never waits on the network.
package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-relay/telemetry"
)

// DefaultModBadgeURL is rendered for provider moderator badges.
const DefaultModBadgeURL = "https://overlay.truffle.vip/mod.png"

// ErrDisabled is returned when no gateway base url is configured.
var ErrDisabled = errors.New("community catalogs disabled")

// Client fetches catalogs from the community gateway.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	if c == nil || c.BaseURL == "" {
		return ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// Emotes lists every emote definition.
func (c *Client) Emotes(ctx context.Context) ([]EmoteDef, error) {
	var out []EmoteDef
	if err := c.getJSON(ctx, "/gateway/emotes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists the user records known for a provider channel.
func (c *Client) Users(ctx context.Context, channelID string) (UserList, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id empty")
	}
	var out UserList
	if err := c.getJSON(ctx, "/gateway/users/c/"+url.PathEscape(channelID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Badges lists the badge catalog.
func (c *Client) Badges(ctx context.Context) ([]Badge, error) {
	var out []Badge
	if err := c.getJSON(ctx, "/gateway/badges", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot is one immutable view of all catalogs. Maps are never mutated
// after the snapshot is published.
type Snapshot struct {
	Emotes map[string]Emote
	Users  map[string]UserRecord
	// Badges maps a badge slug to its image url.
	Badges map[string]string
}

var emptySnapshot = &Snapshot{
	Emotes: map[string]Emote{},
	Users:  map[string]UserRecord{},
	Badges: map[string]string{},
}

// Store holds the latest catalog snapshot for one channel and refreshes it at
// most once per interval.
type Store struct {
	client   *Client
	interval time.Duration
	now      func() time.Time

	channelID atomic.Pointer[string]
	// stale forces the next MaybeRefresh after a channel change.
	stale atomic.Bool

	// base bounds background refreshes; cancelled by Close.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	snap       atomic.Pointer[Snapshot]
	lastFetch  atomic.Int64
	refreshing atomic.Bool
}

// NewStore returns a Store with an empty snapshot. No fetch is issued until
// Refresh or MaybeRefresh is called.
func NewStore(client *Client, channelID string, interval time.Duration) *Store {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{client: client, interval: interval, now: time.Now, base: ctx, cancel: cancel}
	s.channelID.Store(&channelID)
	s.snap.Store(emptySnapshot)
	return s
}

// ChannelID returns the channel scoping the user catalog.
func (s *Store) ChannelID() string { return *s.channelID.Load() }

// SetChannelID rescopes the user catalog and schedules a refresh when the
// channel changed. It reports whether it did.
func (s *Store) SetChannelID(id string) bool {
	if old := s.channelID.Swap(&id); *old == id {
		return false
	}
	s.stale.Store(true)
	s.RefreshAsync()
	return true
}

// Snapshot returns the most recently completed snapshot.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load() }

// Refresh fetches all catalogs concurrently. A catalog whose fetch fails keeps
// its previous contents; the first error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	s.lastFetch.Store(s.now().UnixNano())
	s.stale.Store(false)
	channelID := s.ChannelID()
	if s.client == nil || s.client.BaseURL == "" {
		return ErrDisabled
	}
	var (
		emotes map[string]Emote
		users  map[string]UserRecord
		badges map[string]string
	)
	var g errgroup.Group
	g.Go(func() error {
		defs, err := s.client.Emotes(ctx)
		telemetry.IncCatalogRefresh("emotes", err == nil)
		if err != nil {
			return fmt.Errorf("emotes: %w", err)
		}
		emotes = buildEmotes(defs, s.client.BaseURL)
		return nil
	})
	if channelID != "" {
		g.Go(func() error {
			list, err := s.client.Users(ctx, channelID)
			telemetry.IncCatalogRefresh("users", err == nil)
			if err != nil {
				return fmt.Errorf("users: %w", err)
			}
			users = make(map[string]UserRecord, len(list))
			for _, u := range list {
				users[u.ID] = u
			}
			return nil
		})
	}
	g.Go(func() error {
		list, err := s.client.Badges(ctx)
		telemetry.IncCatalogRefresh("badges", err == nil)
		if err != nil {
			return fmt.Errorf("badges: %w", err)
		}
		badges = make(map[string]string, len(list))
		for _, b := range list {
			if b.Slug == nil {
				continue
			}
			badges[*b.Slug] = b.URL
		}
		return nil
	})
	err := g.Wait()

	prev := s.snap.Load()
	next := *prev
	if emotes != nil {
		next.Emotes = emotes
	}
	if users != nil {
		next.Users = users
	}
	if badges != nil {
		next.Badges = badges
	}
	s.snap.Store(&next)
	return err
}

// MaybeRefresh starts a background refresh when the last one is older than
// the interval. It never blocks.
func (s *Store) MaybeRefresh() {
	last := s.lastFetch.Load()
	if !s.stale.Load() && last != 0 && s.now().UnixNano()-last < int64(s.interval) {
		return
	}
	s.RefreshAsync()
}

// RefreshAsync starts a background refresh unless one is already running.
func (s *Store) RefreshAsync() {
	if s.base.Err() != nil || !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	s.lastFetch.Store(s.now().UnixNano())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(s.base, 30*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrDisabled) {
			slog.Warn("community catalog refresh failed", slog.String("channel", s.ChannelID()), slog.Any("err", err))
		}
	}()
}

// Close cancels any running refresh and waits for it to finish.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}
