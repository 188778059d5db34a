package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
)

var (
	// ErrStreamNotFound is returned when no candidate page exists.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrVideoData is returned when a page lacks the embedded bootstrap data.
	ErrVideoData = errors.New("failed to find video data")
)

var (
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	channelIDPattern = regexp.MustCompile(`^UC.{22}$`)
	initialDataRe    = regexp.MustCompile(`(?:window\s*\[\s*["']ytInitialData["']\s*\]|ytInitialData)\s*=\s*({.+?})\s*;`)
	ytcfgRe          = regexp.MustCompile(`(?:ytcfg\.set)\(({[\s\S]+?})\)\s*;`)
)

// ValidVideoID reports whether id looks like a video id.
func ValidVideoID(id string) bool { return videoIDPattern.MatchString(id) }

// WatchURL returns the watch page url for a video id.
func (c *Client) WatchURL(videoID string) string {
	return c.baseURL() + "/watch?v=" + videoID
}

// ChannelLiveURLs returns the candidate live page urls for a channel reference,
// most likely first: ids try /channel first, custom names try /c first.
func (c *Client) ChannelLiveURLs(ref string) []string {
	parts := []string{"c", "user", "channel"}
	if channelIDPattern.MatchString(ref) {
		parts = []string{"channel", "c", "user"}
	}
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		urls = append(urls, fmt.Sprintf("%s/%s/%s/live", c.baseURL(), p, ref))
	}
	return urls
}

// FetchVideoData loads the first reachable url and extracts its bootstrap data.
func (c *Client) FetchVideoData(ctx context.Context, urls []string) (*Bootstrap, error) {
	var (
		body   []byte
		status int
	)
	for _, u := range urls {
		b, st, err := c.getPage(ctx, u)
		if err != nil {
			return nil, &FetchError{Err: err}
		}
		status = st
		if st >= 200 && st <= 299 {
			body = b
			break
		}
		slog.Debug("page fetch not ok", slog.String("url", u), slog.Int("status", st))
	}
	if body == nil {
		if status == 0 || status == http.StatusNotFound {
			return nil, ErrStreamNotFound
		}
		return nil, &FetchError{Status: status}
	}
	return ParseVideoPage(body)
}

func (c *Client) getPage(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", DesktopUserAgent)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

// ParseVideoPage extracts ytInitialData and the ytcfg api key/context from html.
func ParseVideoPage(html []byte) (*Bootstrap, error) {
	initial, err := matchJSON(html, initialDataRe)
	if err != nil {
		return nil, err
	}
	cfgRaw, err := matchJSON(html, ytcfgRe)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		APIKey  string          `json:"INNERTUBE_API_KEY"`
		Context json.RawMessage `json:"INNERTUBE_CONTEXT"`
	}
	if err := json.Unmarshal(cfgRaw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: ytcfg: %v", ErrVideoData, err)
	}
	if cfg.APIKey == "" || len(cfg.Context) == 0 {
		return nil, fmt.Errorf("%w: missing api key or context", ErrVideoData)
	}
	return &Bootstrap{APIKey: cfg.APIKey, RequestContext: cfg.Context, InitialData: initial}, nil
}

func matchJSON(html []byte, re *regexp.Regexp) (json.RawMessage, error) {
	m := re.FindSubmatch(html)
	if len(m) < 2 || len(m[1]) == 0 {
		return nil, ErrVideoData
	}
	if !json.Valid(m[1]) {
		return nil, fmt.Errorf("%w: invalid json", ErrVideoData)
	}
	return json.RawMessage(m[1]), nil
}
