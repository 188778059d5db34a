// Package youtubeapi talks to the video provider's internal web API: it scrapes
// watch pages for session bootstrap data, polls the live chat endpoint with a
// continuation token, and models the nested chat action payloads. An optional
// Data API client resolves a channel's live broadcast when scraping cannot.
package youtubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chat-relay/telemetry"
)

// DefaultBaseURL is the provider origin used when Client.BaseURL is empty.
const DefaultBaseURL = "https://www.youtube.com"

const liveChatPath = "/youtubei/v1/live_chat/get_live_chat"

// DesktopUserAgent is sent on page scrapes so the provider serves the desktop layout.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.45 Safari/537.36"

var (
	// ErrFetch marks a transport error or non-success provider response.
	ErrFetch = errors.New("provider fetch failed")
	// ErrParse marks a provider response body that could not be decoded.
	ErrParse = errors.New("provider response malformed")
)

// FetchError carries the HTTP status of a failed provider request.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrFetch, e.Err)
	}
	return fmt.Sprintf("%s: status %d", ErrFetch, e.Status)
}

func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetch, e.Err}
	}
	return []error{ErrFetch}
}

// Session is the per-stream credential set a poll needs.
type Session struct {
	APIKey         string
	RequestContext json.RawMessage
	// StreamID tags fetch spans; it is not sent upstream.
	StreamID string
}

// Client issues provider requests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient returns a pooled client with dial/TLS timeouts and no overall
// request timeout; live chat fetches rely on the transport limits only.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: tr}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

type liveChatRequest struct {
	Context      json.RawMessage `json:"context"`
	Continuation string          `json:"continuation"`
	ClientInfo   struct {
		IsDocumentHidden bool `json:"isDocumentHidden"`
	} `json:"clientInfo"`
}

// FetchLiveChat requests the chat page that starts at token.
func (c *Client) FetchLiveChat(ctx context.Context, sess Session, token string) (*LiveChatResponse, error) {
	var attrs []attribute.KeyValue
	if sess.StreamID != "" {
		attrs = append(attrs, telemetry.StreamAttr(sess.StreamID))
	}
	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "get_live_chat", attrs...)
	defer span.End()

	body := liveChatRequest{Context: sess.RequestContext, Continuation: token}
	if len(body.Context) == 0 {
		body.Context = json.RawMessage(`{}`)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode live chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+liveChatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("key", sess.APIKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &FetchError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		ferr := &FetchError{Status: resp.StatusCode}
		telemetry.RecordError(span, ferr)
		return nil, ferr
	}
	var out LiveChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		perr := fmt.Errorf("%w: %v", ErrParse, err)
		telemetry.RecordError(span, perr)
		return nil, perr
	}
	telemetry.SetSpanSuccess(span)
	return &out, nil
}

// UnixSeconds converts a microsecond timestamp string to rounded unix seconds.
// Unparseable input yields 0.
func UnixSeconds(usec string) int64 {
	v, err := strconv.ParseFloat(usec, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(v / 1e6))
}
