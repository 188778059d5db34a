// Package relay runs one live chat poller per stream and fans the polled
// actions out to websocket subscribers through format adapters.
//
// A Relay is bootstrapped once from scraped page data, then polls the
// provider on a self-rescheduling timer for as long as it has subscribers.
// Repeated message ids are dropped for a fixed window. The Hub owns every
// Relay of the process and reclaims the ones left idle.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-relay/adapter"
	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

var (
	// ErrChatNotFound is returned by Initialize when the bootstrap data has no
	// live chat continuation. Initialization may be retried.
	ErrChatNotFound = errors.New("failed to load chat")
	// ErrClosed is returned by operations on a closed Relay.
	ErrClosed = errors.New("relay closed")
)

// State is the bootstrap state of a Relay.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "uninitialized"
	}
}

// Fetcher issues one live chat fetch.
type Fetcher interface {
	FetchLiveChat(ctx context.Context, sess youtubeapi.Session, token string) (*youtubeapi.LiveChatResponse, error)
}

// Checkpoint is the persisted operational record of a relay.
type Checkpoint struct {
	StreamID     string
	ChannelID    string
	Continuation string
	State        string
	UpdatedAt    time.Time
}

// CheckpointFunc persists a checkpoint.
type CheckpointFunc func(ctx context.Context, c Checkpoint) error

// Config tunes a Relay. Zero durations take defaults.
type Config struct {
	PollInterval    time.Duration
	DedupWindow     time.Duration
	SweepInterval   time.Duration
	CheckpointEvery time.Duration
	Adapters        adapter.Options
	// Checkpoint is optional.
	Checkpoint CheckpointFunc
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 30 * time.Second
	}
	return c
}

// Relay polls one stream's live chat and broadcasts to its subscribers.
type Relay struct {
	id      string
	fetcher Fetcher
	cfg     Config
	now     func() time.Time

	registry *adapter.Registry
	dedup    *DedupCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// initMu serializes Initialize with Attach.
	initMu sync.Mutex

	mu             sync.Mutex
	state          State
	session        youtubeapi.Session
	channelID      string
	token          string
	polling        bool
	timer          *time.Timer
	closed         bool
	idleSince      time.Time
	lastCheckpoint time.Time
}

// New returns an uninitialized Relay for streamID.
func New(streamID string, fetcher Fetcher, cfg Config) *Relay {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		id:        streamID,
		fetcher:   fetcher,
		cfg:       cfg,
		now:       time.Now,
		registry:  adapter.NewRegistry(cfg.Adapters),
		dedup:     NewDedupCache(cfg.DedupWindow),
		ctx:       ctx,
		cancel:    cancel,
		idleSince: time.Now(),
	}
}

// ID returns the stream id.
func (r *Relay) ID() string { return r.id }

// Initialize extracts the live chat continuation from b. It is a no-op once
// the relay is initialized; on failure the relay returns to uninitialized so
// the call can be retried.
func (r *Relay) Initialize(ctx context.Context, b *youtubeapi.Bootstrap) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state == StateInitialized {
		r.mu.Unlock()
		return nil
	}
	r.state = StateInitializing
	r.mu.Unlock()

	var (
		token string
		found bool
	)
	if b != nil {
		token, found = youtubeapi.FindLiveChatContinuation(b.InitialData)
	}
	if !found || token == "" {
		r.mu.Lock()
		r.state = StateUninitialized
		r.mu.Unlock()
		slog.Info("relay: no live chat continuation", slog.String("stream", r.id))
		return ErrChatNotFound
	}
	channelID := youtubeapi.FindChannelID(b.InitialData)
	r.registry.SetChannelID(channelID)

	r.mu.Lock()
	r.session = b.Session()
	r.session.StreamID = r.id
	r.channelID = channelID
	r.token = token
	r.state = StateInitialized
	r.mu.Unlock()

	r.wg.Add(1)
	go r.sweepLoop()

	slog.Info("relay: initialized", slog.String("stream", r.id), slog.String("channel", channelID))
	r.checkpoint(ctx, true)
	return nil
}

// Attach subscribes sub under the named format and arms the poll loop when a
// continuation is known and no poll chain is running. The returned detach
// function is idempotent.
func (r *Relay) Attach(sub adapter.Subscriber, format string) (detach func(), err error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}, ErrClosed
	}
	r.mu.Unlock()

	t := r.registry.Attach(format, sub)

	r.mu.Lock()
	r.idleSince = time.Time{}
	if r.state == StateInitialized && r.token != "" && !r.polling {
		r.polling = true
		r.timer = time.AfterFunc(0, r.poll)
		slog.Debug("relay: poll loop armed", slog.String("stream", r.id))
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.detach(t, sub) })
	}, nil
}

func (r *Relay) detach(t adapter.Type, sub adapter.Subscriber) {
	r.registry.Detach(t, sub)
	if r.registry.HasSubscribers() {
		return
	}
	r.mu.Lock()
	if r.idleSince.IsZero() {
		r.idleSince = r.now()
	}
	r.mu.Unlock()
}

// poll issues one fetch, processes its actions and reschedules itself while
// any subscriber remains.
func (r *Relay) poll() {
	r.mu.Lock()
	if r.closed {
		r.polling = false
		r.mu.Unlock()
		return
	}
	token, sess := r.token, r.session
	r.mu.Unlock()

	next := token
	telemetry.IncPolls()
	var (
		resp *youtubeapi.LiveChatResponse
		err  error
	)
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		resp, err = r.fetcher.FetchLiveChat(r.ctx, sess, token)
	})
	switch {
	case err != nil && r.ctx.Err() != nil:
		slog.Debug("relay: poll cancelled", slog.String("stream", r.id))
	case err != nil:
		class := youtubeapi.Classify(err)
		telemetry.IncPollFailure(class.String())
		slog.Warn("relay: poll failed", slog.String("stream", r.id), slog.String("class", class.String()), slog.Any("err", err))
	default:
		if t := resp.NextToken(); t != "" {
			next = t
		}
		if resp == nil || resp.ContinuationContents == nil {
			slog.Debug("relay: no continuation contents", slog.String("stream", r.id))
		}
		for _, raw := range resp.Actions() {
			r.process(raw)
		}
	}

	r.mu.Lock()
	r.token = next
	if !r.closed && r.registry.HasSubscribers() {
		r.timer = time.AfterFunc(r.cfg.PollInterval, r.poll)
	} else {
		r.polling = false
		if !r.closed {
			slog.Debug("relay: poll loop idle", slog.String("stream", r.id))
		}
	}
	r.mu.Unlock()

	r.checkpoint(r.ctx, false)
}

// process drops actions whose id was seen within the dedup window and
// broadcasts the rest. Actions without an id are always broadcast.
func (r *Relay) process(raw []byte) {
	telemetry.IncActions()
	a := youtubeapi.ParseAction(raw)
	if id, ok := a.ID(); ok && !r.dedup.Mark(id) {
		telemetry.IncDuplicates()
		return
	}
	r.registry.Broadcast(a)
}

func (r *Relay) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if n := r.dedup.Sweep(); n > 0 {
				slog.Debug("relay: dedup sweep", slog.String("stream", r.id), slog.Int("removed", n))
			}
		}
	}
}

// checkpoint persists the relay state when forced or when the last save is
// older than CheckpointEvery.
func (r *Relay) checkpoint(ctx context.Context, force bool) {
	if r.cfg.Checkpoint == nil || ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	now := r.now()
	if !force && now.Sub(r.lastCheckpoint) < r.cfg.CheckpointEvery {
		r.mu.Unlock()
		return
	}
	r.lastCheckpoint = now
	c := Checkpoint{StreamID: r.id, ChannelID: r.channelID, Continuation: r.token, State: r.state.String(), UpdatedAt: now}
	r.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.cfg.Checkpoint(cctx, c); err != nil {
		slog.Warn("relay: checkpoint failed", slog.String("stream", r.id), slog.Any("err", err))
	}
}

// Close stops polling and sweeping and evicts every adapter.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
	r.registry.Close()
}

// State returns the bootstrap state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Token returns the current continuation token.
func (r *Relay) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// ChannelID returns the channel id found during initialization.
func (r *Relay) ChannelID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID
}

// Polling reports whether a poll chain is armed.
func (r *Relay) Polling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polling
}

// IdleSince returns when the last subscriber left, or the zero time while
// subscribers are attached.
func (r *Relay) IdleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idleSince
}

func (r *Relay) touch() {
	r.mu.Lock()
	if !r.idleSince.IsZero() {
		r.idleSince = r.now()
	}
	r.mu.Unlock()
}

// Subscribers returns the subscriber count per format.
func (r *Relay) Subscribers() map[adapter.Type]int { return r.registry.Counts() }

// DedupLen returns the number of remembered message ids.
func (r *Relay) DedupLen() int { return r.dedup.Len() }
