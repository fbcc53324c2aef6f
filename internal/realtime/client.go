// Package realtime subscribes to the service's entity-change push channel.
//
// The client joins one project's channel and fans events out to typed
// subscriptions. Unsubscription is handle-based: Subscribe returns a
// cancellable Subscription rather than requiring the caller to pass the same
// function value back.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/promptwire/internal/api"
	"github.com/haasonsaas/promptwire/internal/backoff"
	"github.com/haasonsaas/promptwire/pkg/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Handler receives one change event. Handlers run on the read loop goroutine
// and must not block.
type Handler func(models.ChangeEvent)

// Subscription is a cancellable registration for one event kind.
type Subscription struct {
	id      string
	kind    models.ChangeKind
	handler Handler
	client  *Client
}

// Kind returns the event kind the subscription receives.
func (s *Subscription) Kind() models.ChangeKind { return s.kind }

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.client == nil {
		return
	}
	s.client.unsubscribe(s)
}

// frame is the wire format of the push channel: a named event with an
// optional JSON payload.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// changePayload carries either a full entity snapshot or a bare id.
type changePayload struct {
	Prompt       json.RawMessage `json:"prompt,omitempty"`
	PromptID     string          `json:"promptId,omitempty"`
	Experiment   json.RawMessage `json:"abTest,omitempty"`
	ExperimentID string          `json:"abTestId,omitempty"`
}

type joinPayload struct {
	ProjectID string `json:"projectId"`
}

// Client maintains the websocket connection and the subscription table.
type Client struct {
	wsURL     string
	apiKey    string
	projectID string
	logger    *slog.Logger
	dialer    *websocket.Dialer
	policy    backoff.Policy

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[models.ChangeKind]map[string]*Subscription
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithReconnectPolicy sets the reconnect backoff policy.
func WithReconnectPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a realtime client for one project. The apiURL is the
// service base URL; the websocket endpoint is derived from it.
func NewClient(apiURL, apiKey, projectID string, opts ...Option) *Client {
	c := &Client{
		wsURL:     deriveWSURL(apiURL),
		apiKey:    apiKey,
		projectID: projectID,
		logger:    slog.Default().With("component", "realtime"),
		dialer:    websocket.DefaultDialer,
		policy:    backoff.ReconnectPolicy(),
		subs:      make(map[models.ChangeKind]map[string]*Subscription),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// deriveWSURL maps the REST base URL to the push endpoint.
func deriveWSURL(apiURL string) string {
	u, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil {
		return apiURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/realtime"
	return u.String()
}

// Connect dials the push endpoint, joins the project channel, and starts the
// read loop. The loop reconnects with jittered backoff until Close.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	join, _ := json.Marshal(joinPayload{ProjectID: c.projectID})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Event: "join-project", Payload: join}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Close leaves the project channel and stops the read loop.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		leave, _ := json.Marshal(joinPayload{ProjectID: c.projectID})
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(frame{Event: "leave-project", Payload: leave})
		conn.Close()
	}
	c.wg.Wait()
}

// Subscribe registers a handler for one event kind.
func (c *Client) Subscribe(kind models.ChangeKind, handler Handler) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		kind:    kind,
		handler: handler,
		client:  c,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[string]*Subscription)
	}
	c.subs[kind][sub.id] = sub
	return sub
}

func (c *Client) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.subs[sub.kind]; ok {
		delete(set, sub.id)
	}
}

// readLoop pumps frames from conn, reconnecting until Close.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		c.pump(conn)

		next, ok := c.reconnect()
		if !ok {
			return
		}
		conn = next
	}
}

// pump reads frames from a live connection until it fails.
func (c *Client) pump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-pings.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-stop:
				return
			case <-c.done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("connection lost", "error", err)
			}
			conn.Close()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("discarding undecodable frame", "error", err)
			continue
		}
		c.handleFrame(f)
	}
}

// reconnect dials until it succeeds or the client closes. The second return
// is false once the client is closed.
func (c *Client) reconnect() (*websocket.Conn, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := c.policy.Sleep(ctx, attempt); err != nil {
			return nil, false
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		c.logger.Info("reconnected", "attempt", attempt)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil, false
		}
		c.conn = conn
		c.mu.Unlock()
		return conn, true
	}
}

// handleFrame decodes a named event and dispatches it to subscribers.
// Snapshots are schema-validated before dispatch; malformed payloads are
// logged and dropped so they can never reach the cache.
func (c *Client) handleFrame(f frame) {
	kind := models.ChangeKind(f.Event)
	switch kind {
	case models.ChangePromptCreated, models.ChangePromptUpdated, models.ChangePromptDeleted,
		models.ChangeExperimentCreated, models.ChangeExperimentUpdated, models.ChangeExperimentDeleted:
	default:
		return
	}

	var payload changePayload
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			c.logger.Warn("discarding undecodable payload", "event", f.Event, "error", err)
			return
		}
	}

	event := models.ChangeEvent{
		Kind:         kind,
		PromptID:     payload.PromptID,
		ExperimentID: payload.ExperimentID,
	}
	if len(payload.Prompt) > 0 {
		p, err := api.DecodePrompt(payload.Prompt)
		if err != nil {
			c.logger.Warn("discarding invalid prompt snapshot", "event", f.Event, "error", err)
			return
		}
		event.Prompt = p
	}
	if len(payload.Experiment) > 0 {
		x, err := api.DecodeExperiment(payload.Experiment)
		if err != nil {
			c.logger.Warn("discarding invalid experiment snapshot", "event", f.Event, "error", err)
			return
		}
		event.Experiment = x
	}

	for _, handler := range c.handlers(kind) {
		handler(event)
	}
}

// handlers snapshots the subscriber list so dispatch runs without the lock.
func (c *Client) handlers(kind models.ChangeKind) []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.subs[kind]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(set))
	for _, sub := range set {
		out = append(out, sub.handler)
	}
	return out
}
